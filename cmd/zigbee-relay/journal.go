package main

import (
	"fmt"
	"log/slog"

	"zigbee-relay/internal/node"
	"zigbee-relay/internal/store"
)

// recordDiagnostics appends dropped frames, diagnostics and association
// changes to the journal. It returns the unsubscribe function.
func recordDiagnostics(events *node.EventBus, j store.Journal, logger *slog.Logger) func() {
	appendEntry := func(e *store.Entry) {
		if err := j.Append(e); err != nil {
			logger.Warn("journal append failed", "event", e.Event, "kind", e.Kind, "err", err)
		}
	}

	onDiagnostic := func(ev node.Event) {
		d, ok := ev.Data.(node.Diagnostic)
		if !ok {
			return
		}
		appendEntry(&store.Entry{
			Event:     ev.Type,
			Kind:      d.Kind,
			Detail:    d.Detail,
			ClusterID: d.ClusterID,
			ProfileID: d.ProfileID,
			Endpoint:  d.Endpoint,
		})
	}
	onAssociation := func(ev node.Event) {
		a, ok := ev.Data.(node.Association)
		if !ok {
			return
		}
		kind := "network_left"
		if a.Associated {
			kind = "network_joined"
		}
		appendEntry(&store.Entry{
			Event:  ev.Type,
			Kind:   kind,
			Detail: fmt.Sprintf("AI=0x%02X", a.Status),
		})
	}

	unsubs := []func(){
		events.On(node.EventFrameDropped, onDiagnostic),
		events.On(node.EventDiagnostic, onDiagnostic),
		events.On(node.EventAssociation, onAssociation),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
