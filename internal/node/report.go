package node

import (
	"context"
	"fmt"

	"zigbee-relay/internal/radio"
	"zigbee-relay/internal/zcl"
	"zigbee-relay/internal/zdo"
)

// writeRelays pushes the whole relay mask to the board in one transfer.
func (n *Node) writeRelays() {
	if err := n.driver.Write(n.cfg.RelayCommand, n.state.Mask()); err != nil {
		n.logger.Error("relay write failed", "mask", n.state.String(), "err", err)
		n.events.Emit(Event{Type: EventDiagnostic, Data: Diagnostic{Kind: KindDriverFailed, Detail: err.Error()}})
		return
	}
	n.published.Store(uint32(n.state.Mask()))
}

func (n *Node) publishAll(ctx context.Context, reason string) {
	for ch := 0; ch < n.cfg.RelayCount; ch++ {
		n.publishReport(ctx, ch, reason)
	}
}

// publishReport sends the on/off attribute of channel ch to the coordinator.
// It is skipped while unassociated.
func (n *Node) publishReport(ctx context.Context, ch int, reason string) {
	if err := n.checkAssociation(ctx); err != nil {
		n.logger.Warn("report skipped", "channel", ch, "reason", reason, "err", err)
		n.events.Emit(Event{Type: EventDiagnostic, Data: Diagnostic{
			Kind:      KindNotAssociated,
			Detail:    err.Error(),
			ClusterID: zcl.ClusterOnOff,
			ProfileID: zcl.ProfileHomeAutomation,
			Endpoint:  n.cfg.Endpoint(ch),
		}})
		return
	}

	on := n.state.On(ch)
	tsn := n.reportTSN
	payload, err := zcl.EncodeOnOffReport(tsn, on)
	if err != nil {
		n.logger.Error("encode report", "channel", ch, "err", err)
		return
	}
	n.reportTSN++

	ep := n.cfg.Endpoint(ch)
	if !n.transmit(ctx, radio.ToCoordinator(ep, ep, zcl.ClusterOnOff, zcl.ProfileHomeAutomation, payload)) {
		return
	}
	n.events.Emit(Event{Type: EventReportSent, Data: Report{
		Channel:  ch,
		Endpoint: ep,
		On:       on,
		TSN:      tsn,
		Reason:   reason,
	}})
}

// announce broadcasts a device announcement when associated.
func (n *Node) announce(ctx context.Context) {
	if err := n.checkAssociation(ctx); err != nil {
		n.logger.Info("announce skipped", "err", err)
		return
	}
	payload, err := zdo.Encode(n.zdoTSN, zdo.DeviceAnnce, n.identity.Short, n.identity.IEEE, n.cfg.Capability)
	if err != nil {
		n.logger.Error("encode device announce", "err", err)
		return
	}
	n.zdoTSN++
	if n.transmit(ctx, radio.ToBroadcast(zdo.Endpoint, zdo.Endpoint, zdo.DeviceAnnce, zdo.ProfileID, payload)) {
		n.logger.Info("device announced", "short", fmt.Sprintf("0x%04X", n.identity.Short))
	}
}

func (n *Node) transmit(ctx context.Context, req radio.TxRequest) bool {
	if err := n.radio.Transmit(ctx, req); err != nil {
		n.logger.Warn("transmit failed",
			"cluster", fmt.Sprintf("0x%04X", req.ClusterID),
			"dst_ep", req.DestEndpoint,
			"err", err)
		n.events.Emit(Event{Type: EventDiagnostic, Data: Diagnostic{
			Kind:      KindTransmitFailed,
			Detail:    err.Error(),
			ClusterID: req.ClusterID,
			ProfileID: req.ProfileID,
			Endpoint:  req.DestEndpoint,
		}})
		return false
	}
	return true
}
