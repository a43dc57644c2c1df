package node

import (
	"context"
	"errors"
	"fmt"

	"zigbee-relay/internal/radio"
	"zigbee-relay/internal/wire"
	"zigbee-relay/internal/zcl"
	"zigbee-relay/internal/zdo"
)

// handle runs one frame to completion. Nothing is processed while the radio
// reports itself unassociated.
func (n *Node) handle(ctx context.Context, f *radio.Frame, source string) {
	if err := n.checkAssociation(ctx); err != nil {
		n.drop(KindNotAssociated, f, err)
		return
	}

	switch {
	case f.ProfileID == zdo.ProfileID && f.DestEndpoint == zdo.Endpoint:
		n.handleZDO(ctx, f)
	case f.ProfileID == zcl.ProfileHomeAutomation:
		n.handleZCL(ctx, f, source)
	default:
		n.drop(KindNoHandler, f, fmt.Errorf("profile 0x%04X endpoint %d", f.ProfileID, f.DestEndpoint))
	}
}

// checkAssociation queries the radio's join state. The result is never
// cached.
func (n *Node) checkAssociation(ctx context.Context) error {
	status, err := n.radio.AssociationStatus(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAssociated, err)
	}
	if int(status) != n.lastAI {
		n.associationChanged(ctx, status)
	}
	if status != 0 {
		return fmt.Errorf("%w: status 0x%02X", ErrNotAssociated, status)
	}
	return nil
}

func (n *Node) associationChanged(ctx context.Context, status uint8) {
	first := n.lastAI < 0
	n.lastAI = int(status)
	n.logger.Info("association", "status", fmt.Sprintf("0x%02X", status), "associated", status == 0)
	n.events.Emit(Event{Type: EventAssociation, Data: Association{Status: status, Associated: status == 0}})

	// The short address is assigned on join.
	if status == 0 && !first {
		if id, err := n.radio.Identity(ctx); err == nil {
			n.setIdentity(id)
		} else {
			n.logger.Warn("refresh identity", "err", err)
		}
	}
}

func (n *Node) handleZDO(ctx context.Context, f *radio.Frame) {
	fr, err := zdo.Decode(f.ClusterID, f.Payload)
	if err != nil {
		n.drop(KindTruncated, f, err)
		return
	}
	if fr.Diagnostic != nil {
		n.drop(KindUnknownCluster, f, fr.Diagnostic)
		return
	}
	if len(fr.Leftover) > 0 {
		n.note(KindTrailingData, f, fmt.Errorf("%d bytes after %s: %X", len(fr.Leftover), zdo.CommandName(f.ClusterID), fr.Leftover))
	}

	switch f.ClusterID {
	case zdo.ActiveEPReq:
		addr := fr.Args[0].(uint16)
		if addr != n.identity.Short {
			n.logger.Debug("active endpoint request for another node", "nwk", fmt.Sprintf("0x%04X", addr))
			return
		}
		eps := make([]uint8, n.cfg.RelayCount)
		for i := range eps {
			eps[i] = n.cfg.Endpoint(i)
		}
		n.respondZDO(ctx, f, fr.TSN, zdo.ActiveEPRsp, uint8(zdo.StatusSuccess), addr, eps)

	case zdo.SimpleDescReq:
		addr := fr.Args[0].(uint16)
		ep := fr.Args[1].(uint8)
		if addr != n.identity.Short {
			n.logger.Debug("simple descriptor request for another node", "nwk", fmt.Sprintf("0x%04X", addr))
			return
		}
		status, desc := n.simpleDescriptor(ep)
		n.respondZDO(ctx, f, fr.TSN, zdo.SimpleDescRsp, uint8(status), addr, desc)

	default:
		n.drop(KindNoHandler, f, fmt.Errorf("discovery command %s", zdo.CommandName(f.ClusterID)))
	}
}

// simpleDescriptor describes ep, or returns the status explaining why it
// cannot. Only relay endpoints are active; any other endpoint gets no
// descriptor.
func (n *Node) simpleDescriptor(ep uint8) (zdo.Status, wire.Value) {
	if ep == 0 || ep > 0xF0 {
		return zdo.StatusInvalidEP, wire.Absent{}
	}
	if _, ok := n.cfg.channel(ep); !ok {
		return zdo.StatusNotActive, wire.Absent{}
	}
	return zdo.StatusSuccess, zdo.NewSimpleDescriptor(ep, zcl.ProfileHomeAutomation, 0x0000, 0,
		[]uint16{zcl.ClusterOnOff}, nil)
}

func (n *Node) respondZDO(ctx context.Context, f *radio.Frame, tsn uint8, clusterID uint16, args ...wire.Value) {
	payload, err := zdo.Encode(tsn, clusterID, args...)
	if err != nil {
		n.logger.Error("encode discovery response", "cluster", zdo.CommandName(clusterID), "err", err)
		return
	}
	n.transmit(ctx, radio.ReplyTo(f, clusterID, payload))
}

func (n *Node) handleZCL(ctx context.Context, f *radio.Frame, source string) {
	fr, err := zcl.Decode(f.ClusterID, f.Payload)
	if err != nil {
		n.drop(KindTruncated, f, err)
		return
	}
	if fr.Diagnostic != nil {
		kind := KindUnknownCommand
		switch {
		case errors.Is(fr.Diagnostic, zcl.ErrReservedFrameType):
			kind = KindReservedFrame
		case errors.Is(fr.Diagnostic, zcl.ErrClientCommand):
			kind = KindClientCommand
		}
		n.drop(kind, f, fr.Diagnostic)
		return
	}
	if len(fr.Leftover) > 0 {
		n.note(KindTrailingData, f, fmt.Errorf("%d bytes after %s: %X", len(fr.Leftover), fr.CommandName(), fr.Leftover))
	}

	if f.ClusterID != zcl.ClusterOnOff {
		n.drop(KindNoHandler, f, fmt.Errorf("cluster 0x%04X %s", f.ClusterID, fr.CommandName()))
		return
	}
	ch, ok := n.cfg.channel(f.DestEndpoint)
	if !ok {
		n.drop(KindChannelRange, f, fmt.Errorf("%w: endpoint 0x%02X", ErrChannelRange, f.DestEndpoint))
		return
	}

	if fr.Control.IsCluster() {
		n.handleOnOff(ctx, ch, fr, source)
		return
	}

	switch fr.CommandID {
	case zcl.FoundationReadAttributes:
		payload, err := zcl.EncodeAttributeResponse(fr.TSN, n.state.On(ch), zcl.AttributeIDs(fr))
		if err != nil {
			n.logger.Error("encode attribute response", "err", err)
			return
		}
		n.transmit(ctx, radio.ReplyTo(f, zcl.ClusterOnOff, payload))
	case zcl.FoundationDefaultResponse:
		cmd, _ := fr.Args[0].(uint8)
		status, _ := fr.Args[1].(uint8)
		n.note(KindDefaultResponse, f, fmt.Errorf("command 0x%02X: %s", cmd, zcl.Status(status)))
	}
}

// handleOnOff applies a cluster command to channel ch. Only off and on change
// state; every command still rewrites the board and reports the channel.
func (n *Node) handleOnOff(ctx context.Context, ch int, fr zcl.Frame, source string) {
	before := n.state
	switch fr.CommandID {
	case zcl.OnOffOff:
		n.state = n.state.Clear(ch)
	case zcl.OnOffOn:
		n.state = n.state.Set(ch)
	default:
		n.logger.Info("on/off command has no state effect", "command", fr.CommandName(), "channel", ch)
	}

	n.writeRelays()
	n.logger.Info("relay command",
		"command", fr.CommandName(),
		"channel", ch,
		"state", n.state.Format(n.cfg.RelayCount),
		"source", source)
	if n.state != before {
		n.events.Emit(Event{Type: EventRelayChanged, Data: RelayChange{
			Channel:  ch,
			Endpoint: n.cfg.Endpoint(ch),
			On:       n.state.On(ch),
			Mask:     n.state.Mask(),
			Command:  fr.CommandName(),
			Source:   source,
		}})
	}
	n.publishReport(ctx, ch, "command")
}

// drop logs and publishes a frame that was discarded.
func (n *Node) drop(kind string, f *radio.Frame, err error) {
	n.logger.Warn("frame dropped",
		"kind", kind,
		"cluster", fmt.Sprintf("0x%04X", f.ClusterID),
		"profile", fmt.Sprintf("0x%04X", f.ProfileID),
		"dst_ep", f.DestEndpoint,
		"err", err)
	n.events.Emit(Event{Type: EventFrameDropped, Data: diagnosticOf(kind, f, err)})
}

// note logs a non-fatal anomaly on a frame that was still handled.
func (n *Node) note(kind string, f *radio.Frame, err error) {
	n.logger.Info("frame diagnostic",
		"kind", kind,
		"cluster", fmt.Sprintf("0x%04X", f.ClusterID),
		"dst_ep", f.DestEndpoint,
		"detail", err)
	n.events.Emit(Event{Type: EventDiagnostic, Data: diagnosticOf(kind, f, err)})
}

func diagnosticOf(kind string, f *radio.Frame, err error) Diagnostic {
	d := Diagnostic{Kind: kind, ClusterID: f.ClusterID, ProfileID: f.ProfileID, Endpoint: f.DestEndpoint}
	if err != nil {
		d.Detail = err.Error()
	}
	return d
}
