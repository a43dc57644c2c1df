//go:build no_automation

package automation

import (
	"log/slog"

	"zigbee-relay/internal/node"
	"zigbee-relay/internal/relay"
)

// RelayNode is the part of the dispatcher scripts can observe and drive.
type RelayNode interface {
	Events() *node.EventBus
	SetRelay(ch int, on bool) error
	Snapshot() relay.State
	Config() node.Config
}

// Manager is a no-op stub when automation is disabled.
type Manager struct{}

// NewManager returns a nil manager when automation is disabled.
func NewManager(_ string) (*Manager, error) { return nil, nil }

// Engine is a no-op stub when automation is disabled.
type Engine struct{}

// NewEngine returns a no-op engine when automation is disabled.
func NewEngine(_ RelayNode, _ *Manager, _ *slog.Logger) *Engine {
	return &Engine{}
}

// Start is a no-op.
func (e *Engine) Start() {}

// Stop is a no-op.
func (e *Engine) Stop() {}

// Running returns nil.
func (e *Engine) Running() []string { return nil }
