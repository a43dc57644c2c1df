//go:build no_automation

package main

import (
	"log/slog"

	"zigbee-relay/internal/node"
)

type autoStopper struct{}

func (a *autoStopper) Stop() {}

func initAutomation(_ *node.Node, _ *Config, _ *slog.Logger) *autoStopper {
	return &autoStopper{}
}
