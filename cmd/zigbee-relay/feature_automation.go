//go:build !no_automation

package main

import (
	"log/slog"

	"zigbee-relay/internal/automation"
	"zigbee-relay/internal/node"
)

type autoStopper struct {
	engine *automation.Engine
}

func (a *autoStopper) Stop() {
	if a.engine != nil {
		a.engine.Stop()
	}
}

func initAutomation(n *node.Node, cfg *Config, logger *slog.Logger) *autoStopper {
	if cfg.Automation.ScriptsDir == "" {
		return &autoStopper{}
	}
	scriptMgr, err := automation.NewManager(cfg.Automation.ScriptsDir)
	if err != nil {
		logger.Error("create script manager", "err", err)
		return &autoStopper{}
	}
	engine := automation.NewEngine(n, scriptMgr, logger)
	engine.Start()
	return &autoStopper{engine: engine}
}
