//go:build !no_automation

package automation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

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

const (
	maxHandlersPerScript = 100
	vmCommandQueue       = 64
	loadTimeout          = 5 * time.Second
)

// luaRelayHandler is a callback registered with relay.on.
type luaRelayHandler struct {
	channel int // -1 = any channel
	fn      *lua.LFunction
}

// scriptVM is a running Lua VM for a single script.
type scriptVM struct {
	id       string
	state    *lua.LState
	commands chan func(*lua.LState) // serializes Lua access
	handlers []luaRelayHandler
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex // protects handlers
}

// Engine runs one Lua VM per enabled script and feeds relay changes to the
// handlers they register.
type Engine struct {
	node    RelayNode
	manager *Manager
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	vms   map[string]*scriptVM // script ID -> running VM
	unsub func()
}

// NewEngine creates a new automation engine.
func NewEngine(n RelayNode, mgr *Manager, logger *slog.Logger) *Engine {
	return &Engine{
		node:    n,
		manager: mgr,
		logger:  logger.With("component", "automation"),
		now:     time.Now,
		vms:     make(map[string]*scriptVM),
	}
}

// Start subscribes to relay changes and loads all enabled scripts. A script
// that fails to load is logged and skipped.
func (e *Engine) Start() {
	e.unsub = e.node.Events().On(node.EventRelayChanged, e.dispatchEvent)

	scripts, err := e.manager.List()
	if err != nil {
		e.logger.Error("load scripts", "err", err)
		return
	}
	for _, s := range scripts {
		if !s.Meta.Enabled {
			e.logger.Debug("script disabled", "id", s.ID)
			continue
		}
		if err := e.startScript(s); err != nil {
			e.logger.Error("start script", "id", s.ID, "err", err)
		}
	}

	e.mu.Lock()
	running := len(e.vms)
	e.mu.Unlock()
	e.logger.Info("automation engine started", "dir", e.manager.Dir(), "scripts", running)
}

// Stop unsubscribes from the event bus and stops every VM.
func (e *Engine) Stop() {
	if e.unsub != nil {
		e.unsub()
	}

	e.mu.Lock()
	vms := e.vms
	e.vms = make(map[string]*scriptVM)
	e.mu.Unlock()

	for _, vm := range vms {
		vm.cancel()
		<-vm.done
	}
	e.logger.Info("automation engine stopped")
}

// Running returns the IDs of running scripts.
func (e *Engine) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.vms))
	for id := range e.vms {
		ids = append(ids, id)
	}
	return ids
}

func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	for _, name := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func (e *Engine) startScript(s *Script) error {
	ctx, cancel := context.WithCancel(context.Background())
	L := newSandbox()

	vm := &scriptVM{
		id:       s.ID,
		state:    L,
		commands: make(chan func(*lua.LState), vmCommandQueue),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	registerRelayModule(L, vm, e)
	registerSystemModule(L, e)

	// Top-level code only registers handlers; bound it so a stray loop cannot
	// hang startup.
	loadCtx, loadCancel := context.WithTimeout(ctx, loadTimeout)
	L.SetContext(loadCtx)
	err := L.DoString(s.LuaCode)
	loadCancel()
	if err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("execute script %s: %w", s.ID, err)
	}
	L.SetContext(ctx)

	e.mu.Lock()
	e.vms[s.ID] = vm
	e.mu.Unlock()

	go func() {
		defer close(vm.done)
		defer L.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-vm.commands:
				fn(L)
			}
		}
	}()

	e.logger.Info("script started", "id", s.ID, "name", s.Meta.Name)
	return nil
}

// dispatchEvent queues matching handlers on their VMs. It runs on the
// dispatcher goroutine and never blocks.
func (e *Engine) dispatchEvent(event node.Event) {
	rc, ok := event.Data.(node.RelayChange)
	if !ok {
		return
	}

	e.mu.Lock()
	vms := make([]*scriptVM, 0, len(e.vms))
	for _, vm := range e.vms {
		vms = append(vms, vm)
	}
	e.mu.Unlock()

	for _, vm := range vms {
		vm.mu.Lock()
		handlers := make([]luaRelayHandler, len(vm.handlers))
		copy(handlers, vm.handlers)
		vm.mu.Unlock()

		for _, h := range handlers {
			if h.channel >= 0 && h.channel != rc.Channel {
				continue
			}
			fn := h.fn
			if !vm.post(func(L *lua.LState) { e.callHandler(L, vm, fn, rc) }) {
				e.logger.Warn("script command queue full, dropping event", "id", vm.id, "channel", rc.Channel)
			}
		}
	}
}

// post queues fn on the VM goroutine. It reports false when the VM is stopped
// or its queue is full.
func (vm *scriptVM) post(fn func(*lua.LState)) bool {
	if vm.ctx.Err() != nil {
		return false
	}
	select {
	case vm.commands <- fn:
		return true
	default:
		return false
	}
}

func (e *Engine) callHandler(L *lua.LState, vm *scriptVM, fn *lua.LFunction, rc node.RelayChange) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("lua handler panic", "id", vm.id, "err", r)
		}
	}()

	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, lua.LNumber(rc.Channel), lua.LBool(rc.On)); err != nil {
		e.logger.Error("lua handler error", "id", vm.id, "err", err)
	}
}
