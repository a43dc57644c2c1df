//go:build !no_automation

package automation

import (
	"time"

	lua "github.com/yuin/gopher-lua"
)

// registerRelayModule registers the `relay` global table in a Lua state.
func registerRelayModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"on":    func(L *lua.LState) int { return relayOn(L, vm) },
		"set":   func(L *lua.LState) int { return relaySet(L, e) },
		"get":   func(L *lua.LState) int { return relayGet(L, e) },
		"count": func(L *lua.LState) int { return relayCount(L, e) },
		"after": func(L *lua.LState) int { return relayAfter(L, vm, e) },
		"log":   func(L *lua.LState) int { return relayLog(L, vm, e) },
	})
	L.SetGlobal("relay", mod)
}

// relay.on(callback) or relay.on(channel, callback); callback(channel, on)
func relayOn(L *lua.LState, vm *scriptVM) int {
	h := luaRelayHandler{channel: -1}
	if L.GetTop() >= 2 {
		h.channel = L.CheckInt(1)
		h.fn = L.CheckFunction(2)
	} else {
		h.fn = L.CheckFunction(1)
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if len(vm.handlers) >= maxHandlersPerScript {
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	return 0
}

// relay.set(channel, on) -> ok[, err]
func relaySet(L *lua.LState, e *Engine) int {
	ch := L.CheckInt(1)
	on := L.CheckBool(2)
	if err := e.node.SetRelay(ch, on); err != nil {
		e.logger.Warn("script relay command rejected", "channel", ch, "on", on, "err", err)
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// relay.get(channel) -> on
func relayGet(L *lua.LState, e *Engine) int {
	ch := L.CheckInt(1)
	if ch < 0 || ch >= e.node.Config().RelayCount {
		L.ArgError(1, "channel out of range")
		return 0
	}
	L.Push(lua.LBool(e.node.Snapshot().On(ch)))
	return 1
}

// relay.count() -> number of channels
func relayCount(L *lua.LState, e *Engine) int {
	L.Push(lua.LNumber(e.node.Config().RelayCount))
	return 1
}

// relay.after(seconds, callback): delayed execution on the script's VM
func relayAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(time.Duration(float64(seconds) * float64(time.Second)))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		ok := vm.post(func(L *lua.LState) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				e.logger.Error("after callback error", "id", vm.id, "err", err)
			}
		})
		if !ok {
			e.logger.Warn("after: command queue full", "id", vm.id)
		}
	}()
	return 0
}

// relay.log(msg)
func relayLog(L *lua.LState, vm *scriptVM, e *Engine) int {
	msg := L.CheckString(1)
	e.logger.Info("script log", "id", vm.id, "msg", msg)
	return 0
}
