//go:build !no_automation

package automation

import (
	"context"
	"math"
	"time"

	lua "github.com/yuin/gopher-lua"

	"zigbee-bridge/internal/codec"
	"zigbee-bridge/internal/control"
)

const (
	maxHandlersPerScript = 100
	commandTimeout       = 5 * time.Second
)

// registerZigbeeModule registers the `zigbee` global table.
func registerZigbeeModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()
	mod.RawSetString("on", L.NewFunction(func(L *lua.LState) int { return zigbeeOn(L, vm) }))
	mod.RawSetString("level_control", L.NewFunction(func(L *lua.LState) int { return zigbeeLevelControl(L, vm, e) }))
	mod.RawSetString("permit_join", L.NewFunction(func(L *lua.LState) int { return zigbeePermitJoin(L, vm, e) }))
	mod.RawSetString("devices", L.NewFunction(func(L *lua.LState) int { return zigbeeDevices(L, e) }))
	mod.RawSetString("after", L.NewFunction(func(L *lua.LState) int { return zigbeeAfter(L, vm, e) }))
	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int { return zigbeeLog(L, vm, e) }))
	L.SetGlobal("zigbee", mod)
}

// zigbee.on(type, [filter,] fn). Type "*" matches every envelope. filter is
// either a table of field paths to values or a boolean expression over the
// envelope ("value > 2000 && endpoint_id == 1").
func zigbeeOn(L *lua.LState, vm *scriptVM) int {
	h := luaHandler{typ: L.CheckString(1)}
	if L.GetTop() >= 3 {
		switch arg := L.Get(2).(type) {
		case *lua.LTable:
			h.filter, _ = luaToGo(arg).(map[string]any)
		case lua.LString:
			cond, err := compileCondition(string(arg))
			if err != nil {
				L.ArgError(2, err.Error())
				return 0
			}
			h.cond = cond
		default:
			L.ArgError(2, "filter must be a table or an expression string")
			return 0
		}
		h.fn = L.CheckFunction(3)
	} else {
		h.fn = L.CheckFunction(2)
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

// pushResult returns true, or false plus the error document's message.
func pushResult(L *lua.LState, err error) int {
	if err == nil {
		L.Push(lua.LTrue)
		return 1
	}
	L.Push(lua.LFalse)
	L.Push(lua.LString(control.ErrorDocument(err).Message))
	return 2
}

// checkInt32 raises an argument error unless argument n is an integral
// number that fits in an int32.
func checkInt32(L *lua.LState, n int) int32 {
	v := float64(L.CheckNumber(n))
	if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
		L.ArgError(n, "integer out of range")
		return 0
	}
	return int32(v)
}

// zigbee.level_control(node_id, endpoint_id, {type=..., value=..., ...})
func zigbeeLevelControl(L *lua.LState, vm *scriptVM, e *Engine) int {
	nodeID := checkInt32(L, 1)
	endpointID := checkInt32(L, 2)
	doc, _ := luaToGo(L.CheckTable(3)).(map[string]any)

	ctx, cancel := context.WithTimeout(vm.ctx, commandTimeout)
	defer cancel()
	err := e.cmd.LevelControl(ctx, nodeID, endpointID, codec.Document(doc))
	if err != nil {
		e.logger.Warn("script level control", "node_id", nodeID, "endpoint_id", endpointID, "err", err)
	}
	return pushResult(L, err)
}

// zigbee.permit_join(seconds)
func zigbeePermitJoin(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckInt(1)

	ctx, cancel := context.WithTimeout(vm.ctx, commandTimeout)
	defer cancel()
	err := e.cmd.PermitJoin(ctx, seconds)
	if err != nil {
		e.logger.Warn("script permit join", "seconds", seconds, "err", err)
	}
	return pushResult(L, err)
}

// zigbee.devices() returns {{eui64=..., node_id=..., endpoints={ids}}, ...}.
func zigbeeDevices(L *lua.LState, e *Engine) int {
	tbl := L.NewTable()
	devices, err := e.cmd.Devices()
	if err != nil {
		e.logger.Warn("script list devices", "err", err)
		L.Push(tbl)
		return 1
	}

	for i, dev := range devices {
		d := L.NewTable()
		d.RawSetString("eui64", lua.LString(dev.EUI64))
		d.RawSetString("node_id", lua.LNumber(dev.NodeID))
		eps := L.NewTable()
		for j, ep := range dev.Endpoints {
			eps.RawSetInt(j+1, lua.LNumber(ep.EndpointID))
		}
		d.RawSetString("endpoints", eps)
		tbl.RawSetInt(i+1, d)
	}
	L.Push(tbl)
	return 1
}

// zigbee.after(seconds, fn) runs fn later on the script's VM.
func zigbeeAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
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

		select {
		case vm.commands <- func(L *lua.LState) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				e.logger.Error("after callback error", "err", err)
			}
		}:
		default:
			e.logger.Warn("after: command channel full")
		}
	}()
	return 0
}

// zigbee.log(msg)
func zigbeeLog(L *lua.LState, vm *scriptVM, e *Engine) int {
	msg := L.CheckString(1)
	if vm.logf != nil {
		vm.logf(msg)
	}
	e.logger.Info("script log", "msg", msg)
	return 0
}
