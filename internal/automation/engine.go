//go:build !no_automation

package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/antonmedv/expr"
	exprvm "github.com/antonmedv/expr/vm"
	lua "github.com/yuin/gopher-lua"

	"zigbee-bridge/internal/codec"
	"zigbee-bridge/internal/dispatch"
)

const runTimeout = 5 * time.Second

// Commander is the command path exposed to scripts.
type Commander interface {
	LevelControl(ctx context.Context, nodeID, endpointID int32, doc codec.Document) error
	PermitJoin(ctx context.Context, seconds int) error
	Devices() ([]codec.DeviceDoc, error)
}

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// luaHandler is a callback registered with zigbee.on. Filter keys are
// field paths into the envelope document ("device.eui64"), compared with
// the scalar given by the script. cond, when set, must evaluate to true.
type luaHandler struct {
	typ    string
	filter map[string]any
	cond   *exprvm.Program
	fn     *lua.LFunction
}

// scriptVM is one script's Lua state. All access to state goes through
// commands, drained by a single goroutine.
type scriptVM struct {
	state    *lua.LState
	commands chan func(*lua.LState)
	handlers []luaHandler
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex // protects handlers

	// logf, when set, captures zigbee.log and system.log output (one-shot runs).
	logf func(string)
}

// Engine runs enabled scripts and feeds them envelopes from the bus.
type Engine struct {
	cmd     Commander
	manager *Manager
	logger  *slog.Logger

	mu    sync.Mutex
	vms   map[string]*scriptVM
	unsub func()
}

// NewEngine creates an automation engine.
func NewEngine(cmd Commander, mgr *Manager, logger *slog.Logger) *Engine {
	return &Engine{
		cmd:     cmd,
		manager: mgr,
		logger:  logger.With("component", "automation"),
		vms:     make(map[string]*scriptVM),
	}
}

// Start subscribes to the bus and starts every enabled script.
func (e *Engine) Start(bus *dispatch.Bus) {
	e.unsub = bus.OnAll(e.dispatchEnvelope)

	scripts, err := e.manager.List()
	if err != nil {
		e.logger.Error("load scripts", "err", err)
		return
	}
	for _, s := range scripts {
		if !s.Meta.Enabled {
			continue
		}
		if err := e.startScript(s); err != nil {
			e.logger.Error("start script", "id", s.ID, "err", err)
		}
	}

	e.mu.Lock()
	n := len(e.vms)
	e.mu.Unlock()
	e.logger.Info("automation engine started", "scripts", n)
}

// Stop unsubscribes from the bus and stops all scripts.
func (e *Engine) Stop() {
	if e.unsub != nil {
		e.unsub()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, vm := range e.vms {
		vm.cancel()
		delete(e.vms, id)
	}
	e.logger.Info("automation engine stopped")
}

// Running returns the ids of the running scripts.
func (e *Engine) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.vms))
	for id := range e.vms {
		ids = append(ids, id)
	}
	return ids
}

// ReloadScript restarts a script from disk. A disabled script is only stopped.
func (e *Engine) ReloadScript(id string) error {
	e.stopScript(id)

	s, err := e.manager.Get(id)
	if err != nil {
		return fmt.Errorf("get script: %w", err)
	}
	if !s.Meta.Enabled {
		return nil
	}
	return e.startScript(s)
}

// StopScript stops a running script.
func (e *Engine) StopScript(id string) {
	e.stopScript(id)
}

// RunScript executes a stored script once in a throwaway VM.
func (e *Engine) RunScript(id string) *RunResult {
	s, err := e.manager.Get(id)
	if err != nil {
		return &RunResult{Error: err.Error(), Duration: "0s"}
	}
	return e.RunLuaCode(s.LuaCode)
}

// RunLuaCode executes code in a throwaway VM with a timeout. Handlers the
// code registers are each invoked once with a synthetic envelope carrying
// the handler's type and filter fields, so their actions run too.
func (e *Engine) RunLuaCode(code string) *RunResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	var (
		logs  []string
		logMu sync.Mutex
	)
	vm := e.newVM(ctx, cancel)
	vm.logf = func(msg string) {
		logMu.Lock()
		logs = append(logs, msg)
		logMu.Unlock()
	}
	L := vm.state
	defer L.Close()
	L.SetContext(ctx)

	fail := func(err error) *RunResult {
		msg := err.Error()
		if strings.Contains(msg, context.DeadlineExceeded.Error()) {
			msg = fmt.Sprintf("timeout (%s)", runTimeout)
		}
		logMu.Lock()
		defer logMu.Unlock()
		return &RunResult{Error: msg, Logs: logs, Duration: time.Since(start).String()}
	}

	if err := L.DoString(code); err != nil {
		return fail(err)
	}

	vm.mu.Lock()
	handlers := append([]luaHandler(nil), vm.handlers...)
	vm.mu.Unlock()

	for _, h := range handlers {
		event := L.NewTable()
		event.RawSetString("type", lua.LString(h.typ))
		for path, v := range h.filter {
			setPath(L, event, path, goToLua(L, v))
		}
		if err := L.CallByParam(lua.P{Fn: h.fn, NRet: 0, Protect: true}, event); err != nil {
			return fail(err)
		}
	}

	logMu.Lock()
	defer logMu.Unlock()
	return &RunResult{OK: true, Logs: logs, Duration: time.Since(start).String()}
}

// newVM creates a sandboxed Lua state with the script modules registered.
func (e *Engine) newVM(ctx context.Context, cancel context.CancelFunc) *scriptVM {
	L := lua.NewState()
	for _, name := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		L.SetGlobal(name, lua.LNil)
	}

	vm := &scriptVM{
		state:    L,
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
	}
	registerZigbeeModule(L, vm, e)
	registerSystemModule(L, vm, e)
	return vm
}

func (e *Engine) stopScript(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if vm, ok := e.vms[id]; ok {
		vm.cancel()
		delete(e.vms, id)
		e.logger.Info("script stopped", "id", id)
	}
}

func (e *Engine) startScript(s *Script) error {
	ctx, cancel := context.WithCancel(context.Background())
	vm := e.newVM(ctx, cancel)
	L := vm.state

	if err := L.DoString(s.LuaCode); err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("execute script %s: %w", s.ID, err)
	}

	e.mu.Lock()
	if old, ok := e.vms[s.ID]; ok {
		old.cancel()
	}
	e.vms[s.ID] = vm
	e.mu.Unlock()

	go func() {
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

// dispatchEnvelope queues every matching handler on its script's VM.
func (e *Engine) dispatchEnvelope(env codec.Envelope) {
	e.mu.Lock()
	vms := make([]*scriptVM, 0, len(e.vms))
	for _, vm := range e.vms {
		vms = append(vms, vm)
	}
	e.mu.Unlock()
	if len(vms) == 0 {
		return
	}

	doc, err := codec.ToDocument(env)
	if err != nil {
		e.logger.Error("envelope to document", "type", env.Type(), "err", err)
		return
	}

	for _, vm := range vms {
		vm.mu.Lock()
		handlers := append([]luaHandler(nil), vm.handlers...)
		vm.mu.Unlock()

		for _, h := range handlers {
			if vm.ctx.Err() != nil {
				break
			}
			if !matchesHandler(h, env.Type(), doc) {
				continue
			}
			fn := h.fn
			select {
			case vm.commands <- func(L *lua.LState) { e.callHandler(L, fn, doc) }:
			default:
				e.logger.Warn("script command channel full, dropping envelope", "type", env.Type())
			}
		}
	}
}

func matchesHandler(h luaHandler, typ string, doc codec.Document) bool {
	if h.typ != "*" && h.typ != typ {
		return false
	}
	for path, want := range h.filter {
		got, ok := lookupPath(doc, path)
		if !ok || !scalarEqual(got, want) {
			return false
		}
	}
	if h.cond != nil {
		return evalCondition(h.cond, doc)
	}
	return true
}

// compileCondition compiles a zigbee.on filter expression. Fields missing
// from an envelope evaluate to nil instead of failing compilation.
func compileCondition(src string) (*exprvm.Program, error) {
	program, err := expr.Compile(src, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("filter expression: %w", err)
	}
	return program, nil
}

// evalCondition reports false when the expression fails at runtime.
func evalCondition(program *exprvm.Program, doc codec.Document) bool {
	out, err := expr.Run(program, map[string]any(doc))
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}

// lookupPath resolves a dotted path through nested objects.
func lookupPath(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// scalarEqual compares two decoded scalars; containers never match.
func scalarEqual(a, b any) bool {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && strings.EqualFold(x, y)
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	default:
		return false
	}
}

func (e *Engine) callHandler(L *lua.LState, fn *lua.LFunction, doc codec.Document) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("lua handler panic", "err", r)
		}
	}()

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, goToLua(L, map[string]any(doc))); err != nil {
		e.logger.Error("lua handler error", "err", err)
	}
}

// setPath stores v at a dotted path, creating intermediate tables.
func setPath(L *lua.LState, t *lua.LTable, path string, v lua.LValue) {
	keys := strings.Split(path, ".")
	for _, key := range keys[:len(keys)-1] {
		next, ok := t.RawGetString(key).(*lua.LTable)
		if !ok {
			next = L.NewTable()
			t.RawSetString(key, next)
		}
		t = next
	}
	t.RawSetString(keys[len(keys)-1], v)
}

// goToLua converts a decoded document value to Lua.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case float64:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case map[string]any:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	case []any:
		t := L.NewTable()
		for i, vv := range val {
			t.RawSetInt(i+1, goToLua(L, vv))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// luaToGo converts a Lua value to the shapes codec.Document expects. A
// table with array elements becomes []any, any other table a map.
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if n := val.MaxN(); n > 0 {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, luaToGo(val.RawGetInt(i)))
			}
			return out
		}
		out := make(map[string]any)
		val.ForEach(func(k, vv lua.LValue) {
			if ks, ok := k.(lua.LString); ok {
				out[string(ks)] = luaToGo(vv)
			}
		})
		return out
	default:
		return nil
	}
}
