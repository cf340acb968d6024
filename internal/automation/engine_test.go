//go:build !no_automation

package automation

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	exprvm "github.com/antonmedv/expr/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"zigbee-bridge/internal/codec"
	"zigbee-bridge/internal/control"
	"zigbee-bridge/internal/dispatch"
	"zigbee-bridge/internal/ncp"
	"zigbee-bridge/internal/ncp/ncptest"
	"zigbee-bridge/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	engine *Engine
	mgr    *Manager
	api    *ncptest.Stub
	store  *store.BoltStore
	bus    *dispatch.Bus
	dir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "auto.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	dir := filepath.Join(t.TempDir(), "scripts")
	mgr, err := NewManager(dir, testLogger())
	require.NoError(t, err)

	api := &ncptest.Stub{}
	ctrl := control.New(api, st, testLogger())
	env := &testEnv{
		engine: NewEngine(ctrl, mgr, testLogger()),
		mgr:    mgr,
		api:    api,
		store:  st,
		bus:    dispatch.NewBus(testLogger()),
		dir:    dir,
	}
	t.Cleanup(env.engine.Stop)
	return env
}

func (env *testEnv) writeScript(t *testing.T, id, code string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, id+".lua"), []byte(code), 0o644))
}

func attributeChange(ep int32, attr string, value any) codec.AttributeChangeEnvelope {
	return codec.AttributeChangeEnvelope{
		Header:     codec.Header{Kind: codec.TypeAttributeChange},
		EndpointID: ep,
		Attribute:  attr,
		Value:      value,
	}
}

func TestEngineDispatchesMatchingEnvelope(t *testing.T) {
	env := newTestEnv(t)
	env.writeScript(t, "dim", `
zigbee.on("attribute_change", {endpoint_id = 1, attribute = "level"}, function(ev)
  zigbee.level_control(0x1234, 2, {type = "moveto", value = ev.value, transition_time = 5})
end)
`)
	env.engine.Start(env.bus)
	assert.Equal(t, []string{"dim"}, env.engine.Running())

	env.bus.Publish(attributeChange(2, "level", 10))
	env.bus.Publish(attributeChange(1, "onoff", true))
	env.bus.Publish(attributeChange(1, "level", 42))

	require.Eventually(t, func() bool { return len(env.api.Levels()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, ncp.LevelControlRequest{
		NodeID:     0x1234,
		EndpointID: 2,
		Command:    ncp.LevelControlCommand{Kind: ncp.LevelMoveTo, Value: 42, TransitionTime: 5},
	}, env.api.Levels()[0])
}

func TestEngineNestedFilter(t *testing.T) {
	env := newTestEnv(t)
	env.writeScript(t, "join", `
zigbee.on("device_discover", {["device.eui64"] = "00124B0001020304", status = "found"}, function(ev)
  zigbee.permit_join(0)
end)
`)
	env.engine.Start(env.bus)

	discover := func(eui, status string) codec.DeviceDiscoverEnvelope {
		return codec.DeviceDiscoverEnvelope{
			Header: codec.Header{Kind: codec.TypeDeviceDiscover},
			Status: status,
			Device: codec.DeviceDoc{EUI64: eui},
		}
	}
	env.bus.Publish(discover("00124b0001020399", codec.DiscoveryFound))
	env.bus.Publish(discover("00124b0001020304", codec.DiscoveryLost))
	env.bus.Publish(discover("00124b0001020304", codec.DiscoveryFound))

	require.Eventually(t, func() bool { return len(env.api.Joins()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []uint8{0}, env.api.Joins())
}

func TestEngineExpressionFilter(t *testing.T) {
	env := newTestEnv(t)
	env.writeScript(t, "bright", `
zigbee.on("attribute_change", "attribute == 'level' && value >= 40", function(ev)
  zigbee.permit_join(ev.endpoint_id)
end)
`)
	env.engine.Start(env.bus)

	env.bus.Publish(attributeChange(1, "level", 10))
	env.bus.Publish(attributeChange(2, "onoff", true))
	env.bus.Publish(attributeChange(3, "level", 42))

	require.Eventually(t, func() bool { return len(env.api.Joins()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []uint8{3}, env.api.Joins())
}

func TestEngineSkipsDisabledAndBrokenScripts(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.mgr.Save(&Script{ID: "off", Meta: ScriptMeta{Name: "off"}, LuaCode: `zigbee.log("x")`})
	require.NoError(t, err)
	env.writeScript(t, "broken", `this is not lua`)
	env.writeScript(t, "ok", `zigbee.log("loaded")`)

	env.engine.Start(env.bus)
	assert.Equal(t, []string{"ok"}, env.engine.Running())
}

func TestEngineReloadAndStop(t *testing.T) {
	env := newTestEnv(t)
	env.writeScript(t, "s", `zigbee.on("*", function(ev) zigbee.permit_join(10) end)`)
	env.engine.Start(env.bus)
	require.Len(t, env.engine.Running(), 1)

	s, err := env.mgr.Get("s")
	require.NoError(t, err)
	s.Meta.Enabled = false
	_, err = env.mgr.Save(s)
	require.NoError(t, err)

	require.NoError(t, env.engine.ReloadScript("s"))
	assert.Empty(t, env.engine.Running())

	env.bus.Publish(attributeChange(1, "level", 1))
	assert.Never(t, func() bool { return len(env.api.Joins()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	assert.Error(t, env.engine.ReloadScript("missing"))
}

func TestRunLuaCodeCapturesLogs(t *testing.T) {
	env := newTestEnv(t)
	res := env.engine.RunLuaCode(`zigbee.log("hello") zigbee.log("world")`)
	assert.True(t, res.OK, res.Error)
	assert.Equal(t, []string{"hello", "world"}, res.Logs)
}

func TestRunLuaCodeInvokesHandlers(t *testing.T) {
	env := newTestEnv(t)
	res := env.engine.RunLuaCode(`
zigbee.on("attribute_change", {endpoint_id = 3}, function(ev)
  zigbee.log(ev.type .. " " .. ev.endpoint_id)
  zigbee.permit_join(30)
end)
`)
	require.True(t, res.OK, res.Error)
	assert.Equal(t, []string{"attribute_change 3"}, res.Logs)
	assert.Equal(t, []uint8{30}, env.api.Joins())
}

func TestRunLuaCodeReportsCommandFailure(t *testing.T) {
	env := newTestEnv(t)
	env.api.Err = &ncp.Error{Op: "LEVEL_CONTROL", Code: ncp.CodeBusy}

	res := env.engine.RunLuaCode(`
local ok, msg = zigbee.level_control(1, 1, {type = "stop"})
zigbee.log(tostring(ok) .. " " .. msg)
local ok2, msg2 = zigbee.level_control(1, 1, {type = "bogus"})
zigbee.log(tostring(ok2) .. " " .. msg2)
`)
	require.True(t, res.OK, res.Error)
	assert.Equal(t, []string{"false Busy", "false Bad arguments"}, res.Logs)
}

func TestRunLuaCodeErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		code string
	}{
		{"syntax", `zigbee.log(`},
		{"runtime", `error("boom")`},
		{"sandbox os", `os.exit(1)`},
		{"sandbox io", `io.open("/etc/passwd")`},
		{"handler error", `zigbee.on("x", function(ev) error("inside") end)`},
		{"bad filter expression", `zigbee.on("x", "value >", function(ev) end)`},
		{"bad filter type", `zigbee.on("x", 5, function(ev) end)`},
		{"node id too large", `zigbee.level_control(4294967296, 1, {type = "stop"})`},
		{"node id too small", `zigbee.level_control(-2147483649, 1, {type = "stop"})`},
		{"endpoint id too large", `zigbee.level_control(1, 2147483648, {type = "stop"})`},
		{"fractional node id", `zigbee.level_control(1.5, 1, {type = "stop"})`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.engine.RunLuaCode(tt.code)
			assert.False(t, res.OK)
			assert.NotEmpty(t, res.Error)
		})
	}
	assert.Empty(t, env.api.Levels())
}

func TestRunLuaCodeTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the run timeout")
	}
	env := newTestEnv(t)
	res := env.engine.RunLuaCode(`while true do end`)
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "timeout")
}

func TestRunScript(t *testing.T) {
	env := newTestEnv(t)
	env.writeScript(t, "hello", `zigbee.log("hi")`)

	res := env.engine.RunScript("hello")
	assert.True(t, res.OK)
	assert.Equal(t, []string{"hi"}, res.Logs)

	res = env.engine.RunScript("nope")
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "script not found")
}

func TestZigbeeDevices(t *testing.T) {
	env := newTestEnv(t)
	doc := codec.EncodeDevice(ncp.Device{
		EUI64:     [8]byte{0, 0x12, 0x4b, 0, 1, 2, 3, 4},
		NodeID:    0x2233,
		Endpoints: []ncp.Endpoint{ncp.NewEndpoint(0x2233, 1), ncp.NewEndpoint(0x2233, 2)},
	})
	require.NoError(t, env.store.SaveDevice(&store.Device{DeviceDoc: doc}))

	res := env.engine.RunLuaCode(`
for _, d in ipairs(zigbee.devices()) do
  zigbee.log(d.eui64 .. " " .. d.node_id .. " " .. #d.endpoints)
end
`)
	require.True(t, res.OK, res.Error)
	assert.Equal(t, []string{"00124b0001020304 8755 2"}, res.Logs)
}

func TestTooManyHandlers(t *testing.T) {
	env := newTestEnv(t)
	res := env.engine.RunLuaCode(`
for i = 1, 101 do
  zigbee.on("x", function(ev) end)
end
`)
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "too many handlers")
}

func mustCondition(t *testing.T, src string) *exprvm.Program {
	t.Helper()
	program, err := compileCondition(src)
	require.NoError(t, err)
	return program
}

func TestMatchesHandler(t *testing.T) {
	doc := codec.Document{
		"type":   "device_discover",
		"status": "found",
		"device": map[string]any{"eui64": "00124b0001020304", "node_id": float64(5)},
	}

	tests := []struct {
		name   string
		h      luaHandler
		typ    string
		expect bool
	}{
		{"type only", luaHandler{typ: "device_discover"}, "device_discover", true},
		{"wildcard", luaHandler{typ: "*"}, "device_discover", true},
		{"wrong type", luaHandler{typ: "level_control"}, "device_discover", false},
		{"top-level filter", luaHandler{typ: "device_discover", filter: map[string]any{"status": "found"}}, "device_discover", true},
		{"nested filter", luaHandler{typ: "device_discover", filter: map[string]any{"device.node_id": float64(5)}}, "device_discover", true},
		{"case-insensitive string", luaHandler{typ: "device_discover", filter: map[string]any{"device.eui64": "00124B0001020304"}}, "device_discover", true},
		{"mismatch", luaHandler{typ: "device_discover", filter: map[string]any{"status": "lost"}}, "device_discover", false},
		{"missing path", luaHandler{typ: "device_discover", filter: map[string]any{"device.missing": "x"}}, "device_discover", false},
		{"container never matches", luaHandler{typ: "device_discover", filter: map[string]any{"device": "x"}}, "device_discover", false},
		{"type mismatch", luaHandler{typ: "device_discover", filter: map[string]any{"device.node_id": "5"}}, "device_discover", false},
		{"expression", luaHandler{typ: "*", cond: mustCondition(t, `device.node_id > 4 && status == "found"`)}, "device_discover", true},
		{"expression false", luaHandler{typ: "*", cond: mustCondition(t, `device.node_id > 5`)}, "device_discover", false},
		{"expression on missing field", luaHandler{typ: "*", cond: mustCondition(t, `missing.field == 1`)}, "device_discover", false},
		{"filter and expression", luaHandler{typ: "device_discover", filter: map[string]any{"status": "lost"}, cond: mustCondition(t, `true`)}, "device_discover", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, matchesHandler(tt.h, tt.typ, doc))
		})
	}
}

func TestLuaConversions(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	require.NoError(t, L.DoString(`t = {type = "moveto", value = 10, auto_onoff = true, list = {1, 2, 3}, nested = {a = "b"}}`))
	got := luaToGo(L.GetGlobal("t"))
	assert.Equal(t, map[string]any{
		"type":       "moveto",
		"value":      float64(10),
		"auto_onoff": true,
		"list":       []any{float64(1), float64(2), float64(3)},
		"nested":     map[string]any{"a": "b"},
	}, got)
	assert.Nil(t, luaToGo(lua.LNil))

	tbl, ok := goToLua(L, map[string]any{"n": float64(3), "s": "x", "l": []any{true}, "z": nil}).(*lua.LTable)
	require.True(t, ok)
	assert.Equal(t, lua.LNumber(3), tbl.RawGetString("n"))
	assert.Equal(t, lua.LString("x"), tbl.RawGetString("s"))
	assert.Equal(t, lua.LTrue, tbl.RawGetString("l").(*lua.LTable).RawGetInt(1))
	assert.Equal(t, lua.LNil, tbl.RawGetString("z"))
	assert.Equal(t, lua.LTString, goToLua(L, struct{}{}).Type())
}
