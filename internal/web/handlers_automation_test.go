//go:build !no_automation

package web

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigbee-bridge/internal/automation"
)

func setupAutomationServer(t *testing.T) (*testServer, *automation.Engine) {
	t.Helper()
	mgr, err := automation.NewManager(filepath.Join(t.TempDir(), "scripts"), testLogger())
	require.NoError(t, err)

	var engine *automation.Engine
	ts := setupTestServer(t, func(s *Server) {
		engine = automation.NewEngine(s.cmd.(automation.Commander), mgr, testLogger())
		WithAutomation(engine, mgr)(s)
	})
	engine.Start(ts.bus)
	t.Cleanup(engine.Stop)
	return ts, engine
}

type automationResponse struct {
	ID      string `json:"id"`
	LuaCode string `json:"lua_code"`
	Running bool   `json:"running"`
	Meta    struct {
		Name    string `json:"name"`
		Enabled bool   `json:"enabled"`
	} `json:"meta"`
}

func TestAutomationLifecycle(t *testing.T) {
	ts, engine := setupAutomationServer(t)

	w := ts.do(t, "POST", "/api/automations", `{"name":"Night Light","lua_code":"zigbee.log('x')","enabled":true}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created automationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "night_light", created.ID)
	assert.True(t, created.Running)
	assert.Equal(t, []string{"night_light"}, engine.Running())

	w = ts.do(t, "PUT", "/api/automations/night_light", `{"name":"Night Light","lua_code":"zigbee.log('y')","enabled":false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated automationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.False(t, updated.Running)
	assert.Empty(t, engine.Running())

	w = ts.do(t, "GET", "/api/automations", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []automationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.False(t, list[0].Meta.Enabled)

	w = ts.do(t, "DELETE", "/api/automations/night_light", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, "GET", "/api/automations/night_light", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(t, "DELETE", "/api/automations/night_light", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAutomationValidation(t *testing.T) {
	ts, _ := setupAutomationServer(t)

	w := ts.do(t, "POST", "/api/automations", `{"lua_code":"x()"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, "POST", "/api/automations", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, "PUT", "/api/automations/missing", `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAutomationRunInline(t *testing.T) {
	ts, _ := setupAutomationServer(t)

	w := ts.do(t, "POST", "/api/automations/_inline/run", `{"lua_code":"zigbee.permit_join(15) zigbee.log('done')"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var res automation.RunResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.OK, res.Error)
	assert.Equal(t, []string{"done"}, res.Logs)
	assert.Equal(t, []uint8{15}, ts.api.Joins())
}

func TestAutomationUnavailable(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(t, "GET", "/api/automations", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = ts.do(t, "POST", "/api/automations/_inline/run", `{"lua_code":""}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
