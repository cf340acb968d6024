//go:build no_automation

package automation

import (
	"context"
	"errors"
	"log/slog"

	"zigbee-bridge/internal/codec"
	"zigbee-bridge/internal/dispatch"
)

// Commander is the command path exposed to scripts.
type Commander interface {
	LevelControl(ctx context.Context, nodeID, endpointID int32, doc codec.Document) error
	PermitJoin(ctx context.Context, seconds int) error
	Devices() ([]codec.DeviceDoc, error)
}

// ScriptMeta is the metadata stored in a script's header line.
type ScriptMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// Script is one automation script.
type Script struct {
	ID       string     `json:"id"`
	Meta     ScriptMeta `json:"meta"`
	LuaCode  string     `json:"lua_code"`
	FilePath string     `json:"-"`
}

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// ErrScriptNotFound is returned by Get and Delete for an unknown id.
var ErrScriptNotFound = errors.New("script not found")

// Manager is a no-op stub when automation is disabled.
type Manager struct{}

// NewManager returns a nil manager when automation is disabled.
func NewManager(_ string, _ *slog.Logger) (*Manager, error) { return nil, nil }

func (m *Manager) List() ([]*Script, error)        { return nil, nil }
func (m *Manager) Get(_ string) (*Script, error)   { return nil, nil }
func (m *Manager) Save(s *Script) (*Script, error) { return s, nil }
func (m *Manager) Delete(_ string) error           { return nil }

// Engine is a no-op stub when automation is disabled.
type Engine struct{}

// NewEngine returns a no-op engine when automation is disabled.
func NewEngine(_ Commander, _ *Manager, _ *slog.Logger) *Engine { return &Engine{} }

func (e *Engine) Start(_ *dispatch.Bus)       {}
func (e *Engine) Stop()                       {}
func (e *Engine) Running() []string           { return nil }
func (e *Engine) ReloadScript(_ string) error { return nil }
func (e *Engine) StopScript(_ string)         {}

func (e *Engine) RunScript(_ string) *RunResult {
	return &RunResult{Error: "automation disabled"}
}

func (e *Engine) RunLuaCode(_ string) *RunResult {
	return &RunResult{Error: "automation disabled"}
}
