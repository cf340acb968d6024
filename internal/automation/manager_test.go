//go:build !no_automation

package automation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "scripts"), testLogger())
	require.NoError(t, err)
	return m
}

func TestManagerListEmpty(t *testing.T) {
	m := newTestManager(t)
	scripts, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, scripts)
}

func TestManagerSaveAndGet(t *testing.T) {
	m := newTestManager(t)

	saved, err := m.Save(&Script{
		Meta:    ScriptMeta{Name: "Hall Light", Description: "dim at night", Enabled: true},
		LuaCode: `zigbee.log("hello")`,
	})
	require.NoError(t, err)
	assert.Equal(t, "hall_light", saved.ID)

	got, err := m.Get(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.Meta, got.Meta)
	assert.Equal(t, "zigbee.log(\"hello\")\n", got.LuaCode)
	assert.Equal(t, filepath.Join(m.dir, "hall_light.lua"), got.FilePath)
}

func TestManagerUniqueID(t *testing.T) {
	m := newTestManager(t)

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		s, err := m.Save(&Script{Meta: ScriptMeta{Name: "Same"}})
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"same", "same_1", "same_2"}, ids)

	s, err := m.Save(&Script{Meta: ScriptMeta{Name: "!!!"}})
	require.NoError(t, err)
	assert.Equal(t, "script", s.ID)
}

func TestManagerSaveExistingID(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Save(&Script{ID: "fixed", Meta: ScriptMeta{Name: "v1"}})
	require.NoError(t, err)
	s.Meta.Name = "v2"
	_, err = m.Save(s)
	require.NoError(t, err)

	scripts, err := m.List()
	require.NoError(t, err)
	require.Len(t, scripts, 1)
	assert.Equal(t, "v2", scripts[0].Meta.Name)
}

func TestManagerListSkipsMalformed(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(m.dir, "bad.lua"), []byte("-- {not json\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(m.dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(m.dir, "plain.lua"), []byte("zigbee.log(1)\n"), 0o644))

	scripts, err := m.List()
	require.NoError(t, err)
	require.Len(t, scripts, 1)
	assert.Equal(t, "plain", scripts[0].ID)
	assert.Equal(t, ScriptMeta{Name: "plain", Enabled: true}, scripts[0].Meta)
	assert.Equal(t, "zigbee.log(1)\n", scripts[0].LuaCode)
}

func TestManagerDelete(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Save(&Script{Meta: ScriptMeta{Name: "gone"}})
	require.NoError(t, err)

	require.NoError(t, m.Delete(s.ID))
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrScriptNotFound)
	assert.ErrorIs(t, m.Delete(s.ID), ErrScriptNotFound)
}

func TestManagerRejectsUnsafeIDs(t *testing.T) {
	m := newTestManager(t)
	for _, id := range []string{"", ".", "..", "../etc", "a/b", `a\b`} {
		_, err := m.Get(id)
		assert.Error(t, err, id)
		assert.Error(t, m.Delete(id), id)
	}
	_, err := m.Save(&Script{ID: "../x"})
	assert.Error(t, err)
}

func TestSerializeScript(t *testing.T) {
	s := &Script{Meta: ScriptMeta{Name: "n", Enabled: true}, LuaCode: "a()"}
	assert.Equal(t, "-- {\"name\":\"n\",\"enabled\":true}\n\na()\n", serializeScript(s))

	empty := &Script{Meta: ScriptMeta{Name: "e"}}
	assert.Equal(t, "-- {\"name\":\"e\",\"enabled\":false}\n", serializeScript(empty))
}

func TestSlugify(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Hello World", "hello_world"},
		{"  trim me  ", "trim_me"},
		{"a--b__c", "a_b_c"},
		{"", ""},
		{"Кухня light 2", "light_2"},
		{"very long name that goes on and on forever", "very_long_name_that_goes_on_and_on_forev"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, slugify(tt.in), tt.in)
	}
}
