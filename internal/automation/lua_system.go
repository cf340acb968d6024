//go:build !no_automation

package automation

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// datetimeComponents backs system.datetime(component).
var datetimeComponents = map[string]func(time.Time) lua.LValue{
	"hour":      func(t time.Time) lua.LValue { return lua.LNumber(t.Hour()) },
	"minute":    func(t time.Time) lua.LValue { return lua.LNumber(t.Minute()) },
	"second":    func(t time.Time) lua.LValue { return lua.LNumber(t.Second()) },
	"weekday":   func(t time.Time) lua.LValue { return lua.LNumber(t.Weekday()) },
	"day":       func(t time.Time) lua.LValue { return lua.LNumber(t.Day()) },
	"month":     func(t time.Time) lua.LValue { return lua.LNumber(t.Month()) },
	"year":      func(t time.Time) lua.LValue { return lua.LNumber(t.Year()) },
	"timestamp": func(t time.Time) lua.LValue { return lua.LNumber(t.Unix()) },
	"time_str":  func(t time.Time) lua.LValue { return lua.LString(t.Format(time.TimeOnly)) },
	"date_str":  func(t time.Time) lua.LValue { return lua.LString(t.Format(time.DateOnly)) },
}

func registerSystemModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()
	mod.RawSetString("datetime", L.NewFunction(systemDatetime))
	mod.RawSetString("time_between", L.NewFunction(systemTimeBetween))
	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int { return systemLog(L, vm, e) }))
	L.SetGlobal("system", mod)
}

func systemDatetime(L *lua.LState) int {
	name := L.CheckString(1)
	get, ok := datetimeComponents[name]
	if !ok {
		known := make([]string, 0, len(datetimeComponents))
		for k := range datetimeComponents {
			known = append(known, k)
		}
		sort.Strings(known)
		L.ArgError(1, "unknown component "+name+" (want one of "+strings.Join(known, ", ")+")")
		return 0
	}
	L.Push(get(time.Now()))
	return 1
}

// system.time_between(from_hour, to_hour) over [from, to), wrapping past
// midnight when from > to.
func systemTimeBetween(L *lua.LState) int {
	L.Push(lua.LBool(hourBetween(time.Now().Hour(), L.CheckInt(1), L.CheckInt(2))))
	return 1
}

func hourBetween(hour, from, to int) bool {
	if from <= to {
		return hour >= from && hour < to
	}
	return hour >= from || hour < to
}

// system.log(level, msg). Unknown levels log at info.
func systemLog(L *lua.LState, vm *scriptVM, e *Engine) int {
	levelName := L.CheckString(1)
	msg := L.CheckString(2)

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		level = slog.LevelInfo
	}
	ctx := context.Background()
	if vm != nil {
		ctx = vm.ctx
		if vm.logf != nil {
			vm.logf(level.String() + ": " + msg)
		}
	}
	e.logger.Log(ctx, level, "script log", "msg", msg)
	return 0
}
