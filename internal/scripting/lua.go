package scripting

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/sevketcakir/retro/internal/gamedata"
)

// countingContext is a context.Context that cancels itself after Done() has
// been called limit times. GopherLua's main loop calls Done() once per
// opcode, which makes this an exact instruction budget.
type countingContext struct {
	context.Context
	cancel    context.CancelFunc
	remaining *atomic.Int64
}

func (c *countingContext) Done() <-chan struct{} {
	if c.remaining.Add(-1) <= 0 {
		c.cancel()
	}
	return c.Context.Done()
}

func newCountingContext(limit int) (context.Context, context.CancelFunc) {
	base, cancel := context.WithCancel(context.Background())
	rem := &atomic.Int64{}
	rem.Store(int64(limit))
	return &countingContext{Context: base, cancel: cancel, remaining: rem}, cancel
}

// LuaHost runs reward scripts on a sandboxed GopherLua state. The state
// lives for the whole session: script globals such as previous_health
// persist between calls. Each Load and Call runs under a fresh opcode
// budget so a runaway script cannot stall the step loop.
type LuaHost struct {
	state  *lua.LState
	limit  int
	logger *zap.Logger
	closed bool
}

// NewLuaHost builds a sandboxed state with only the base, table, string and
// math libraries opened and the escape hatches removed.
func NewLuaHost(opts Options) *LuaHost {
	opts = opts.withDefaults()

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require", "print"} {
		L.SetGlobal(name, lua.LNil)
	}

	h := &LuaHost{state: L, limit: opts.InstructionLimit, logger: opts.Logger}

	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, L.GetTop())
		for i := range parts {
			parts[i] = L.Get(i + 1).String()
		}
		h.logger.Debug("lua script log", zap.String("message", strings.Join(parts, " ")))
		return 0
	}))

	return h
}

// Load executes script source at the top level.
func (h *LuaHost) Load(source string) error {
	if h.closed {
		return ErrHostClosed
	}
	return h.withBudget(func() error {
		if err := h.state.DoString(source); err != nil {
			return fmt.Errorf("scripting: lua load: %w", err)
		}
		return nil
	})
}

// Call invokes a script-defined global function with the snapshot bound as
// the data table.
func (h *LuaHost) Call(fn string, snap gamedata.Snapshot) (float64, error) {
	if h.closed {
		return 0, ErrHostClosed
	}

	target := h.state.GetGlobal(fn)
	if target == lua.LNil {
		return 0, fmt.Errorf("%w: %s", ErrFunctionNotFound, fn)
	}

	data := h.state.NewTable()
	for name, value := range snap.Vars() {
		h.state.SetField(data, name, lua.LNumber(value))
	}
	h.state.SetGlobal("data", data)

	var result float64
	err := h.withBudget(func() error {
		if err := h.state.CallByParam(lua.P{Fn: target, NRet: 1, Protect: true}); err != nil {
			return fmt.Errorf("scripting: lua call %s: %w", fn, err)
		}
		ret := h.state.Get(-1)
		h.state.Pop(1)

		n, ok := ret.(lua.LNumber)
		if !ok {
			return fmt.Errorf("%w: %s returned %s", ErrBadReturn, fn, ret.Type())
		}
		result = float64(n)
		return nil
	})
	return result, err
}

// Close shuts the Lua state down.
func (h *LuaHost) Close() {
	if h.closed {
		return
	}
	h.closed = true
	h.state.Close()
}

// withBudget runs fn under a fresh opcode budget, then detaches it so the
// spent budget does not leak into the next call.
func (h *LuaHost) withBudget(fn func() error) error {
	ctx, cancel := newCountingContext(h.limit)
	h.state.SetContext(ctx)
	err := fn()
	cancel()
	h.state.RemoveContext()
	return err
}
