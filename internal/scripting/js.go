package scripting

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/sevketcakir/retro/internal/gamedata"
)

// JSHost runs reward scripts on a goja runtime. Like the Lua host it keeps
// one runtime per session so script globals persist between calls. Runaway
// scripts are cut off by interrupting the runtime after a wall-clock
// timeout.
type JSHost struct {
	runtime *goja.Runtime
	timeout time.Duration
	logger  *zap.Logger
	closed  bool
}

// NewJSHost builds a runtime with the dangerous globals blocked and a log
// helper injected.
func NewJSHost(opts Options) *JSHost {
	opts = opts.withDefaults()

	h := &JSHost{
		runtime: goja.New(),
		timeout: opts.CallTimeout,
		logger:  opts.Logger,
	}

	h.runtime.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		h.logger.Debug("js script log", zap.String("message", strings.Join(parts, " ")))
		return goja.Undefined()
	})

	console := h.runtime.NewObject()
	console.Set("log", h.runtime.Get("log"))
	h.runtime.Set("console", console)

	// Block escape hatches. Math stays available.
	h.runtime.Set("require", goja.Undefined())
	h.runtime.Set("fetch", goja.Undefined())
	h.runtime.Set("XMLHttpRequest", goja.Undefined())
	h.runtime.Set("eval", goja.Undefined())
	h.runtime.Set("Function", goja.Undefined())

	return h
}

// Load executes script source at the top level.
func (h *JSHost) Load(source string) error {
	if h.closed {
		return ErrHostClosed
	}
	return h.runWithTimeout(loadTimeout, func() error {
		if _, err := h.runtime.RunString(source); err != nil {
			return fmt.Errorf("scripting: js load: %w", err)
		}
		return nil
	})
}

// Call invokes a script-defined global function with the snapshot bound as
// the data object.
func (h *JSHost) Call(fn string, snap gamedata.Snapshot) (float64, error) {
	if h.closed {
		return 0, ErrHostClosed
	}

	// A timeout on an earlier call leaves the runtime interrupted.
	h.runtime.ClearInterrupt()

	var result float64
	err := h.runWithTimeout(h.timeout, func() error {
		h.runtime.Set("data", snap.Vars())

		target := h.runtime.Get(fn)
		if target == nil || goja.IsUndefined(target) || goja.IsNull(target) {
			return fmt.Errorf("%w: %s", ErrFunctionNotFound, fn)
		}
		callable, ok := goja.AssertFunction(target)
		if !ok {
			return fmt.Errorf("%w: %s", ErrFunctionNotFound, fn)
		}

		out, err := callable(goja.Undefined())
		if err != nil {
			return fmt.Errorf("scripting: js call %s: %w", fn, err)
		}
		if goja.IsUndefined(out) || goja.IsNull(out) {
			return fmt.Errorf("%w: %s returned %s", ErrBadReturn, fn, out)
		}
		f := out.ToFloat()
		if math.IsNaN(f) {
			return fmt.Errorf("%w: %s returned NaN", ErrBadReturn, fn)
		}
		result = f
		return nil
	})
	return result, err
}

// Close interrupts any in-flight execution and retires the runtime.
func (h *JSHost) Close() {
	if h.closed {
		return
	}
	h.closed = true
	h.runtime.Interrupt("host closed")
}

func (h *JSHost) runWithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		// Interrupt a runaway script execution.
		h.runtime.Interrupt("script execution timeout")
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("script timed out: %w", err)
			}
			return fmt.Errorf("script timed out")
		case <-time.After(200 * time.Millisecond):
			return fmt.Errorf("script timed out")
		}
	}
}
