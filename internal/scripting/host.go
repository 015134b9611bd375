// Package scripting hosts per-game reward scripts in sandboxed Lua and
// JavaScript runtimes. A host keeps one runtime per session so that script
// globals carry previous-frame state between calls, the way the original
// integration scripts are written.
package scripting

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sevketcakir/retro/internal/gamedata"
)

// Language identifies a script runtime.
type Language string

const (
	LangLua Language = "lua"
	LangJS  Language = "js"
)

const (
	// DefaultInstructionLimit caps Lua opcodes per call.
	DefaultInstructionLimit = 100_000

	// DefaultCallTimeout caps JS wall-clock time per call.
	DefaultCallTimeout = 1 * time.Second

	loadTimeout = 2 * time.Second
)

// Binding is a parsed scenario script binding such as "lua:calculate_reward".
type Binding struct {
	Lang     Language
	Function string
}

// ParseBinding splits a "lang:function" binding string.
func ParseBinding(s string) (Binding, error) {
	lang, fn, ok := strings.Cut(s, ":")
	if !ok || fn == "" {
		return Binding{}, fmt.Errorf("%w: %q", ErrBadBinding, s)
	}
	switch Language(lang) {
	case LangLua, LangJS:
		return Binding{Lang: Language(lang), Function: fn}, nil
	}
	return Binding{}, fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
}

// Host executes reward script functions against per-frame snapshots. Hosts
// are single-session and not safe for concurrent use.
type Host interface {
	// Load executes script source at the top level, defining functions and
	// initializing script globals.
	Load(source string) error

	// Call binds the snapshot as the script's data object, invokes the
	// named function and returns its numeric result.
	Call(fn string, snap gamedata.Snapshot) (float64, error)

	// Close releases the runtime. The host is unusable afterwards.
	Close()
}

// Options tune a host. Zero values pick the defaults above.
type Options struct {
	// InstructionLimit is the Lua opcode budget per call.
	InstructionLimit int

	// CallTimeout is the JS wall-clock budget per call.
	CallTimeout time.Duration

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.InstructionLimit <= 0 {
		o.InstructionLimit = DefaultInstructionLimit
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// NewHost builds a host for the given language.
func NewHost(lang Language, opts Options) (Host, error) {
	switch lang {
	case LangLua:
		return NewLuaHost(opts), nil
	case LangJS:
		return NewJSHost(opts), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
}

// RewardFunc adapts a hosted script function to the session reward source
// contract.
type RewardFunc struct {
	host Host
	fn   string
}

// NewRewardFunc binds fn on host as a reward source.
func NewRewardFunc(host Host, fn string) *RewardFunc {
	return &RewardFunc{host: host, fn: fn}
}

// CalculateReward invokes the bound script function.
func (f *RewardFunc) CalculateReward(snap gamedata.Snapshot) (float64, error) {
	return f.host.Call(f.fn, snap)
}

// ScoreFunc adapts a hosted script function to the session score source
// contract.
type ScoreFunc struct {
	host Host
	fn   string
}

// NewScoreFunc binds fn on host as a score source.
func NewScoreFunc(host Host, fn string) *ScoreFunc {
	return &ScoreFunc{host: host, fn: fn}
}

// CorrectScore invokes the bound script function.
func (f *ScoreFunc) CorrectScore(snap gamedata.Snapshot) (float64, error) {
	return f.host.Call(f.fn, snap)
}
