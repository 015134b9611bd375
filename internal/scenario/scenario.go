// Package scenario models the per-game configuration file that binds reward
// behavior to a game integration: either a hosted script function or
// declarative per-variable terms, plus optional end-of-episode conditions.
package scenario

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"

	"github.com/sevketcakir/retro/internal/gamedata"
)

// Measurement selects how a variable is read each frame.
const (
	MeasureDelta    = "delta"
	MeasureAbsolute = "absolute"
)

// Condition ops for done variables.
const (
	OpZero        = "zero"
	OpNonzero     = "nonzero"
	OpEqual       = "equal"
	OpNotEqual    = "not-equal"
	OpLessThan    = "less-than"
	OpGreaterThan = "greater-than"
	OpPositive    = "positive"
	OpNegative    = "negative"
)

// Aggregation modes for done conditions.
const (
	ConditionAny = "any"
	ConditionAll = "all"
)

// Scenario is one game's parsed scenario file.
type Scenario struct {
	// Reward drives the per-step reward channel.
	Reward *Section `json:"reward,omitempty"`

	// Score drives the optional corrected-score channel.
	Score *Section `json:"score,omitempty"`

	// Done declares end-of-episode conditions, if the game has any.
	Done *Done `json:"done,omitempty"`

	// Scripts lists script filenames referenced by the sections, relative
	// to the scenario file.
	Scripts []string `json:"scripts,omitempty"`
}

// Section configures one output channel. Exactly one of Script or
// Variables is set: a script binding like "lua:calculate_reward", or
// declarative per-variable terms summed each frame.
type Section struct {
	Script    string              `json:"script,omitempty"`
	Variables map[string]Variable `json:"variables,omitempty"`
}

// Variable is one declarative reward term.
type Variable struct {
	// Reward scales positive measurements. It also scales negative ones
	// unless Penalty overrides them.
	Reward float64 `json:"reward,omitempty"`

	// Penalty scales negative measurements when nonzero.
	Penalty float64 `json:"penalty,omitempty"`

	// Measurement is "delta" (default) or "absolute".
	Measurement string `json:"measurement,omitempty"`
}

// Done aggregates per-variable end conditions.
type Done struct {
	// Condition is "any" (default) or "all".
	Condition string                  `json:"condition,omitempty"`
	Variables map[string]DoneVariable `json:"variables,omitempty"`
}

// DoneVariable is one end condition.
type DoneVariable struct {
	Op          string `json:"op"`
	Reference   int64  `json:"reference,omitempty"`
	Measurement string `json:"measurement,omitempty"`
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("scenario: parse: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Load reads a scenario file from disk.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	return Parse(data)
}

// LoadFS reads a scenario file from a file system, typically an embedded
// integration directory.
func LoadFS(fsys fs.FS, name string) (*Scenario, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", name, err)
	}
	return Parse(data)
}

// Validate checks section shapes, operator names and variable names.
func (sc *Scenario) Validate() error {
	if sc.Reward == nil && sc.Score == nil && sc.Done == nil {
		return fmt.Errorf("scenario: no reward, score or done section")
	}
	if err := sc.Reward.validate("reward"); err != nil {
		return err
	}
	if err := sc.Score.validate("score"); err != nil {
		return err
	}
	if sc.Done != nil {
		if err := sc.Done.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Section) validate(name string) error {
	if s == nil {
		return nil
	}
	if s.Script != "" && len(s.Variables) > 0 {
		return fmt.Errorf("scenario: %s section binds both a script and variables", name)
	}
	if s.Script == "" && len(s.Variables) == 0 {
		return fmt.Errorf("scenario: %s section binds neither a script nor variables", name)
	}
	for varName, v := range s.Variables {
		if !gamedata.IsVar(varName) {
			return fmt.Errorf("scenario: %s section references unknown variable %q", name, varName)
		}
		if err := validMeasurement(v.Measurement); err != nil {
			return fmt.Errorf("scenario: %s section variable %q: %w", name, varName, err)
		}
	}
	return nil
}

func (d *Done) validate() error {
	switch d.Condition {
	case "", ConditionAny, ConditionAll:
	default:
		return fmt.Errorf("scenario: unknown done condition %q", d.Condition)
	}
	for varName, v := range d.Variables {
		if !gamedata.IsVar(varName) {
			return fmt.Errorf("scenario: done section references unknown variable %q", varName)
		}
		switch v.Op {
		case OpZero, OpNonzero, OpEqual, OpNotEqual, OpLessThan, OpGreaterThan, OpPositive, OpNegative:
		default:
			return fmt.Errorf("scenario: done variable %q has unknown op %q", varName, v.Op)
		}
		if err := validMeasurement(v.Measurement); err != nil {
			return fmt.Errorf("scenario: done variable %q: %w", varName, err)
		}
	}
	return nil
}

func validMeasurement(m string) error {
	switch m {
	case "", MeasureDelta, MeasureAbsolute:
		return nil
	}
	return fmt.Errorf("unknown measurement %q", m)
}

// ScriptBindings returns the script bindings referenced by the reward and
// score sections, in that order, skipping declarative sections.
func (sc *Scenario) ScriptBindings() []string {
	var bindings []string
	if sc.Reward != nil && sc.Reward.Script != "" {
		bindings = append(bindings, sc.Reward.Script)
	}
	if sc.Score != nil && sc.Score.Script != "" {
		bindings = append(bindings, sc.Score.Script)
	}
	return bindings
}
