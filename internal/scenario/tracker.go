package scenario

import (
	"fmt"

	"github.com/sevketcakir/retro/internal/gamedata"
)

// RewardTracker evaluates a declarative section frame by frame. The first
// observed frame seeds the previous snapshot, so delta terms read zero
// there. One tracker per session; not safe for concurrent use.
type RewardTracker struct {
	section Section
	prev    gamedata.Snapshot
	primed  bool
}

// NewRewardTracker builds a tracker for a declarative section.
func NewRewardTracker(s *Section) (*RewardTracker, error) {
	if s == nil || len(s.Variables) == 0 {
		return nil, fmt.Errorf("scenario: tracker needs a declarative section")
	}
	return &RewardTracker{section: *s}, nil
}

// CalculateReward sums the section's variable terms for one frame.
func (t *RewardTracker) CalculateReward(snap gamedata.Snapshot) (float64, error) {
	if !t.primed {
		t.prev = snap
		t.primed = true
	}

	var total float64
	for name, v := range t.section.Variables {
		value, err := measure(name, v.Measurement, snap, t.prev)
		if err != nil {
			return 0, err
		}
		switch {
		case value > 0:
			total += float64(value) * v.Reward
		case value < 0 && v.Penalty != 0:
			total += float64(value) * v.Penalty
		case value < 0:
			total += float64(value) * v.Reward
		}
	}

	t.prev = snap
	return total, nil
}

// ScoreTracker adapts a declarative section to the corrected-score
// contract.
type ScoreTracker struct {
	inner RewardTracker
}

// NewScoreTracker builds a tracker for a declarative score section.
func NewScoreTracker(s *Section) (*ScoreTracker, error) {
	inner, err := NewRewardTracker(s)
	if err != nil {
		return nil, err
	}
	return &ScoreTracker{inner: *inner}, nil
}

// CorrectScore sums the section's variable terms for one frame.
func (t *ScoreTracker) CorrectScore(snap gamedata.Snapshot) (float64, error) {
	return t.inner.CalculateReward(snap)
}

// DoneTracker evaluates end-of-episode conditions frame by frame.
type DoneTracker struct {
	done   Done
	prev   gamedata.Snapshot
	primed bool
}

// NewDoneTracker builds a tracker for a done section.
func NewDoneTracker(d *Done) (*DoneTracker, error) {
	if d == nil {
		return nil, fmt.Errorf("scenario: tracker needs a done section")
	}
	return &DoneTracker{done: *d}, nil
}

// Done reports whether the episode ends on this frame. A section without
// variables never ends the episode.
func (t *DoneTracker) Done(snap gamedata.Snapshot) (bool, error) {
	if !t.primed {
		t.prev = snap
		t.primed = true
	}
	defer func() { t.prev = snap }()

	if len(t.done.Variables) == 0 {
		return false, nil
	}

	all := t.done.Condition == ConditionAll
	for name, v := range t.done.Variables {
		value, err := measure(name, v.Measurement, snap, t.prev)
		if err != nil {
			return false, err
		}
		hit, err := evalOp(v.Op, value, v.Reference)
		if err != nil {
			return false, err
		}
		if hit && !all {
			return true, nil
		}
		if !hit && all {
			return false, nil
		}
	}
	return all, nil
}

func measure(name, measurement string, snap, prev gamedata.Snapshot) (int64, error) {
	current, ok := snap.Value(name)
	if !ok {
		return 0, fmt.Errorf("scenario: unknown variable %q", name)
	}
	if measurement == MeasureAbsolute {
		return current, nil
	}
	previous, _ := prev.Value(name)
	return current - previous, nil
}

func evalOp(op string, value, reference int64) (bool, error) {
	switch op {
	case OpZero:
		return value == 0, nil
	case OpNonzero:
		return value != 0, nil
	case OpEqual:
		return value == reference, nil
	case OpNotEqual:
		return value != reference, nil
	case OpLessThan:
		return value < reference, nil
	case OpGreaterThan:
		return value > reference, nil
	case OpPositive:
		return value > 0, nil
	case OpNegative:
		return value < 0, nil
	}
	return false, fmt.Errorf("scenario: unknown op %q", op)
}
