package session

import (
	"fmt"

	"github.com/sevketcakir/retro/internal/gamedata"
)

// DefaultFrameskip matches the harness wrappers that repeat each action
// for four emulator frames.
const DefaultFrameskip = 4

// Frameskip aggregates per-frame results across a fixed window. The
// harness feeds every frame; an aggregated result is emitted on window
// boundaries, or early when the episode ends inside a window.
type Frameskip struct {
	session *Session
	skip    int

	pending StepResult
	count   int
}

// NewFrameskip wraps a session. skip <= 0 selects DefaultFrameskip.
func NewFrameskip(s *Session, skip int) (*Frameskip, error) {
	if s == nil {
		return nil, fmt.Errorf("session: frameskip needs a session")
	}
	if skip <= 0 {
		skip = DefaultFrameskip
	}
	return &Frameskip{session: s, skip: skip}, nil
}

// Session returns the wrapped session.
func (f *Frameskip) Session() *Session { return f.session }

// Step feeds one frame. The bool reports whether an aggregated result was
// emitted: the window's rewards and score deltas summed, under the last
// frame's step number and done flags.
func (f *Frameskip) Step(snap gamedata.Snapshot) (StepResult, bool, error) {
	res, err := f.session.Step(snap)
	if err != nil {
		return StepResult{}, false, err
	}

	if f.count == 0 {
		f.pending = res
		if res.ScoreDelta != nil {
			// Own the accumulator; the emitted result must not share it.
			v := *res.ScoreDelta
			f.pending.ScoreDelta = &v
		}
	} else {
		f.pending.Reward += res.Reward
		if res.ScoreDelta != nil {
			if f.pending.ScoreDelta == nil {
				f.pending.ScoreDelta = new(float64)
			}
			*f.pending.ScoreDelta += *res.ScoreDelta
		}
		f.pending.Step = res.Step
		f.pending.Done = res.Done
		f.pending.Truncated = res.Truncated
	}
	f.count++

	if f.count >= f.skip || res.Done {
		out := f.pending
		f.pending = StepResult{}
		f.count = 0
		return out, true, nil
	}
	return StepResult{}, false, nil
}
