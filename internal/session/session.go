// Package session runs one game episode at a time: it feeds each incoming
// frame to the game's reward sources, folds the results into statistics,
// and reports when the episode ends. Sessions follow the harness's
// synchronous step loop; a session must not be shared across goroutines.
package session

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sevketcakir/retro/internal/gamedata"
)

// State represents a session's lifecycle state.
type State string

const (
	StateActive State = "active"
	StateDone   State = "done"
	StateClosed State = "closed"
	StateError  State = "error"
)

// RewardSource scores one frame. Implementations keep their own
// previous-frame state and are stepped in strict frame order.
type RewardSource interface {
	CalculateReward(gamedata.Snapshot) (float64, error)
}

// ScoreSource produces the corrected-score channel.
type ScoreSource interface {
	CorrectScore(gamedata.Snapshot) (float64, error)
}

// DoneSource reports the end of an episode.
type DoneSource interface {
	Done(gamedata.Snapshot) (bool, error)
}

// StepRecorder receives step results for external persistence (e.g.
// SQLite). Optional; when nil, no recording occurs. Recorder failures are
// the recorder's to log; they never interrupt the step loop.
type StepRecorder interface {
	RecordStep(step uint64, reward float64, scoreDelta *float64, done bool)
	Flush()
}

// StepResult is the per-frame output returned to the harness.
type StepResult struct {
	Step   uint64  `json:"step"`
	Reward float64 `json:"reward"`

	// ScoreDelta is present only for games that track score.
	ScoreDelta *float64 `json:"scoreDelta,omitempty"`

	Done      bool `json:"done"`
	Truncated bool `json:"truncated"`
}

// Config assembles a session. Reward is required; everything else is
// optional.
type Config struct {
	Game   string
	Reward RewardSource
	Score  ScoreSource
	Done   DoneSource

	Recorder StepRecorder
	Logger   *zap.Logger

	// MaxSteps truncates the episode when reached. 0 = unlimited.
	MaxSteps uint64

	// HistorySize caps the reward curve buffer.
	HistorySize int

	// Closer releases resources owned by the sources, typically script
	// hosts. Called once from Close.
	Closer func()
}

// Session is one live episode.
type Session struct {
	id        uuid.UUID
	game      string
	state     State
	err       error
	steps     uint64
	truncated bool

	reward   RewardSource
	score    ScoreSource
	done     DoneSource
	recorder StepRecorder
	logger   *zap.Logger
	maxSteps uint64
	closer   func()

	stats *Stats
	curve *RewardCurve
}

// New creates an active session.
func New(cfg Config) (*Session, error) {
	if cfg.Game == "" {
		return nil, fmt.Errorf("session: game ID is empty")
	}
	if cfg.Reward == nil {
		return nil, ErrNoRewardSource
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Session{
		id:       uuid.New(),
		game:     cfg.Game,
		state:    StateActive,
		reward:   cfg.Reward,
		score:    cfg.Score,
		done:     cfg.Done,
		recorder: cfg.Recorder,
		logger:   logger,
		maxSteps: cfg.MaxSteps,
		closer:   cfg.Closer,
		stats:    NewStats(),
		curve:    NewRewardCurve(cfg.HistorySize),
	}, nil
}

// ID returns the session's identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Game returns the session's game ID.
func (s *Session) Game() string { return s.game }

// State returns the session's lifecycle state.
func (s *Session) State() State { return s.state }

// Stats returns a copy of the current statistics.
func (s *Session) Stats() Stats { return *s.stats }

// TracksScore reports whether the session emits the corrected-score
// channel.
func (s *Session) TracksScore() bool { return s.score != nil }

// Step scores one frame. Calls must arrive in strict frame order; there is
// no replay or rewind. Source failures fail the session: the error is
// returned and the session refuses further steps.
func (s *Session) Step(snap gamedata.Snapshot) (StepResult, error) {
	if s.state != StateActive {
		return StepResult{}, fmt.Errorf("%w: %s", ErrNotActive, s.state)
	}

	s.steps++
	result := StepResult{Step: s.steps}

	reward, err := s.reward.CalculateReward(snap)
	if err != nil {
		return StepResult{}, s.fail(fmt.Errorf("session: reward source: %w", err))
	}
	result.Reward = reward

	if s.score != nil {
		delta, err := s.score.CorrectScore(snap)
		if err != nil {
			return StepResult{}, s.fail(fmt.Errorf("session: score source: %w", err))
		}
		result.ScoreDelta = &delta
	}

	if s.done != nil {
		done, err := s.done.Done(snap)
		if err != nil {
			return StepResult{}, s.fail(fmt.Errorf("session: done source: %w", err))
		}
		result.Done = done
	}

	if s.maxSteps > 0 && s.steps >= s.maxSteps {
		result.Done = true
		result.Truncated = true
		s.truncated = true
	}

	s.stats.RecordStep(result)
	s.curve.Push(Point{Step: s.steps, Total: s.stats.TotalReward})

	if s.recorder != nil {
		s.recorder.RecordStep(result.Step, result.Reward, result.ScoreDelta, result.Done)
	}

	if result.Done {
		s.state = StateDone
		if s.recorder != nil {
			s.recorder.Flush()
		}
		s.logger.Info("episode finished",
			zap.String("session", s.id.String()),
			zap.String("game", s.game),
			zap.Uint64("steps", s.steps),
			zap.Float64("totalReward", s.stats.TotalReward),
			zap.Bool("truncated", result.Truncated),
		)
	}

	return result, nil
}

// Close flushes the recorder and releases script hosts. Idempotent; a
// session cannot be stepped after Close.
func (s *Session) Close() {
	if s.state == StateClosed {
		return
	}
	if s.recorder != nil {
		s.recorder.Flush()
	}
	if s.closer != nil {
		s.closer()
		s.closer = nil
	}
	if s.state != StateError {
		s.state = StateClosed
	}
}

// Summary is a serializable snapshot of a session.
type Summary struct {
	ID        uuid.UUID `json:"id"`
	Game      string    `json:"game"`
	State     State     `json:"state"`
	Error     string    `json:"error,omitempty"`
	Steps     uint64    `json:"steps"`
	Truncated bool      `json:"truncated"`
	Stats     *Stats    `json:"stats"`
	Curve     []Point   `json:"curve"`
}

// Summary returns the session's current snapshot.
func (s *Session) Summary() Summary {
	sum := Summary{
		ID:        s.id,
		Game:      s.game,
		State:     s.state,
		Steps:     s.steps,
		Truncated: s.truncated,
	}
	if s.err != nil {
		sum.Error = s.err.Error()
	}
	statsCopy := *s.stats
	sum.Stats = &statsCopy
	sum.Curve = append([]Point(nil), s.curve.Points...)
	return sum
}

func (s *Session) fail(err error) error {
	s.state = StateError
	s.err = err
	s.logger.Warn("session failed",
		zap.String("session", s.id.String()),
		zap.String("game", s.game),
		zap.Error(err),
	)
	return err
}
