package rewards

import (
	"github.com/sevketcakir/retro/internal/gamedata"
)

// ScoreCorrector rewrites the raw score counter as monotonic gains. The raw
// counter resets between attempts and replays old values after continues;
// only strict increases over the running maximum produce signal.
type ScoreCorrector struct {
	prevScore int64
}

// NewScoreCorrector builds a corrector with the running maximum at zero.
func NewScoreCorrector() *ScoreCorrector {
	return &ScoreCorrector{}
}

// CorrectScore returns the points gained beyond the highest score seen so
// far and advances the maximum, or returns zero and leaves it untouched.
// The result is never negative.
func (sc *ScoreCorrector) CorrectScore(snap gamedata.Snapshot) (float64, error) {
	if snap.Score > sc.prevScore {
		delta := snap.Score - sc.prevScore
		sc.prevScore = snap.Score
		return float64(delta), nil
	}
	return 0, nil
}
