package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevketcakir/retro/internal/gamedata"
)

type scoredReward struct {
	rewards []float64
	deltas  []float64
	i       int
}

func (s *scoredReward) CalculateReward(gamedata.Snapshot) (float64, error) {
	r := s.rewards[s.i]
	s.i++
	return r, nil
}

func (s *scoredReward) CorrectScore(gamedata.Snapshot) (float64, error) {
	return s.deltas[s.i-1], nil
}

func TestFrameskipAggregates(t *testing.T) {
	src := &scoredReward{
		rewards: []float64{1, 2, 3, 4, 5, 6, 7, 8},
		deltas:  []float64{0, 10, 0, 0, 20, 0, 0, 0},
	}
	s, err := New(Config{Game: "Test-Genesis", Reward: src, Score: src})
	require.NoError(t, err)

	fs, err := NewFrameskip(s, 4)
	require.NoError(t, err)

	var emitted []StepResult
	for i := 0; i < 8; i++ {
		res, ok, err := fs.Step(gamedata.Snapshot{})
		require.NoError(t, err)
		if ok {
			emitted = append(emitted, res)
		}
	}

	require.Len(t, emitted, 2)

	assert.Equal(t, uint64(4), emitted[0].Step)
	assert.Equal(t, 10.0, emitted[0].Reward)
	require.NotNil(t, emitted[0].ScoreDelta)
	assert.Equal(t, 10.0, *emitted[0].ScoreDelta)

	assert.Equal(t, uint64(8), emitted[1].Step)
	assert.Equal(t, 26.0, emitted[1].Reward)
	require.NotNil(t, emitted[1].ScoreDelta)
	assert.Equal(t, 20.0, *emitted[1].ScoreDelta)
}

func TestFrameskipEmitsEarlyOnDone(t *testing.T) {
	s, err := New(Config{
		Game:     "Test-Genesis",
		Reward:   &stubReward{rewards: []float64{1, 1, 1}},
		MaxSteps: 2,
	})
	require.NoError(t, err)

	fs, err := NewFrameskip(s, 4)
	require.NoError(t, err)

	_, ok, err := fs.Step(gamedata.Snapshot{})
	require.NoError(t, err)
	assert.False(t, ok)

	res, ok, err := fs.Step(gamedata.Snapshot{})
	require.NoError(t, err)
	require.True(t, ok, "done must flush the window early")
	assert.Equal(t, 2.0, res.Reward)
	assert.True(t, res.Done)
	assert.True(t, res.Truncated)
}

func TestFrameskipDefaults(t *testing.T) {
	s, err := New(Config{Game: "Test-Genesis", Reward: &stubReward{}})
	require.NoError(t, err)

	fs, err := NewFrameskip(s, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultFrameskip, fs.skip)

	_, err = NewFrameskip(nil, 4)
	require.Error(t, err)
}

func TestFrameskipPropagatesErrors(t *testing.T) {
	s, err := New(Config{Game: "Test-Genesis", Reward: &stubReward{}, MaxSteps: 1})
	require.NoError(t, err)

	fs, err := NewFrameskip(s, 4)
	require.NoError(t, err)

	_, ok, err := fs.Step(gamedata.Snapshot{})
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = fs.Step(gamedata.Snapshot{})
	require.ErrorIs(t, err, ErrNotActive)
}
