package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sevketcakir/retro/internal/gamedata"
)

func newManagedSession(t *testing.T) *Session {
	t.Helper()
	s, err := New(Config{Game: "Test-Genesis", Reward: &stubReward{rewards: []float64{1}}})
	require.NoError(t, err)
	return s
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))

	s1 := newManagedSession(t)
	s2 := newManagedSession(t)
	m.Add(s1)
	m.Add(s2)

	got, err := m.Get(s1.ID())
	require.NoError(t, err)
	assert.Same(t, s1, got)

	assert.Len(t, m.List(), 2)

	_, err = s1.Step(gamedata.Snapshot{})
	require.NoError(t, err)

	sum, err := m.Remove(s1.ID())
	require.NoError(t, err)
	assert.Equal(t, s1.ID(), sum.ID)
	assert.Equal(t, StateClosed, sum.State)
	assert.Equal(t, uint64(1), sum.Steps)

	_, err = m.Get(s1.ID())
	require.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, m.List(), 1)
}

func TestManagerUnknownID(t *testing.T) {
	m := NewManager(nil)

	_, err := m.Get(uuid.New())
	require.ErrorIs(t, err, ErrNotFound)

	_, err = m.Remove(uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestManagerCloseAll(t *testing.T) {
	m := NewManager(nil)

	s1 := newManagedSession(t)
	s2 := newManagedSession(t)
	m.Add(s1)
	m.Add(s2)

	m.CloseAll()
	assert.Empty(t, m.List())
	assert.Equal(t, StateClosed, s1.State())
	assert.Equal(t, StateClosed, s2.State())
}
