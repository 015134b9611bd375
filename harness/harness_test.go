package harness

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sevketcakir/retro/internal/rewards"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := New(Options{
		StorePath: filepath.Join(t.TempDir(), "episodes.db"),
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// mortalKombatFrames walks one short exchange: an untouched opening frame,
// the player eating a hit, then landing one.
func mortalKombatFrames() ([]Snapshot, []float64) {
	frames := []Snapshot{
		{Health: 176, EnemyHealth: 176, EnemyLevel: 1},
		{Health: 170, EnemyHealth: 176, EnemyLevel: 1},
		{Health: 170, EnemyHealth: 160, EnemyLevel: 1},
	}
	return frames, []float64{0, -6, 16}
}

// samuraiFrames holds health steady so the reward channel stays flat and
// only the score channel moves. The drop to 50 must not produce a negative
// delta, and the climb to 200 pays out against the 100 high-water mark.
func samuraiFrames() ([]Snapshot, []float64) {
	scores := []int64{0, 100, 100, 50, 200}
	frames := make([]Snapshot, len(scores))
	for i, sc := range scores {
		frames[i] = Snapshot{Health: 128, EnemyHealth: 128, EnemyLevel: 0, Score: sc}
	}
	return frames, []float64{0, 100, 0, 0, 100}
}

func TestEngineGames(t *testing.T) {
	eng := testEngine(t)

	games := eng.Games()
	require.Len(t, games, 2)

	mk := games[0]
	assert.Equal(t, rewards.GameMortalKombatII, mk.Name)
	assert.True(t, mk.Native)
	assert.True(t, mk.Scripted)
	assert.False(t, mk.TracksScore)
	assert.Equal(t, int64(176), mk.FullHealth)
	assert.Equal(t, int64(1), mk.BaseEnemyLevel)

	ss := games[1]
	assert.Equal(t, rewards.GameSamuraiShodown, ss.Name)
	assert.True(t, ss.Native)
	assert.True(t, ss.Scripted)
	assert.True(t, ss.TracksScore)
	assert.Equal(t, int64(128), ss.FullHealth)
	assert.Equal(t, int64(0), ss.BaseEnemyLevel)
}

func TestEngineNativeSession(t *testing.T) {
	eng := testEngine(t)

	info, err := eng.CreateSession(NewSessionRequest{Game: rewards.GameMortalKombatII, Frameskip: 1})
	require.NoError(t, err)
	assert.Equal(t, SourceNative, info.Source)
	assert.Equal(t, "active", info.State)
	assert.Equal(t, 1, info.Frameskip)
	assert.False(t, info.TracksScore)
	assert.Empty(t, info.EpisodeID)

	frames, want := mortalKombatFrames()
	for i, frame := range frames {
		res, err := eng.Step(info.ID, frame)
		require.NoError(t, err)
		assert.False(t, res.Pending)
		assert.Equal(t, uint64(i+1), res.Step)
		assert.Equal(t, want[i], res.Reward)
		assert.Nil(t, res.ScoreDelta)
	}

	sum, err := eng.SessionStats(info.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), sum.Steps)
	assert.Equal(t, 10.0, sum.Stats.TotalReward)
	assert.Equal(t, SourceNative, sum.Source)
	require.Len(t, sum.Curve, 3)
	assert.Equal(t, CurvePoint{Step: 2, Total: -6}, sum.Curve[1])
}

func TestEngineScoreChannel(t *testing.T) {
	eng := testEngine(t)

	info, err := eng.CreateSession(NewSessionRequest{Game: rewards.GameSamuraiShodown, Frameskip: 1})
	require.NoError(t, err)
	assert.True(t, info.TracksScore)

	frames, deltas := samuraiFrames()
	for i, frame := range frames {
		res, err := eng.Step(info.ID, frame)
		require.NoError(t, err)
		assert.Equal(t, 0.0, res.Reward)
		require.NotNil(t, res.ScoreDelta)
		assert.Equal(t, deltas[i], *res.ScoreDelta)
	}

	sum, err := eng.SessionStats(info.ID)
	require.NoError(t, err)
	assert.Equal(t, 200.0, sum.Stats.TotalScore)
}

func TestEngineScriptSession(t *testing.T) {
	eng := testEngine(t)

	info, err := eng.CreateSession(NewSessionRequest{
		Game:      rewards.GameSamuraiShodown,
		UseScript: true,
		Frameskip: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "lua", info.Source)
	assert.True(t, info.TracksScore)

	// The embedded script must agree with the native profile frame by
	// frame.
	frames, deltas := samuraiFrames()
	for i, frame := range frames {
		res, err := eng.Step(info.ID, frame)
		require.NoError(t, err)
		assert.Equal(t, 0.0, res.Reward)
		require.NotNil(t, res.ScoreDelta)
		assert.Equal(t, deltas[i], *res.ScoreDelta)
	}

	closed, err := eng.CloseSession(info.ID)
	require.NoError(t, err)
	assert.Equal(t, "closed", closed.State)
	assert.Equal(t, "lua", closed.Source)
	assert.Equal(t, uint64(5), closed.Steps)

	_, err = eng.SessionStats(info.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEngineFrameskip(t *testing.T) {
	eng := testEngine(t)

	// The default configuration selects a frameskip of 4.
	info, err := eng.CreateSession(NewSessionRequest{Game: rewards.GameMortalKombatII})
	require.NoError(t, err)
	assert.Equal(t, 4, info.Frameskip)

	window := []Snapshot{
		{Health: 176, EnemyHealth: 176, EnemyLevel: 1},
		{Health: 170, EnemyHealth: 176, EnemyLevel: 1},
		{Health: 160, EnemyHealth: 176, EnemyLevel: 1},
		{Health: 150, EnemyHealth: 176, EnemyLevel: 1},
	}
	for _, frame := range window[:3] {
		res, err := eng.Step(info.ID, frame)
		require.NoError(t, err)
		assert.True(t, res.Pending)
		assert.Equal(t, 0.0, res.Reward)
	}

	res, err := eng.Step(info.ID, window[3])
	require.NoError(t, err)
	assert.False(t, res.Pending)
	assert.Equal(t, uint64(4), res.Step)
	assert.Equal(t, -26.0, res.Reward)
}

func TestEngineMaxSteps(t *testing.T) {
	eng := testEngine(t)

	info, err := eng.CreateSession(NewSessionRequest{
		Game:      rewards.GameMortalKombatII,
		Frameskip: 1,
		MaxSteps:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.MaxSteps)

	frame := Snapshot{Health: 176, EnemyHealth: 176, EnemyLevel: 1}

	res, err := eng.Step(info.ID, frame)
	require.NoError(t, err)
	assert.False(t, res.Done)

	res, err = eng.Step(info.ID, frame)
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.True(t, res.Truncated)

	_, err = eng.Step(info.ID, frame)
	require.ErrorIs(t, err, ErrSessionNotActive)
}

func TestEngineUnknownGame(t *testing.T) {
	eng := testEngine(t)

	_, err := eng.CreateSession(NewSessionRequest{Game: "Tetris-Genesis"})
	require.ErrorIs(t, err, ErrUnknownGame)

	_, err = eng.CreateSession(NewSessionRequest{Game: "Tetris-Genesis", UseScript: true})
	require.ErrorIs(t, err, ErrNoIntegration)
}

func TestEngineStepBadID(t *testing.T) {
	eng := testEngine(t)
	frame := Snapshot{Health: 176, EnemyHealth: 176, EnemyLevel: 1}

	_, err := eng.Step("not-a-uuid", frame)
	require.Error(t, err)

	_, err = eng.Step(uuid.NewString(), frame)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEngineEpisodeLifecycle(t *testing.T) {
	eng := testEngine(t)
	require.NoError(t, eng.InitStore())

	info, err := eng.CreateSession(NewSessionRequest{
		Game:      rewards.GameSamuraiShodown,
		Frameskip: 1,
		MaxSteps:  5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, info.EpisodeID)

	frames, _ := samuraiFrames()
	var last StepResult
	for _, frame := range frames {
		last, err = eng.Step(info.ID, frame)
		require.NoError(t, err)
	}
	assert.True(t, last.Done)
	assert.True(t, last.Truncated)

	ep, err := eng.Episode(info.EpisodeID)
	require.NoError(t, err)
	assert.Equal(t, rewards.GameSamuraiShodown, ep.Game)
	assert.Equal(t, SourceNative, ep.Source)
	assert.Equal(t, "done", ep.FinalState)
	assert.Equal(t, uint64(5), ep.TotalSteps)
	assert.Equal(t, 0.0, ep.TotalReward)
	assert.Equal(t, 200.0, ep.TotalScore)
	assert.True(t, ep.Truncated)
	require.NotNil(t, ep.EndedAt)

	// Step rows land via the recorder's background flush.
	waitFor(t, 2*time.Second, func() bool {
		page, err := eng.EpisodeSteps(info.EpisodeID, 1, 10)
		return err == nil && page.TotalCount == 5
	})
	page, err := eng.EpisodeSteps(info.EpisodeID, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Steps, 5)
	assert.Equal(t, uint64(2), page.Steps[1].Step)
	require.NotNil(t, page.Steps[1].ScoreDelta)
	assert.Equal(t, 100.0, *page.Steps[1].ScoreDelta)
	assert.True(t, page.Steps[4].Done)

	episodes, total, err := eng.Episodes(10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, episodes, 1)
	assert.Equal(t, info.EpisodeID, episodes[0].ID)

	require.NoError(t, eng.DeleteEpisode(info.EpisodeID))
	_, err = eng.Episode(info.EpisodeID)
	require.ErrorIs(t, err, ErrEpisodeNotFound)
}

func TestEngineCloseSessionFinalizes(t *testing.T) {
	eng := testEngine(t)
	require.NoError(t, eng.InitStore())

	info, err := eng.CreateSession(NewSessionRequest{Game: rewards.GameMortalKombatII, Frameskip: 1})
	require.NoError(t, err)
	require.NotEmpty(t, info.EpisodeID)

	frames, _ := mortalKombatFrames()
	for _, frame := range frames[:2] {
		_, err := eng.Step(info.ID, frame)
		require.NoError(t, err)
	}

	closed, err := eng.CloseSession(info.ID)
	require.NoError(t, err)
	assert.Equal(t, info.EpisodeID, closed.EpisodeID)

	ep, err := eng.Episode(info.EpisodeID)
	require.NoError(t, err)
	assert.Equal(t, "closed", ep.FinalState)
	assert.Equal(t, uint64(2), ep.TotalSteps)
	assert.Equal(t, -6.0, ep.TotalReward)

	waitFor(t, 2*time.Second, func() bool {
		page, err := eng.EpisodeSteps(info.EpisodeID, 1, 10)
		return err == nil && page.TotalCount == 2
	})
}

func TestEngineStoreNotInitialized(t *testing.T) {
	eng := testEngine(t)

	_, _, err := eng.Episodes(10, 0)
	require.ErrorIs(t, err, ErrStoreNotInitialized)

	_, err = eng.EpisodeSteps("whatever", 1, 10)
	require.ErrorIs(t, err, ErrStoreNotInitialized)

	err = eng.DeleteEpisode("whatever")
	require.ErrorIs(t, err, ErrStoreNotInitialized)
}

func TestEngineScoreRecordings(t *testing.T) {
	eng := testEngine(t)

	recs := []Recording{
		{
			ID:   "win",
			Game: rewards.GameMortalKombatII,
			Frames: []Snapshot{
				{Health: 170, EnemyHealth: 170, EnemyLevel: 1},
				{Health: 170, EnemyHealth: 60, EnemyLevel: 1},
				{Health: 170, EnemyHealth: 10, EnemyLevel: 1},
			},
		},
		{
			ID:   "loss",
			Game: rewards.GameMortalKombatII,
			Frames: []Snapshot{
				{Health: 150, EnemyHealth: 150, EnemyLevel: 1},
				{Health: 20, EnemyHealth: 150, EnemyLevel: 1},
			},
		},
	}

	res, err := eng.ScoreRecordings(context.Background(), ScoreRequest{
		Recordings: recs,
		TargetOp:   "ge",
		TargetVal:  100,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Summary.Evaluated)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "win", res.Hits[0].ID)
	assert.Equal(t, 160.0, res.Hits[0].TotalReward)
	require.NotNil(t, res.Summary.Best)
	assert.Equal(t, "win", res.Summary.Best.ID)
}

func TestEngineScoreRecordingsFromDir(t *testing.T) {
	eng := testEngine(t)

	dir := t.TempDir()
	rec := Recording{
		Game: rewards.GameMortalKombatII,
		Frames: []Snapshot{
			{Health: 170, EnemyHealth: 170, EnemyLevel: 1},
			{Health: 170, EnemyHealth: 100, EnemyLevel: 1},
		},
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "round-1.json"), data, 0o644))

	res, err := eng.ScoreRecordings(context.Background(), ScoreRequest{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Summary.Evaluated)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "round-1", res.Hits[0].ID)
	assert.Equal(t, 70.0, res.Hits[0].TotalReward)
}

func TestEngineCustomIntegrationDir(t *testing.T) {
	dir := t.TempDir()
	game := filepath.Join(dir, "VirtuaFighter-Genesis")
	require.NoError(t, os.MkdirAll(game, 0o755))

	scenarioJSON := `{"reward": {"script": "js:calculate_reward"}, "scripts": ["script.js"]}`
	script := "function calculate_reward() { return data.score * 2; }\n"
	require.NoError(t, os.WriteFile(filepath.Join(game, "scenario.json"), []byte(scenarioJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(game, "script.js"), []byte(script), 0o644))

	eng, err := New(Options{
		StorePath:       filepath.Join(t.TempDir(), "episodes.db"),
		IntegrationsDir: dir,
		Logger:          zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	games := eng.Games()
	require.Len(t, games, 3)

	info, err := eng.CreateSession(NewSessionRequest{Game: "VirtuaFighter-Genesis", Frameskip: 1})
	require.NoError(t, err)
	assert.Equal(t, "js", info.Source)

	res, err := eng.Step(info.ID, Snapshot{Score: 21})
	require.NoError(t, err)
	assert.Equal(t, 42.0, res.Reward)
}

func TestEngineSessionsListing(t *testing.T) {
	eng := testEngine(t)

	first, err := eng.CreateSession(NewSessionRequest{Game: rewards.GameMortalKombatII, Frameskip: 1})
	require.NoError(t, err)
	second, err := eng.CreateSession(NewSessionRequest{Game: rewards.GameSamuraiShodown, Frameskip: 1})
	require.NoError(t, err)

	listed := eng.Sessions()
	require.Len(t, listed, 2)

	byID := make(map[string]SessionSummary, len(listed))
	for _, sum := range listed {
		byID[sum.ID] = sum
	}
	assert.Equal(t, rewards.GameMortalKombatII, byID[first.ID].Game)
	assert.Equal(t, rewards.GameSamuraiShodown, byID[second.ID].Game)

	_, err = eng.CloseSession(first.ID)
	require.NoError(t, err)
	assert.Len(t, eng.Sessions(), 1)
}
