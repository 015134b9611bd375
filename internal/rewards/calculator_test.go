package rewards

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sevketcakir/retro/internal/gamedata"
)

type RewardTestVector struct {
	Description         string              `json:"description"`
	Frames              []gamedata.Snapshot `json:"frames"`
	ExpectedRewards     []float64           `json:"expected_rewards"`
	ExpectedScoreDeltas []float64           `json:"expected_score_deltas"`
}

type RewardVectors struct {
	MortalKombat   []RewardTestVector `json:"mortal_kombat"`
	SamuraiShodown []RewardTestVector `json:"samurai_shodown"`
}

func mustCalculator(t *testing.T, game string) *Calculator {
	t.Helper()

	profile, exists := GetProfile(game)
	if !exists {
		t.Fatalf("Profile '%s' not found in registry", game)
	}

	calc, err := NewCalculator(profile)
	if err != nil {
		t.Fatalf("NewCalculator failed: %v", err)
	}
	return calc
}

func TestCalculatorRoundOpening(t *testing.T) {
	calc := mustCalculator(t, GameMortalKombatII)

	// Round opens at full bars, then the player takes a hit, then lands one.
	frames := []gamedata.Snapshot{
		{Health: 176, EnemyHealth: 176, EnemyLevel: 1},
		{Health: 170, EnemyHealth: 176, EnemyLevel: 1},
		{Health: 170, EnemyHealth: 160, EnemyLevel: 1},
	}
	expected := []float64{0, -6, 16}

	for i, frame := range frames {
		reward, err := calc.CalculateReward(frame)
		if err != nil {
			t.Fatalf("Frame %d: CalculateReward failed: %v", i, err)
		}
		if reward != expected[i] {
			t.Errorf("Frame %d: expected reward %v, got %v", i, expected[i], reward)
		}
	}
}

func TestCalculatorDuplicateFrame(t *testing.T) {
	calc := mustCalculator(t, GameMortalKombatII)

	frame := gamedata.Snapshot{Health: 150, EnemyHealth: 120, EnemyLevel: 2}

	if _, err := calc.CalculateReward(frame); err != nil {
		t.Fatalf("CalculateReward failed: %v", err)
	}

	// The harness can emit the same frame twice; all deltas are zero then.
	reward, err := calc.CalculateReward(frame)
	if err != nil {
		t.Fatalf("CalculateReward failed: %v", err)
	}
	if reward != 0 {
		t.Errorf("Expected 0 reward for duplicate frame, got %v", reward)
	}
}

func TestCalculatorSentinelFiltering(t *testing.T) {
	cases := []struct {
		name     string
		frames   []gamedata.Snapshot
		expected []float64
	}{
		{
			name: "health reset to full is not a heal",
			frames: []gamedata.Snapshot{
				{Health: 40, EnemyHealth: 100, EnemyLevel: 1},
				{Health: 176, EnemyHealth: 100, EnemyLevel: 1},
			},
			expected: []float64{-60, 0},
		},
		{
			name: "zero health reading is not a loss",
			frames: []gamedata.Snapshot{
				{Health: 40, EnemyHealth: 100, EnemyLevel: 1},
				{Health: 0, EnemyHealth: 100, EnemyLevel: 1},
			},
			expected: []float64{-60, 0},
		},
		{
			name: "enemy KO frame grants nothing",
			frames: []gamedata.Snapshot{
				{Health: 176, EnemyHealth: 30, EnemyLevel: 1},
				{Health: 176, EnemyHealth: 0, EnemyLevel: 1},
			},
			expected: []float64{146, 0},
		},
		{
			name: "enemy refill charges nothing",
			frames: []gamedata.Snapshot{
				{Health: 176, EnemyHealth: 30, EnemyLevel: 1},
				{Health: 176, EnemyHealth: 176, EnemyLevel: 1},
			},
			expected: []float64{146, 0},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			calc := mustCalculator(t, GameMortalKombatII)
			for i, frame := range c.frames {
				reward, err := calc.CalculateReward(frame)
				if err != nil {
					t.Fatalf("Frame %d: CalculateReward failed: %v", i, err)
				}
				if reward != c.expected[i] {
					t.Errorf("Frame %d: expected reward %v, got %v", i, c.expected[i], reward)
				}
			}
		})
	}
}

func TestCalculatorLadderBonus(t *testing.T) {
	calc := mustCalculator(t, GameMortalKombatII)

	// Advancing an opponent pays 100 per level even when both bars reset.
	frames := []gamedata.Snapshot{
		{Health: 176, EnemyHealth: 20, EnemyLevel: 1},
		{Health: 176, EnemyHealth: 176, EnemyLevel: 2},
		{Health: 150, EnemyHealth: 176, EnemyLevel: 2},
	}
	expected := []float64{156, 100, -26}

	for i, frame := range frames {
		reward, err := calc.CalculateReward(frame)
		if err != nil {
			t.Fatalf("Frame %d: CalculateReward failed: %v", i, err)
		}
		if reward != expected[i] {
			t.Errorf("Frame %d: expected reward %v, got %v", i, expected[i], reward)
		}
	}
}

func TestCalculatorVariantConstants(t *testing.T) {
	calc := mustCalculator(t, GameSamuraiShodown)

	// Full health is 128 here, so a 176 reading is an ordinary value.
	reward, err := calc.CalculateReward(gamedata.Snapshot{Health: 176, EnemyHealth: 128, EnemyLevel: 0})
	if err != nil {
		t.Fatalf("CalculateReward failed: %v", err)
	}
	if reward != 48 {
		t.Errorf("Expected reward 48 (176-128), got %v", reward)
	}
}

func TestScoreCorrectorSequence(t *testing.T) {
	sc := NewScoreCorrector()

	scores := []int64{0, 100, 100, 50, 200}
	// The 50 is ignored as non-increasing and leaves the running maximum at
	// 100, so the final frame pays out 200-100.
	expected := []float64{0, 100, 0, 0, 100}

	for i, score := range scores {
		delta, err := sc.CorrectScore(gamedata.Snapshot{Score: score})
		if err != nil {
			t.Fatalf("Frame %d: CorrectScore failed: %v", i, err)
		}
		if delta != expected[i] {
			t.Errorf("Frame %d: expected delta %v, got %v", i, expected[i], delta)
		}
	}
}

func TestScoreCorrectorResetRound(t *testing.T) {
	sc := NewScoreCorrector()

	// A counter reset to zero is silent until the old maximum is beaten.
	scores := []int64{0, 500, 0, 300, 700}
	expected := []float64{0, 500, 0, 0, 200}

	for i, score := range scores {
		delta, err := sc.CorrectScore(gamedata.Snapshot{Score: score})
		if err != nil {
			t.Fatalf("Frame %d: CorrectScore failed: %v", i, err)
		}
		if delta != expected[i] {
			t.Errorf("Frame %d: expected delta %v, got %v", i, expected[i], delta)
		}
	}
}

func TestRewardGoldenVectors(t *testing.T) {
	vectorPath := filepath.Join("testdata", "reward_vectors.json")
	data, err := os.ReadFile(vectorPath)
	if err != nil {
		t.Fatalf("Failed to read golden vectors: %v", err)
	}

	var vectors RewardVectors
	if err := json.Unmarshal(data, &vectors); err != nil {
		t.Fatalf("Failed to parse golden vectors: %v", err)
	}

	runVector := func(t *testing.T, game string, vector RewardTestVector) {
		calc := mustCalculator(t, game)
		sc := NewScoreCorrector()

		if len(vector.ExpectedRewards) != len(vector.Frames) {
			t.Fatalf("Vector '%s': %d frames but %d expected rewards",
				vector.Description, len(vector.Frames), len(vector.ExpectedRewards))
		}

		for i, frame := range vector.Frames {
			reward, err := calc.CalculateReward(frame)
			if err != nil {
				t.Fatalf("Frame %d: CalculateReward failed: %v", i, err)
			}
			if reward != vector.ExpectedRewards[i] {
				t.Errorf("Frame %d: expected reward %v, got %v", i, vector.ExpectedRewards[i], reward)
			}

			if vector.ExpectedScoreDeltas == nil {
				continue
			}
			delta, err := sc.CorrectScore(frame)
			if err != nil {
				t.Fatalf("Frame %d: CorrectScore failed: %v", i, err)
			}
			if delta != vector.ExpectedScoreDeltas[i] {
				t.Errorf("Frame %d: expected score delta %v, got %v", i, vector.ExpectedScoreDeltas[i], delta)
			}
		}
	}

	for _, vector := range vectors.MortalKombat {
		t.Run("MortalKombatII: "+vector.Description, func(t *testing.T) {
			runVector(t, GameMortalKombatII, vector)
		})
	}
	for _, vector := range vectors.SamuraiShodown {
		t.Run("SamuraiShodown: "+vector.Description, func(t *testing.T) {
			runVector(t, GameSamuraiShodown, vector)
		})
	}
}
