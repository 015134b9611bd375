package rewards

import (
	"errors"
	"fmt"
)

// Built-in game identifiers.
const (
	GameMortalKombatII = "MortalKombatII-Genesis"
	GameSamuraiShodown = "SamuraiShodown-Genesis"
)

// ErrUnknownGame is returned when no profile is registered for a game ID.
var ErrUnknownGame = errors.New("rewards: unknown game")

// Profile holds the per-game constants a Calculator is built from.
type Profile struct {
	// Game is the integration identifier, e.g. "MortalKombatII-Genesis".
	Game string

	// FullHealth is the value the health bar holds at round start. Readings
	// equal to it (or to zero) are treated as round boundaries and skipped.
	FullHealth int64

	// BaseEnemyLevel is the opponent ladder position at session start.
	BaseEnemyLevel int64

	// LevelBonus is the reward granted per opponent defeated.
	LevelBonus float64

	// TrackScore enables the corrected-score channel.
	TrackScore bool
}

// Validate checks that the profile constants are usable.
func (p Profile) Validate() error {
	if p.Game == "" {
		return errors.New("rewards: profile game ID is empty")
	}
	if p.FullHealth <= 0 {
		return fmt.Errorf("rewards: profile %s: full health must be positive, got %d", p.Game, p.FullHealth)
	}
	if p.BaseEnemyLevel < 0 {
		return fmt.Errorf("rewards: profile %s: base enemy level must not be negative, got %d", p.Game, p.BaseEnemyLevel)
	}
	if p.LevelBonus < 0 {
		return fmt.Errorf("rewards: profile %s: level bonus must not be negative, got %f", p.Game, p.LevelBonus)
	}
	return nil
}

// ProfileRegistry holds all registered game profiles.
var ProfileRegistry = make(map[string]Profile)

// RegisterProfile adds a profile to the registry.
func RegisterProfile(p Profile) {
	ProfileRegistry[p.Game] = p
}

// GetProfile retrieves a profile by game ID.
func GetProfile(game string) (Profile, bool) {
	p, exists := ProfileRegistry[game]
	return p, exists
}

// ListProfiles returns all registered game IDs.
func ListProfiles() []string {
	games := make([]string, 0, len(ProfileRegistry))
	for game := range ProfileRegistry {
		games = append(games, game)
	}
	return games
}

// init registers the built-in fighters.
func init() {
	RegisterProfile(Profile{
		Game:           GameMortalKombatII,
		FullHealth:     176,
		BaseEnemyLevel: 1,
		LevelBonus:     100,
	})
	RegisterProfile(Profile{
		Game:           GameSamuraiShodown,
		FullHealth:     128,
		BaseEnemyLevel: 0,
		LevelBonus:     100,
		TrackScore:     true,
	})
}
