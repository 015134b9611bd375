package rewards

import (
	"github.com/sevketcakir/retro/internal/gamedata"
)

// Calculator scores one fighting-game session frame by frame. All state is
// confined to the instance: construct one per session and discard it when
// the session ends. Not safe for concurrent use.
type Calculator struct {
	profile         Profile
	prevHealth      int64
	prevEnemyHealth int64
	prevEnemyLevel  int64
}

// NewCalculator builds a calculator seeded with the profile's round-start
// constants, so the first frame of an episode scores zero.
func NewCalculator(p Profile) (*Calculator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{
		profile:         p,
		prevHealth:      p.FullHealth,
		prevEnemyHealth: p.FullHealth,
		prevEnemyLevel:  p.BaseEnemyLevel,
	}, nil
}

// Profile returns the constants the calculator was built from.
func (c *Calculator) Profile() Profile {
	return c.profile
}

// CalculateReward returns the reward for one frame and advances the
// previous-frame state.
//
// Readings of the full-health constant or zero on either health bar mark
// round boundaries (round start, KO screens) and are skipped; the stored
// previous values still advance on every frame, skipped or not. Ladder
// progress pays LevelBonus per level climbed.
func (c *Calculator) CalculateReward(snap gamedata.Snapshot) (float64, error) {
	var reward float64

	if snap.Health != c.profile.FullHealth && snap.Health != 0 {
		reward += float64(snap.Health - c.prevHealth)
	}
	if snap.EnemyHealth != c.profile.FullHealth && snap.EnemyHealth != 0 {
		reward -= float64(snap.EnemyHealth - c.prevEnemyHealth)
	}
	if snap.EnemyLevel != c.profile.BaseEnemyLevel {
		reward += c.profile.LevelBonus * float64(snap.EnemyLevel-c.prevEnemyLevel)
	}

	c.prevHealth = snap.Health
	c.prevEnemyHealth = snap.EnemyHealth
	c.prevEnemyLevel = snap.EnemyLevel

	return reward, nil
}
