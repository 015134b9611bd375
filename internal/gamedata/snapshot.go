// Package gamedata defines the per-frame game state exchanged between the
// external harness and the reward engine.
package gamedata

// Variable names understood by scenario conditions and reward scripts.
const (
	VarHealth      = "health"
	VarEnemyHealth = "enemy_health"
	VarEnemyLevel  = "enemy_level"
	VarScore       = "score"
)

// Snapshot is one frame of extracted game state. The harness supplies a
// fresh snapshot per frame; the engine never mutates one.
type Snapshot struct {
	Health      int64 `json:"health"`
	EnemyHealth int64 `json:"enemy_health"`
	EnemyLevel  int64 `json:"enemy_level"`
	Score       int64 `json:"score"`
}

// Value returns the variable with the given name, or false if the name is
// not one of the canonical variables.
func (s Snapshot) Value(name string) (int64, bool) {
	switch name {
	case VarHealth:
		return s.Health, true
	case VarEnemyHealth:
		return s.EnemyHealth, true
	case VarEnemyLevel:
		return s.EnemyLevel, true
	case VarScore:
		return s.Score, true
	}
	return 0, false
}

// Vars returns the snapshot as a name-to-value map for script hosts.
func (s Snapshot) Vars() map[string]int64 {
	return map[string]int64{
		VarHealth:      s.Health,
		VarEnemyHealth: s.EnemyHealth,
		VarEnemyLevel:  s.EnemyLevel,
		VarScore:       s.Score,
	}
}

// Names lists the canonical variable names in declaration order.
func Names() []string {
	return []string{VarHealth, VarEnemyHealth, VarEnemyLevel, VarScore}
}

// IsVar reports whether name is a canonical variable name.
func IsVar(name string) bool {
	_, ok := Snapshot{}.Value(name)
	return ok
}
