// Package replay scores recorded episodes offline. A recording is the ordered
// snapshot stream of one finished episode; the scorer replays batches of them
// through fresh calculator state in parallel and reports which episodes land
// inside a target band of total reward.
package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sevketcakir/retro/internal/gamedata"
)

// Recording is one recorded episode: the game it was captured from and every
// snapshot observed, in order. A recording with no frames scores zero.
type Recording struct {
	ID     string              `json:"id"`
	Game   string              `json:"game"`
	Frames []gamedata.Snapshot `json:"frames"`
}

// Validate checks the fields a recording must carry before it can be scored.
func (r *Recording) Validate() error {
	if r.Game == "" {
		return ErrMissingGame
	}
	return nil
}

// Parse decodes a single recording from JSON.
func Parse(data []byte) (Recording, error) {
	var rec Recording
	if err := json.Unmarshal(data, &rec); err != nil {
		return Recording{}, fmt.Errorf("recording: parse: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return Recording{}, err
	}
	return rec, nil
}

// LoadFile reads one recording from a JSON file. A recording that carries no
// id inherits the file's base name.
func LoadFile(path string) (Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Recording{}, fmt.Errorf("recording: read %s: %w", path, err)
	}
	rec, err := Parse(data)
	if err != nil {
		return Recording{}, fmt.Errorf("recording: %s: %w", path, err)
	}
	if rec.ID == "" {
		base := filepath.Base(path)
		rec.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return rec, nil
}

// LoadDir reads every .json file in dir as one recording each, in name order.
func LoadDir(dir string) ([]Recording, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("recording: read dir %s: %w", dir, err)
	}

	var recs []Recording
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		rec, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
