// Package store provides SQLite persistence for episodes and their step
// history.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

var ErrEpisodeNotFound = errors.New("episode not found")

// Episode is one reward session from creation to its final state.
type Episode struct {
	ID          string     `json:"id"`
	Game        string     `json:"game"`
	Source      string     `json:"source"`
	CreatedAt   time.Time  `json:"createdAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	FinalState  string     `json:"finalState"`
	TotalSteps  uint64     `json:"totalSteps"`
	TotalReward float64    `json:"totalReward"`
	TotalScore  float64    `json:"totalScore"`
	Truncated   bool       `json:"truncated"`
}

// EpisodeStep is a single recorded step within an episode.
type EpisodeStep struct {
	ID         int64     `json:"id"`
	EpisodeID  string    `json:"episodeId"`
	Step       uint64    `json:"step"`
	Reward     float64   `json:"reward"`
	ScoreDelta *float64  `json:"scoreDelta,omitempty"`
	Done       bool      `json:"done"`
	CreatedAt  time.Time `json:"createdAt"`
}

// StepsPage is a paginated steps response.
type StepsPage struct {
	Steps      []EpisodeStep `json:"steps"`
	TotalCount int           `json:"totalCount"`
	Page       int           `json:"page"`
	PerPage    int           `json:"perPage"`
	TotalPages int           `json:"totalPages"`
}

// Totals holds the final counters for ending an episode.
type Totals struct {
	Steps     uint64
	Reward    float64
	Score     float64
	Truncated bool
}

// Store provides SQLite persistence for episodes.
type Store struct {
	db *sql.DB
}

// New opens/creates a SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&cache=shared", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS episodes (
			id TEXT PRIMARY KEY,
			game TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT 'native',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME,
			final_state TEXT NOT NULL DEFAULT 'active',
			total_steps INTEGER NOT NULL DEFAULT 0,
			total_reward REAL NOT NULL DEFAULT 0,
			total_score REAL NOT NULL DEFAULT 0,
			truncated BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS episode_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			episode_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			reward REAL NOT NULL,
			score_delta REAL,
			done BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (episode_id) REFERENCES episodes(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_episode_steps_episode ON episode_steps(episode_id)`,
		`CREATE INDEX IF NOT EXISTS idx_episode_steps_episode_step ON episode_steps(episode_id, step)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateEpisode inserts a new episode and returns its ID.
func (s *Store) CreateEpisode(ep *Episode) (string, error) {
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	if ep.Source == "" {
		ep.Source = "native"
	}
	_, err := s.db.Exec(
		`INSERT INTO episodes (id, game, source, final_state) VALUES (?, ?, ?, ?)`,
		ep.ID, ep.Game, ep.Source, "active",
	)
	if err != nil {
		return "", fmt.Errorf("store: create episode: %w", err)
	}
	return ep.ID, nil
}

// EndEpisode marks an episode as ended with its final totals.
func (s *Store) EndEpisode(id string, finalState string, totals Totals) error {
	now := time.Now()
	_, err := s.db.Exec(
		`UPDATE episodes SET
			ended_at = ?, final_state = ?,
			total_steps = ?, total_reward = ?, total_score = ?, truncated = ?
		 WHERE id = ?`,
		now, finalState,
		totals.Steps, totals.Reward, totals.Score, totals.Truncated,
		id,
	)
	if err != nil {
		return fmt.Errorf("store: end episode: %w", err)
	}
	return nil
}

// InsertStep records a single step.
func (s *Store) InsertStep(episodeID string, st *EpisodeStep) error {
	_, err := s.db.Exec(
		`INSERT INTO episode_steps (episode_id, step, reward, score_delta, done)
		 VALUES (?, ?, ?, ?, ?)`,
		episodeID, st.Step, st.Reward, st.ScoreDelta, st.Done,
	)
	if err != nil {
		return fmt.Errorf("store: insert step: %w", err)
	}
	return nil
}

// InsertStepsBatch records multiple steps in a single transaction for
// efficiency.
func (s *Store) InsertStepsBatch(episodeID string, steps []EpisodeStep) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO episode_steps (episode_id, step, reward, score_delta, done)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	for _, st := range steps {
		if _, err := stmt.Exec(episodeID, st.Step, st.Reward, st.ScoreDelta, st.Done); err != nil {
			return fmt.Errorf("store: insert step #%d: %w", st.Step, err)
		}
	}
	return tx.Commit()
}

// GetEpisode fetches an episode by ID.
func (s *Store) GetEpisode(id string) (*Episode, error) {
	ep := &Episode{}
	err := s.db.QueryRow(
		`SELECT id, game, source, created_at, ended_at, final_state,
		        total_steps, total_reward, total_score, truncated
		 FROM episodes WHERE id = ?`, id,
	).Scan(
		&ep.ID, &ep.Game, &ep.Source, &ep.CreatedAt, &ep.EndedAt, &ep.FinalState,
		&ep.TotalSteps, &ep.TotalReward, &ep.TotalScore, &ep.Truncated,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: episode %q: %w", id, ErrEpisodeNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get episode: %w", err)
	}
	return ep, nil
}

// ListEpisodes returns episodes ordered by creation date (newest first).
func (s *Store) ListEpisodes(limit, offset int) ([]Episode, int, error) {
	if limit <= 0 {
		limit = 20
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM episodes").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count episodes: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT id, game, source, created_at, ended_at, final_state,
		        total_steps, total_reward, total_score, truncated
		 FROM episodes ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		ep := Episode{}
		err := rows.Scan(
			&ep.ID, &ep.Game, &ep.Source, &ep.CreatedAt, &ep.EndedAt, &ep.FinalState,
			&ep.TotalSteps, &ep.TotalReward, &ep.TotalScore, &ep.Truncated,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("store: scan episode: %w", err)
		}
		episodes = append(episodes, ep)
	}

	return episodes, total, nil
}

// GetEpisodeSteps returns paginated steps for an episode in step order.
func (s *Store) GetEpisodeSteps(episodeID string, page, perPage int) (*StepsPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 50
	}
	offset := (page - 1) * perPage

	var total int
	if err := s.db.QueryRow(
		"SELECT COUNT(*) FROM episode_steps WHERE episode_id = ?", episodeID,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("store: count steps: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT id, episode_id, step, reward, score_delta, done, created_at
		 FROM episode_steps WHERE episode_id = ? ORDER BY step LIMIT ? OFFSET ?`,
		episodeID, perPage, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get episode steps: %w", err)
	}
	defer rows.Close()

	var steps []EpisodeStep
	for rows.Next() {
		st := EpisodeStep{}
		if err := rows.Scan(&st.ID, &st.EpisodeID, &st.Step, &st.Reward, &st.ScoreDelta, &st.Done, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan step: %w", err)
		}
		steps = append(steps, st)
	}

	totalPages := total / perPage
	if total%perPage > 0 {
		totalPages++
	}

	return &StepsPage{
		Steps:      steps,
		TotalCount: total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}, nil
}

// DeleteEpisode removes an episode and all associated steps.
func (s *Store) DeleteEpisode(id string) error {
	// Foreign keys with CASCADE handle the steps
	_, err := s.db.Exec("DELETE FROM episodes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: delete episode: %w", err)
	}
	return nil
}
