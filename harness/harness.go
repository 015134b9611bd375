// Package harness is the embedding surface for reward computation. It
// wires configuration, game integrations, live sessions, offline scoring
// and the episode store behind one Engine, exposing plain-data types so an
// RL loop holds a single handle without reaching into the internal
// packages.
package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sevketcakir/retro/internal/config"
	"github.com/sevketcakir/retro/internal/gamedata"
	"github.com/sevketcakir/retro/internal/integrations"
	"github.com/sevketcakir/retro/internal/observability"
	"github.com/sevketcakir/retro/internal/replay"
	"github.com/sevketcakir/retro/internal/rewards"
	"github.com/sevketcakir/retro/internal/scenario"
	"github.com/sevketcakir/retro/internal/scripting"
	"github.com/sevketcakir/retro/internal/session"
	"github.com/sevketcakir/retro/internal/store"
)

var (
	// ErrUnknownGame is returned when a game has neither a native profile
	// nor a script integration.
	ErrUnknownGame = errors.New("harness: unknown game")

	// ErrNoIntegration is returned when a session requests the script path
	// for a game that only has a native profile.
	ErrNoIntegration = errors.New("harness: game has no script integration")

	// ErrStoreNotInitialized is returned by episode queries before
	// InitStore has been called.
	ErrStoreNotInitialized = errors.New("harness: store not initialized")

	// ErrSessionNotFound and ErrSessionNotActive surface session lookup
	// and lifecycle failures; ErrEpisodeNotFound covers store lookups.
	ErrSessionNotFound  = session.ErrNotFound
	ErrSessionNotActive = session.ErrNotActive
	ErrEpisodeNotFound  = store.ErrEpisodeNotFound
)

// Session source labels. Script-backed sessions are labeled by the reward
// binding's language instead.
const (
	SourceNative   = "native"
	SourceScenario = "scenario"
)

// Snapshot is one frame of observed game state, supplied fresh by the
// caller on every step.
type Snapshot struct {
	Health      int64 `json:"health"`
	EnemyHealth int64 `json:"enemy_health"`
	EnemyLevel  int64 `json:"enemy_level"`
	Score       int64 `json:"score"`
}

func (s Snapshot) frame() gamedata.Snapshot {
	return gamedata.Snapshot{
		Health:      s.Health,
		EnemyHealth: s.EnemyHealth,
		EnemyLevel:  s.EnemyLevel,
		Score:       s.Score,
	}
}

// Options configures a new engine. The zero value runs on defaults: no
// config file, built-in integrations only, a JSON logger at info level.
type Options struct {
	// ConfigPath loads a config file. Empty runs on defaults.
	ConfigPath string

	// StorePath and IntegrationsDir override their config file settings
	// when non-empty.
	StorePath       string
	IntegrationsDir string

	// Logger replaces the logger built from the logging config.
	Logger *zap.Logger
}

// Engine is the top-level handle. One engine serves many concurrent
// sessions; each individual session stays single-threaded.
type Engine struct {
	cfg     config.Config
	logger  *zap.Logger
	manager *session.Manager
	scorer  *replay.Scorer

	mu     sync.RWMutex
	store  *store.Store
	integs map[string]integrations.Integration
	meta   map[uuid.UUID]*sessionMeta
}

// sessionMeta carries the facade-level wiring the session itself does not
// know about.
type sessionMeta struct {
	stepper   *session.Frameskip
	source    string
	frameskip int
	episodeID string
}

// New builds an engine: configuration resolved, logger built, game
// integrations loaded. The episode store stays closed until InitStore.
func New(opts Options) (*Engine, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if opts.StorePath != "" {
		cfg.Store.Path = opts.StorePath
	}
	if opts.IntegrationsDir != "" {
		cfg.Integrations.Dir = opts.IntegrationsDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		built, err := observability.NewLogger(cfg.Logging)
		if err != nil {
			return nil, err
		}
		logger = built
	}

	integs := make(map[string]integrations.Integration)
	builtins, err := integrations.Builtins()
	if err != nil {
		return nil, err
	}
	for _, integ := range builtins {
		integs[integ.Game] = integ
	}
	if cfg.Integrations.Dir != "" {
		custom, err := integrations.LoadDir(cfg.Integrations.Dir)
		if err != nil {
			return nil, err
		}
		// Custom integrations shadow builtins of the same name.
		for _, integ := range custom {
			integs[integ.Game] = integ
		}
	}

	return &Engine{
		cfg:     cfg,
		logger:  logger,
		manager: session.NewManager(logger),
		scorer:  replay.NewScorer(cfg.Replay.Workers),
		integs:  integs,
		meta:    make(map[uuid.UUID]*sessionMeta),
	}, nil
}

// InitStore opens the episode database at the configured path. The engine
// runs fine without it; sessions just leave no episode records behind.
func (e *Engine) InitStore() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store != nil {
		return nil
	}
	st, err := store.New(e.cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("harness: init store: %w", err)
	}
	e.store = st
	return nil
}

// Close shuts down every live session, finalizes their episode records and
// closes the store.
func (e *Engine) Close() error {
	for _, sum := range e.manager.List() {
		removed, err := e.manager.Remove(sum.ID)
		if err != nil {
			continue
		}
		e.finalizeEpisode(sum.ID, removed)
		e.mu.Lock()
		delete(e.meta, sum.ID)
		e.mu.Unlock()
	}

	e.mu.Lock()
	st := e.store
	e.store = nil
	e.mu.Unlock()
	if st != nil {
		return st.Close()
	}
	return nil
}

func (e *Engine) getStore() *store.Store {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store
}

// GameInfo describes one playable game.
type GameInfo struct {
	Name           string `json:"name"`
	Native         bool   `json:"native"`
	Scripted       bool   `json:"scripted"`
	TracksScore    bool   `json:"tracksScore"`
	FullHealth     int64  `json:"fullHealth"`
	BaseEnemyLevel int64  `json:"baseEnemyLevel"`
}

// Games lists every game the engine can run, native profiles and script
// integrations merged, sorted by name.
func (e *Engine) Games() []GameInfo {
	byName := make(map[string]GameInfo)
	for _, name := range rewards.ListProfiles() {
		profile, _ := rewards.GetProfile(name)
		byName[name] = GameInfo{
			Name:           name,
			Native:         true,
			TracksScore:    profile.TrackScore,
			FullHealth:     profile.FullHealth,
			BaseEnemyLevel: profile.BaseEnemyLevel,
		}
	}

	e.mu.RLock()
	for name, integ := range e.integs {
		info, ok := byName[name]
		if !ok {
			info = GameInfo{
				Name:        name,
				TracksScore: integ.Scenario.Score != nil,
			}
		}
		info.Scripted = true
		byName[name] = info
	}
	e.mu.RUnlock()

	games := make([]GameInfo, 0, len(byName))
	for _, info := range byName {
		games = append(games, info)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].Name < games[j].Name })
	return games
}

// NewSessionRequest configures one live session. Zero values fall back to
// the engine configuration.
type NewSessionRequest struct {
	// Game is the integration identifier, e.g. "MortalKombatII-Genesis".
	Game string `json:"game"`

	// UseScript runs the game's script integration even when a native
	// profile exists.
	UseScript bool `json:"useScript,omitempty"`

	// Frameskip batches this many frames per emitted step. 0 picks the
	// configured default; 1 disables batching.
	Frameskip int `json:"frameskip,omitempty"`

	// MaxSteps truncates the episode when reached. 0 picks the configured
	// default.
	MaxSteps uint64 `json:"maxSteps,omitempty"`
}

// SessionInfo is the creation receipt for a live session.
type SessionInfo struct {
	ID          string `json:"id"`
	Game        string `json:"game"`
	Source      string `json:"source"`
	State       string `json:"state"`
	TracksScore bool   `json:"tracksScore"`
	Frameskip   int    `json:"frameskip"`
	MaxSteps    uint64 `json:"maxSteps,omitempty"`
	EpisodeID   string `json:"episodeId,omitempty"`
}

// CreateSession starts a live episode and registers it with the manager.
// When the store is initialized the session records an episode as it runs.
func (e *Engine) CreateSession(req NewSessionRequest) (SessionInfo, error) {
	cfg, source, err := e.resolveSources(req)
	if err != nil {
		return SessionInfo{}, err
	}

	cfg.Game = req.Game
	cfg.Logger = e.logger
	cfg.HistorySize = e.cfg.Session.HistorySize
	cfg.MaxSteps = req.MaxSteps
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = e.cfg.Session.MaxSteps
	}

	var episodeID string
	if st := e.getStore(); st != nil {
		id, err := st.CreateEpisode(&store.Episode{Game: req.Game, Source: source})
		if err != nil {
			// Store failures never block a session; it runs unrecorded.
			e.logger.Warn("episode create failed",
				zap.String("game", req.Game),
				zap.Error(err),
			)
		} else {
			episodeID = id
			cfg.Recorder = store.NewRecorder(st, id, e.cfg.Store.FlushSize, e.logger)
		}
	}

	sess, err := session.New(cfg)
	if err != nil {
		if cfg.Closer != nil {
			cfg.Closer()
		}
		return SessionInfo{}, err
	}

	skip := req.Frameskip
	if skip == 0 {
		skip = e.cfg.Session.Frameskip
	}
	meta := &sessionMeta{source: source, frameskip: skip, episodeID: episodeID}
	if skip > 1 {
		stepper, err := session.NewFrameskip(sess, skip)
		if err != nil {
			sess.Close()
			return SessionInfo{}, err
		}
		meta.stepper = stepper
	}

	e.manager.Add(sess)
	e.mu.Lock()
	e.meta[sess.ID()] = meta
	e.mu.Unlock()

	return SessionInfo{
		ID:          sess.ID().String(),
		Game:        sess.Game(),
		Source:      source,
		State:       string(sess.State()),
		TracksScore: sess.TracksScore(),
		Frameskip:   skip,
		MaxSteps:    cfg.MaxSteps,
		EpisodeID:   episodeID,
	}, nil
}

// resolveSources binds the reward channels for a game, preferring the
// native profile unless the request forces the script integration.
func (e *Engine) resolveSources(req NewSessionRequest) (session.Config, string, error) {
	var cfg session.Config

	if !req.UseScript {
		if profile, ok := rewards.GetProfile(req.Game); ok {
			calc, err := rewards.NewCalculator(profile)
			if err != nil {
				return cfg, "", err
			}
			cfg.Reward = calc
			if profile.TrackScore {
				cfg.Score = rewards.NewScoreCorrector()
			}
			return cfg, SourceNative, nil
		}
	}

	e.mu.RLock()
	integ, ok := e.integs[req.Game]
	e.mu.RUnlock()
	if !ok {
		if req.UseScript {
			return cfg, "", fmt.Errorf("%w: %q", ErrNoIntegration, req.Game)
		}
		return cfg, "", fmt.Errorf("%w: %q", ErrUnknownGame, req.Game)
	}

	return e.scriptSources(integ)
}

// scriptSources assembles reward channels from an integration. Script
// sections share one host per language; declarative sections run through
// scenario trackers.
func (e *Engine) scriptSources(integ integrations.Integration) (session.Config, string, error) {
	var cfg session.Config

	hosts := make(map[scripting.Language]scripting.Host)
	closeHosts := func() {
		for _, h := range hosts {
			h.Close()
		}
	}
	getHost := func(lang scripting.Language) (scripting.Host, error) {
		if h, ok := hosts[lang]; ok {
			return h, nil
		}
		h, err := scripting.NewHost(lang, scripting.Options{
			InstructionLimit: e.cfg.Scripting.InstructionLimit,
			CallTimeout:      e.cfg.Scripting.CallTimeout,
			Logger:           e.logger,
		})
		if err != nil {
			return nil, err
		}
		if err := h.Load(integ.Sources[lang]); err != nil {
			h.Close()
			return nil, fmt.Errorf("harness: %s: load %s source: %w", integ.Game, lang, err)
		}
		hosts[lang] = h
		return h, nil
	}

	source := SourceScenario

	sec := integ.Scenario.Reward
	if sec == nil {
		return cfg, "", fmt.Errorf("harness: %s: scenario has no reward section", integ.Game)
	}
	if sec.Script != "" {
		binding, err := scripting.ParseBinding(sec.Script)
		if err != nil {
			closeHosts()
			return cfg, "", err
		}
		host, err := getHost(binding.Lang)
		if err != nil {
			closeHosts()
			return cfg, "", err
		}
		cfg.Reward = scripting.NewRewardFunc(host, binding.Function)
		source = string(binding.Lang)
	} else {
		tracker, err := scenario.NewRewardTracker(sec)
		if err != nil {
			closeHosts()
			return cfg, "", err
		}
		cfg.Reward = tracker
	}

	if sec := integ.Scenario.Score; sec != nil {
		if sec.Script != "" {
			binding, err := scripting.ParseBinding(sec.Script)
			if err != nil {
				closeHosts()
				return cfg, "", err
			}
			host, err := getHost(binding.Lang)
			if err != nil {
				closeHosts()
				return cfg, "", err
			}
			cfg.Score = scripting.NewScoreFunc(host, binding.Function)
		} else {
			tracker, err := scenario.NewScoreTracker(sec)
			if err != nil {
				closeHosts()
				return cfg, "", err
			}
			cfg.Score = tracker
		}
	}

	if integ.Scenario.Done != nil {
		tracker, err := scenario.NewDoneTracker(integ.Scenario.Done)
		if err != nil {
			closeHosts()
			return cfg, "", err
		}
		cfg.Done = tracker
	}

	if len(hosts) > 0 {
		cfg.Closer = closeHosts
	}
	return cfg, source, nil
}

// StepResult is one emitted step. Pending marks frames a frameskip window
// absorbed without emitting.
type StepResult struct {
	Step   uint64  `json:"step"`
	Reward float64 `json:"reward"`

	// ScoreDelta is present only for games that track score.
	ScoreDelta *float64 `json:"scoreDelta,omitempty"`

	Done      bool `json:"done"`
	Truncated bool `json:"truncated"`
	Pending   bool `json:"pending,omitempty"`
}

// Step feeds one frame to a session. When the session finishes on this
// frame, its episode record is finalized in the store.
func (e *Engine) Step(id string, snap Snapshot) (StepResult, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return StepResult{}, fmt.Errorf("harness: bad session id %q: %w", id, err)
	}
	sess, err := e.manager.Get(uid)
	if err != nil {
		return StepResult{}, err
	}

	e.mu.RLock()
	meta := e.meta[uid]
	e.mu.RUnlock()

	var (
		res     session.StepResult
		emitted = true
	)
	if meta != nil && meta.stepper != nil {
		res, emitted, err = meta.stepper.Step(snap.frame())
	} else {
		res, err = sess.Step(snap.frame())
	}
	if err != nil {
		// A fresh source failure kills the session on this frame; close
		// its episode record out as errored. ErrSessionNotActive means it
		// was already finished.
		if !errors.Is(err, session.ErrNotActive) {
			e.finalizeEpisode(uid, sess.Summary())
		}
		return StepResult{}, err
	}
	if !emitted {
		return StepResult{Pending: true}, nil
	}

	out := StepResult{
		Step:       res.Step,
		Reward:     res.Reward,
		ScoreDelta: res.ScoreDelta,
		Done:       res.Done,
		Truncated:  res.Truncated,
	}
	if res.Done {
		e.finalizeEpisode(uid, sess.Summary())
	}
	return out, nil
}

// Stats tracks per-session reward statistics across steps.
type Stats struct {
	Steps       uint64  `json:"steps"`
	TotalReward float64 `json:"totalReward"`
	TotalScore  float64 `json:"totalScore"`

	PositiveSteps int `json:"positiveSteps"`
	NegativeSteps int `json:"negativeSteps"`

	CurrentStreak int `json:"currentStreak"`
	HighestStreak int `json:"highestStreak"`
	LowestStreak  int `json:"lowestStreak"`

	BestStepReward  float64 `json:"bestStepReward"`
	WorstStepReward float64 `json:"worstStepReward"`

	PeakReward   float64 `json:"peakReward"`
	TroughReward float64 `json:"troughReward"`
}

// CurvePoint is one sample of the cumulative reward curve.
type CurvePoint struct {
	Step  uint64  `json:"x"`
	Total float64 `json:"y"`
}

// SessionSummary is a serializable snapshot of a session.
type SessionSummary struct {
	ID        string       `json:"id"`
	Game      string       `json:"game"`
	Source    string       `json:"source,omitempty"`
	State     string       `json:"state"`
	Error     string       `json:"error,omitempty"`
	Steps     uint64       `json:"steps"`
	Truncated bool         `json:"truncated"`
	Frameskip int          `json:"frameskip,omitempty"`
	EpisodeID string       `json:"episodeId,omitempty"`
	Stats     *Stats       `json:"stats"`
	Curve     []CurvePoint `json:"curve"`
}

func statsDTO(s *session.Stats) *Stats {
	if s == nil {
		return nil
	}
	return &Stats{
		Steps:           s.Steps,
		TotalReward:     s.TotalReward,
		TotalScore:      s.TotalScore,
		PositiveSteps:   s.PositiveSteps,
		NegativeSteps:   s.NegativeSteps,
		CurrentStreak:   s.CurrentStreak,
		HighestStreak:   s.HighestStreak,
		LowestStreak:    s.LowestStreak,
		BestStepReward:  s.BestStepReward,
		WorstStepReward: s.WorstStepReward,
		PeakReward:      s.PeakReward,
		TroughReward:    s.TroughReward,
	}
}

func (e *Engine) summarize(sum session.Summary) SessionSummary {
	out := SessionSummary{
		ID:        sum.ID.String(),
		Game:      sum.Game,
		State:     string(sum.State),
		Error:     sum.Error,
		Steps:     sum.Steps,
		Truncated: sum.Truncated,
		Stats:     statsDTO(sum.Stats),
	}
	if len(sum.Curve) > 0 {
		out.Curve = make([]CurvePoint, len(sum.Curve))
		for i, p := range sum.Curve {
			out.Curve[i] = CurvePoint{Step: p.Step, Total: p.Total}
		}
	}
	e.mu.RLock()
	if m := e.meta[sum.ID]; m != nil {
		out.Source = m.source
		out.Frameskip = m.frameskip
		out.EpisodeID = m.episodeID
	}
	e.mu.RUnlock()
	return out
}

// SessionStats returns the live snapshot of one session.
func (e *Engine) SessionStats(id string) (SessionSummary, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return SessionSummary{}, fmt.Errorf("harness: bad session id %q: %w", id, err)
	}
	sess, err := e.manager.Get(uid)
	if err != nil {
		return SessionSummary{}, err
	}
	return e.summarize(sess.Summary()), nil
}

// Sessions lists every registered session, finished ones included until
// they are closed.
func (e *Engine) Sessions() []SessionSummary {
	summaries := e.manager.List()
	out := make([]SessionSummary, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, e.summarize(sum))
	}
	return out
}

// CloseSession shuts one session down, finalizes its episode record and
// returns the final summary.
func (e *Engine) CloseSession(id string) (SessionSummary, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return SessionSummary{}, fmt.Errorf("harness: bad session id %q: %w", id, err)
	}
	sum, err := e.manager.Remove(uid)
	if err != nil {
		return SessionSummary{}, err
	}

	out := e.summarize(sum)
	e.finalizeEpisode(uid, sum)
	e.mu.Lock()
	delete(e.meta, uid)
	e.mu.Unlock()
	return out, nil
}

// finalizeEpisode writes the closing episode row for a finished session.
// Safe to call more than once; only the first call finds an episode ID.
func (e *Engine) finalizeEpisode(id uuid.UUID, sum session.Summary) {
	e.mu.Lock()
	var episodeID string
	if m := e.meta[id]; m != nil {
		episodeID = m.episodeID
		m.episodeID = ""
	}
	st := e.store
	e.mu.Unlock()

	if episodeID == "" || st == nil {
		return
	}

	totals := store.Totals{
		Steps:     sum.Steps,
		Truncated: sum.Truncated,
	}
	if sum.Stats != nil {
		totals.Reward = sum.Stats.TotalReward
		totals.Score = sum.Stats.TotalScore
	}
	if err := st.EndEpisode(episodeID, string(sum.State), totals); err != nil {
		e.logger.Warn("episode finalize failed",
			zap.String("episode", episodeID),
			zap.String("session", id.String()),
			zap.Error(err),
		)
	}
}

// Recording is one recorded episode: an ordered frame stream for one game.
type Recording struct {
	ID     string     `json:"id,omitempty"`
	Game   string     `json:"game"`
	Frames []Snapshot `json:"frames"`
}

func (r Recording) recording() replay.Recording {
	rec := replay.Recording{
		ID:     r.ID,
		Game:   r.Game,
		Frames: make([]gamedata.Snapshot, len(r.Frames)),
	}
	for i, f := range r.Frames {
		rec.Frames[i] = f.frame()
	}
	return rec
}

// ScoreRequest configures one offline scoring run over recorded episodes.
type ScoreRequest struct {
	// Recordings are scored as given. Dir, when set, loads every .json
	// recording under it as well.
	Recordings []Recording `json:"recordings,omitempty"`
	Dir        string      `json:"dir,omitempty"`

	TargetOp   string  `json:"target_op,omitempty"`
	TargetVal  float64 `json:"target_val,omitempty"`
	TargetVal2 float64 `json:"target_val2,omitempty"`
	Tolerance  float64 `json:"tolerance,omitempty"`
	Limit      int     `json:"limit,omitempty"`
	TimeoutMs  int     `json:"timeout_ms,omitempty"`
}

// Hit is one episode whose total reward matched the target.
type Hit struct {
	ID          string  `json:"id"`
	Game        string  `json:"game"`
	Steps       int     `json:"steps"`
	TotalReward float64 `json:"total_reward"`
	TotalScore  float64 `json:"total_score,omitempty"`
}

// ScoreSummary aggregates one scoring run. Min/Max/Mean cover the
// collected hits; Best is the highest-reward episode across everything
// evaluated, whether or not it matched the target.
type ScoreSummary struct {
	Evaluated  uint64  `json:"evaluated"`
	HitsFound  int     `json:"hits_found"`
	MinReward  float64 `json:"min_reward"`
	MaxReward  float64 `json:"max_reward"`
	MeanReward float64 `json:"mean_reward"`
	Best       *Hit    `json:"best,omitempty"`
	TimedOut   bool    `json:"timed_out,omitempty"`
}

// ScoreResult contains the complete scoring results.
type ScoreResult struct {
	Hits    []Hit        `json:"hits"`
	Summary ScoreSummary `json:"summary"`
}

func hitDTO(h replay.Hit) Hit {
	return Hit{
		ID:          h.ID,
		Game:        h.Game,
		Steps:       h.Steps,
		TotalReward: h.TotalReward,
		TotalScore:  h.TotalScore,
	}
}

func scoreResultDTO(res *replay.Result) *ScoreResult {
	out := &ScoreResult{
		Hits: make([]Hit, len(res.Hits)),
		Summary: ScoreSummary{
			Evaluated:  res.Summary.Evaluated,
			HitsFound:  res.Summary.HitsFound,
			MinReward:  res.Summary.MinReward,
			MaxReward:  res.Summary.MaxReward,
			MeanReward: res.Summary.MeanReward,
			TimedOut:   res.Summary.TimedOut,
		},
	}
	for i, h := range res.Hits {
		out.Hits[i] = hitDTO(h)
	}
	if res.Summary.Best != nil {
		best := hitDTO(*res.Summary.Best)
		out.Summary.Best = &best
	}
	return out
}

// ScoreRecordings replays recorded episodes through the native reward
// profiles and reports hits against the optional target. Results are not
// persisted.
func (e *Engine) ScoreRecordings(ctx context.Context, req ScoreRequest) (*ScoreResult, error) {
	recs := make([]replay.Recording, 0, len(req.Recordings))
	for _, r := range req.Recordings {
		recs = append(recs, r.recording())
	}
	if req.Dir != "" {
		loaded, err := replay.LoadDir(req.Dir)
		if err != nil {
			return nil, err
		}
		recs = append(recs, loaded...)
	}

	res, err := e.scorer.Score(ctx, replay.Request{
		Recordings: recs,
		TargetOp:   replay.TargetOp(req.TargetOp),
		TargetVal:  req.TargetVal,
		TargetVal2: req.TargetVal2,
		Tolerance:  req.Tolerance,
		Limit:      req.Limit,
		TimeoutMs:  req.TimeoutMs,
	})
	if err != nil {
		return nil, err
	}
	return scoreResultDTO(res), nil
}

// EpisodeInfo is one recorded episode from creation to its final state.
type EpisodeInfo struct {
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

// EpisodeStepInfo is a single recorded step within an episode.
type EpisodeStepInfo struct {
	Step       uint64    `json:"step"`
	Reward     float64   `json:"reward"`
	ScoreDelta *float64  `json:"scoreDelta,omitempty"`
	Done       bool      `json:"done"`
	CreatedAt  time.Time `json:"createdAt"`
}

// EpisodeStepsPage is a paginated steps response.
type EpisodeStepsPage struct {
	Steps      []EpisodeStepInfo `json:"steps"`
	TotalCount int               `json:"totalCount"`
	Page       int               `json:"page"`
	PerPage    int               `json:"perPage"`
	TotalPages int               `json:"totalPages"`
}

func episodeDTO(ep store.Episode) EpisodeInfo {
	return EpisodeInfo{
		ID:          ep.ID,
		Game:        ep.Game,
		Source:      ep.Source,
		CreatedAt:   ep.CreatedAt,
		EndedAt:     ep.EndedAt,
		FinalState:  ep.FinalState,
		TotalSteps:  ep.TotalSteps,
		TotalReward: ep.TotalReward,
		TotalScore:  ep.TotalScore,
		Truncated:   ep.Truncated,
	}
}

// Episodes pages through recorded episodes, newest first. It returns the
// page and the total episode count.
func (e *Engine) Episodes(limit, offset int) ([]EpisodeInfo, int, error) {
	st := e.getStore()
	if st == nil {
		return nil, 0, ErrStoreNotInitialized
	}
	episodes, total, err := st.ListEpisodes(limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]EpisodeInfo, len(episodes))
	for i, ep := range episodes {
		out[i] = episodeDTO(ep)
	}
	return out, total, nil
}

// Episode returns one episode record.
func (e *Engine) Episode(episodeID string) (*EpisodeInfo, error) {
	st := e.getStore()
	if st == nil {
		return nil, ErrStoreNotInitialized
	}
	ep, err := st.GetEpisode(episodeID)
	if err != nil {
		return nil, err
	}
	info := episodeDTO(*ep)
	return &info, nil
}

// EpisodeSteps pages through one episode's recorded steps.
func (e *Engine) EpisodeSteps(episodeID string, page, perPage int) (*EpisodeStepsPage, error) {
	st := e.getStore()
	if st == nil {
		return nil, ErrStoreNotInitialized
	}
	stepsPage, err := st.GetEpisodeSteps(episodeID, page, perPage)
	if err != nil {
		return nil, err
	}
	out := &EpisodeStepsPage{
		Steps:      make([]EpisodeStepInfo, len(stepsPage.Steps)),
		TotalCount: stepsPage.TotalCount,
		Page:       stepsPage.Page,
		PerPage:    stepsPage.PerPage,
		TotalPages: stepsPage.TotalPages,
	}
	for i, step := range stepsPage.Steps {
		out.Steps[i] = EpisodeStepInfo{
			Step:       step.Step,
			Reward:     step.Reward,
			ScoreDelta: step.ScoreDelta,
			Done:       step.Done,
			CreatedAt:  step.CreatedAt,
		}
	}
	return out, nil
}

// DeleteEpisode removes an episode and its recorded steps.
func (e *Engine) DeleteEpisode(episodeID string) error {
	st := e.getStore()
	if st == nil {
		return ErrStoreNotInitialized
	}
	return st.DeleteEpisode(episodeID)
}
