package replay

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sevketcakir/retro/internal/rewards"
)

// TargetOp represents comparison operations for filtering scored episodes
type TargetOp string

const (
	OpEqual        TargetOp = "eq"
	OpGreater      TargetOp = "gt"
	OpGreaterEqual TargetOp = "ge"
	OpLess         TargetOp = "lt"
	OpLessEqual    TargetOp = "le"
	OpBetween      TargetOp = "between"
	OpOutside      TargetOp = "outside"
)

// Request describes one batch scoring run. TargetOp selects which episodes
// count as hits by their total reward; when empty, every episode is a hit.
type Request struct {
	Recordings []Recording `json:"recordings"`
	TargetOp   TargetOp    `json:"target_op,omitempty"`
	TargetVal  float64     `json:"target_val,omitempty"`
	TargetVal2 float64     `json:"target_val2,omitempty"` // for "between" and "outside"
	Tolerance  float64     `json:"tolerance,omitempty"`   // default 1e-9
	Limit      int         `json:"limit,omitempty"`
	TimeoutMs  int         `json:"timeout_ms,omitempty"`
}

// Hit is one episode whose total reward matched the target.
type Hit struct {
	ID          string  `json:"id"`
	Game        string  `json:"game"`
	Steps       int     `json:"steps"`
	TotalReward float64 `json:"total_reward"`
	TotalScore  float64 `json:"total_score,omitempty"`
}

// Summary contains aggregate statistics. Min/Max/Mean cover the collected
// hits; Best is the highest-reward episode across everything evaluated,
// whether or not it matched the target.
type Summary struct {
	Evaluated  uint64  `json:"evaluated"`
	HitsFound  int     `json:"hits_found"`
	MinReward  float64 `json:"min_reward"`
	MaxReward  float64 `json:"max_reward"`
	MeanReward float64 `json:"mean_reward"`
	Best       *Hit    `json:"best,omitempty"`
	TimedOut   bool    `json:"timed_out,omitempty"`
}

// Result contains the complete scoring results.
type Result struct {
	Hits    []Hit   `json:"hits"`
	Summary Summary `json:"summary"`
}

// scored is what a worker reports for every episode it finishes.
type scored struct {
	hit   Hit
	match bool
}

// TargetEvaluator handles target condition evaluation with tolerance
type TargetEvaluator struct {
	op        TargetOp
	val1      float64
	val2      float64 // for "between" and "outside"
	tolerance float64
}

// NewTargetEvaluator creates a new target evaluator
func NewTargetEvaluator(op TargetOp, val1, val2, tolerance float64) *TargetEvaluator {
	return &TargetEvaluator{
		op:        op,
		val1:      val1,
		val2:      val2,
		tolerance: tolerance,
	}
}

// Matches checks if a total reward matches the target criteria
func (te *TargetEvaluator) Matches(total float64) bool {
	switch te.op {
	case OpEqual:
		return abs(total-te.val1) <= te.tolerance
	case OpGreater:
		return total > te.val1+te.tolerance
	case OpGreaterEqual:
		return total >= te.val1-te.tolerance
	case OpLess:
		return total < te.val1-te.tolerance
	case OpLessEqual:
		return total <= te.val1+te.tolerance
	case OpBetween:
		return total >= te.val1-te.tolerance && total <= te.val2+te.tolerance
	case OpOutside:
		return total < te.val1-te.tolerance || total > te.val2+te.tolerance
	default:
		return false
	}
}

// Scorer replays recordings in parallel and filters them by total reward.
type Scorer struct {
	workerCount int
}

// NewScorer creates a scorer with the given worker count. Zero or negative
// means one worker per CPU.
func NewScorer(workers int) *Scorer {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Scorer{workerCount: workers}
}

// Score replays every recording in the request through a fresh calculator and
// collects the episodes whose total reward matches the target.
func (s *Scorer) Score(ctx context.Context, req Request) (*Result, error) {
	if len(req.Recordings) == 0 {
		return nil, ErrNoRecordings
	}
	for _, rec := range req.Recordings {
		if _, ok := rewards.GetProfile(rec.Game); !ok {
			return nil, fmt.Errorf("recording %q: %w: %s", rec.ID, ErrGameNotFound, rec.Game)
		}
	}

	// Setup timeout context if specified
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	// Reward totals are sums of integer deltas, so the default tolerance only
	// matters for profiles with fractional bonus coefficients.
	tolerance := req.Tolerance
	if tolerance == 0 {
		tolerance = 1e-9
	}

	// An empty op disables filtering: every episode is collected.
	var evaluator *TargetEvaluator
	if req.TargetOp != "" {
		evaluator = NewTargetEvaluator(req.TargetOp, req.TargetVal, req.TargetVal2, tolerance)
	}

	jobs := make(chan int, s.workerCount*2) // Buffer for smooth job distribution
	results := make(chan scored, 1000)      // Buffer for result collection

	var totalEvaluated uint64
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < s.workerCount; i++ {
		worker := &scoreWorker{
			id:         i,
			jobs:       jobs,
			results:    results,
			recordings: req.Recordings,
			evaluator:  evaluator,
			evaluated:  &totalEvaluated,
		}

		wg.Add(1)
		go worker.run(ctx, &wg)
	}

	// Generate jobs in a separate goroutine
	go generateJobs(ctx, jobs, len(req.Recordings))

	// Collect results
	collector := &resultCollector{
		results:   results,
		limit:     req.Limit,
		evaluated: &totalEvaluated,
	}

	return collector.collect(ctx, &wg), nil
}

// scoreWorker replays recordings pulled off the jobs channel.
type scoreWorker struct {
	id         int
	jobs       <-chan int
	results    chan<- scored
	recordings []Recording
	evaluator  *TargetEvaluator
	evaluated  *uint64 // atomic counter
}

func (sw *scoreWorker) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case idx, ok := <-sw.jobs:
			if !ok {
				return // Channel closed, worker should exit
			}

			sw.scoreRecording(ctx, sw.recordings[idx])

		case <-ctx.Done():
			return
		}
	}
}

// scoreRecording replays one episode through fresh calculator state and
// reports its totals.
func (sw *scoreWorker) scoreRecording(ctx context.Context, rec Recording) {
	profile, ok := rewards.GetProfile(rec.Game)
	if !ok {
		return
	}
	calc, err := rewards.NewCalculator(profile)
	if err != nil {
		return
	}
	var corrector *rewards.ScoreCorrector
	if profile.TrackScore {
		corrector = rewards.NewScoreCorrector()
	}

	var totalReward, totalScore float64
	for _, frame := range rec.Frames {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r, err := calc.CalculateReward(frame)
		if err != nil {
			return // Skip episodes that fail to evaluate
		}
		totalReward += r

		if corrector != nil {
			d, err := corrector.CorrectScore(frame)
			if err != nil {
				return
			}
			totalScore += d
		}
	}

	atomic.AddUint64(sw.evaluated, 1)

	res := scored{
		hit: Hit{
			ID:          rec.ID,
			Game:        rec.Game,
			Steps:       len(rec.Frames),
			TotalReward: totalReward,
			TotalScore:  totalScore,
		},
		match: sw.evaluator == nil || sw.evaluator.Matches(totalReward),
	}
	select {
	case sw.results <- res:
	case <-ctx.Done():
	}
}

// generateJobs feeds one recording index per job.
func generateJobs(ctx context.Context, jobs chan<- int, count int) {
	defer close(jobs)

	for i := 0; i < count; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			return
		}
	}
}

// resultCollector aggregates scored episodes and computes summary statistics.
type resultCollector struct {
	results   <-chan scored
	limit     int
	evaluated *uint64
}

func (rc *resultCollector) collect(ctx context.Context, wg *sync.WaitGroup) *Result {
	initialCap := 64
	if rc.limit > 0 && rc.limit < initialCap {
		initialCap = rc.limit
	}

	hits := make([]Hit, 0, initialCap)
	var best *Hit
	var timedOut bool
	limitReached := false

	take := func(s scored) {
		// Best tracking sees every episode, even past the hit limit.
		if best == nil || s.hit.TotalReward > best.TotalReward {
			h := s.hit
			best = &h
		}
		if !s.match || limitReached {
			return
		}
		hits = append(hits, s.hit)
		if rc.limit > 0 && len(hits) >= rc.limit {
			limitReached = true
		}
	}

	// Close done once every worker has exited; their results are all
	// buffered by then.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	collecting := true
	for collecting {
		select {
		case s := <-rc.results:
			take(s)

		case <-ctx.Done():
			timedOut = true
			collecting = false

		case <-done:
			// Drain whatever the workers managed to buffer.
			for collecting {
				select {
				case s := <-rc.results:
					take(s)
				default:
					collecting = false
				}
			}
		}
	}

	// Workers bail out on a dead context, so the run was cut short even if
	// the exit raced the done channel.
	if !timedOut && ctx.Err() != nil {
		timedOut = true
	}

	return &Result{
		Hits:    hits,
		Summary: rc.summarize(hits, best, atomic.LoadUint64(rc.evaluated), timedOut),
	}
}

func (rc *resultCollector) summarize(hits []Hit, best *Hit, evaluated uint64, timedOut bool) Summary {
	summary := Summary{
		Evaluated: evaluated,
		HitsFound: len(hits),
		Best:      best,
		TimedOut:  timedOut,
	}

	if len(hits) == 0 {
		return summary
	}

	min := hits[0].TotalReward
	max := hits[0].TotalReward
	sum := 0.0

	for _, h := range hits {
		if h.TotalReward < min {
			min = h.TotalReward
		}
		if h.TotalReward > max {
			max = h.TotalReward
		}
		sum += h.TotalReward
	}

	summary.MinReward = min
	summary.MaxReward = max
	summary.MeanReward = sum / float64(len(hits))

	return summary
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
