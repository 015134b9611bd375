package session

// Stats tracks per-session reward statistics across steps.
type Stats struct {
	Steps       uint64  `json:"steps"`
	TotalReward float64 `json:"totalReward"`
	TotalScore  float64 `json:"totalScore"`

	PositiveSteps int `json:"positiveSteps"`
	NegativeSteps int `json:"negativeSteps"`

	GainStreak int `json:"gainStreak"`
	LossStreak int `json:"lossStreak"`
	// Positive = gain streak, negative = loss streak. Zero-reward steps
	// leave streaks untouched.
	CurrentStreak int `json:"currentStreak"`

	HighestStreak int `json:"highestStreak"`
	LowestStreak  int `json:"lowestStreak"`

	BestStepReward  float64 `json:"bestStepReward"`
	WorstStepReward float64 `json:"worstStepReward"`

	// Peak and trough of the cumulative reward over the session.
	PeakReward   float64 `json:"peakReward"`
	TroughReward float64 `json:"troughReward"`
}

// NewStats creates an empty Stats.
func NewStats() *Stats {
	return &Stats{}
}

// Reset clears all statistics.
func (s *Stats) Reset() {
	*s = Stats{}
}

// RecordStep processes a completed step and updates all statistics.
func (s *Stats) RecordStep(result StepResult) {
	s.Steps++

	s.TotalReward += result.Reward
	if result.ScoreDelta != nil {
		s.TotalScore += *result.ScoreDelta
	}

	switch {
	case result.Reward > 0:
		s.PositiveSteps++
		s.GainStreak++
		s.LossStreak = 0
		s.CurrentStreak = s.GainStreak
	case result.Reward < 0:
		s.NegativeSteps++
		s.LossStreak++
		s.GainStreak = 0
		s.CurrentStreak = -s.LossStreak
	}

	// Update peaks
	if result.Reward > s.BestStepReward {
		s.BestStepReward = result.Reward
	}
	if result.Reward < s.WorstStepReward {
		s.WorstStepReward = result.Reward
	}
	if s.TotalReward > s.PeakReward {
		s.PeakReward = s.TotalReward
	}
	if s.TotalReward < s.TroughReward {
		s.TroughReward = s.TotalReward
	}
	if s.CurrentStreak > s.HighestStreak {
		s.HighestStreak = s.CurrentStreak
	}
	if s.CurrentStreak < s.LowestStreak {
		s.LowestStreak = s.CurrentStreak
	}
}

// Point is a single data point for the cumulative reward curve.
type Point struct {
	Step  uint64  `json:"x"`
	Total float64 `json:"y"`
}

// RewardCurve holds a rolling window of reward curve points.
type RewardCurve struct {
	Points []Point `json:"points"`
	Max    int     `json:"-"`
}

// NewRewardCurve creates a curve buffer with the given max capacity.
func NewRewardCurve(max int) *RewardCurve {
	if max <= 0 {
		max = 512
	}
	return &RewardCurve{
		Points: make([]Point, 0, max),
		Max:    max,
	}
}

// Push adds a data point. When the buffer exceeds Max, it decimates by
// keeping every other point (preserving first and last) so long sessions
// stay at a monitorable size.
func (rc *RewardCurve) Push(p Point) {
	rc.Points = append(rc.Points, p)

	// When we hit double the max, decimate to half
	if len(rc.Points) >= rc.Max*2 {
		decimated := make([]Point, 0, rc.Max)
		decimated = append(decimated, rc.Points[0]) // keep first
		for i := 2; i < len(rc.Points)-1; i += 2 {
			decimated = append(decimated, rc.Points[i])
		}
		decimated = append(decimated, rc.Points[len(rc.Points)-1]) // keep last
		rc.Points = decimated
	}
}

// Reset clears all curve data.
func (rc *RewardCurve) Reset() {
	rc.Points = rc.Points[:0]
}
