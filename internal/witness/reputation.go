package witness

import "time"

const (
	initialReputationScore = 100.0
	minReputationScore     = 0.0
	maxReputationScore     = 100.0
	reputationHistoryCap   = 100
)

// ReputationChange is one entry in a Reputation's bounded history.
type ReputationChange struct {
	Timestamp  int64   `json:"timestamp"`
	Delta      float64 `json:"delta"`
	NewScore   float64 `json:"new_score"`
	Importance float64 `json:"importance"`
	Success    bool    `json:"success"`
}

// Reputation is a bounded, monotone-clamped score in [0, 100] with
// importance-weighted, asymmetric success/failure updates.
type Reputation struct {
	Score       float64            `json:"score"`
	Successful  int                `json:"successful"`
	Failed      int                `json:"failed"`
	LastUpdated int64              `json:"last_updated"`
	History     []ReputationChange `json:"history"`
}

// NewReputation returns a Reputation starting at the initial score of
// 100.
func NewReputation() *Reputation {
	return &Reputation{Score: initialReputationScore}
}

// RecordSuccess applies the success update: delta = importance *
// (0.5 + (100 - score) / 200); score = min(100, score + delta). New
// agents (lower score) gain more per success, an onboarding slope.
func (r *Reputation) RecordSuccess(importance float64, now int64) {
	delta := importance * (0.5 + (maxReputationScore-r.Score)/200.0)
	r.Score = clamp(r.Score+delta, minReputationScore, maxReputationScore)
	r.Successful++
	r.append(ReputationChange{Timestamp: now, Delta: delta, NewScore: r.Score, Importance: importance, Success: true}, now)
}

// RecordFailure applies the failure update: delta = importance *
// (0.5 + score / 200); score = max(0, score - 2*delta). Penalties are
// twice as steep as the corresponding success reward at equal
// importance, and higher-scoring agents lose more per offense.
func (r *Reputation) RecordFailure(importance float64, now int64) {
	delta := importance * (0.5 + r.Score/200.0)
	r.Score = clamp(r.Score-2*delta, minReputationScore, maxReputationScore)
	r.Failed++
	r.append(ReputationChange{Timestamp: now, Delta: -2 * delta, NewScore: r.Score, Importance: importance, Success: false}, now)
}

// Seed overwrites the score and success/failure counters directly,
// without appending a history entry. Used to give agents a plausible
// synthetic track record at network initialization.
func (r *Reputation) Seed(score float64, successful, failed int, now int64) {
	r.Score = clamp(score, minReputationScore, maxReputationScore)
	r.Successful = successful
	r.Failed = failed
	r.LastUpdated = now
}

func (r *Reputation) append(change ReputationChange, now int64) {
	r.LastUpdated = now
	r.History = append(r.History, change)
	if len(r.History) > reputationHistoryCap {
		r.History = r.History[len(r.History)-reputationHistoryCap:]
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NowMillis returns the current wall-clock time in epoch milliseconds.
func NowMillis() int64 { return time.Now().UnixMilli() }
