// Package weight implements stake-weighted score aggregation with
// outlier filtering, content-hash deduplication, and champion election,
// grounded on original_source/src/weight_calculator.rs.
package weight

import (
	"sort"
	"time"

	"github.com/holiman/uint256"

	"github.com/platform-net/validator-core/identity"
)

// outlierZscoreConstant is the Modified Z-Score scale factor (0.6745 is
// the 0.75 quantile of the standard normal distribution).
const outlierZscoreConstant = 0.6745

// madFloor guards against division by a near-zero MAD when every score
// in a submission's evaluation set is effectively identical.
const madFloor = 0.001

// Config mirrors the original's WeightConfig.
type Config struct {
	MinValidators          uint32
	MinStakePercentage      float64
	MaxVarianceThreshold    float64
	OutlierZScoreThreshold  float64
	ImprovementThreshold    float64
	MinScoreThreshold       float64
}

// DefaultConfig returns reasonable defaults matching the original's
// Default derive.
func DefaultConfig() Config {
	return Config{
		MinValidators:          3,
		MinStakePercentage:      0.34,
		MaxVarianceThreshold:    0.05,
		OutlierZScoreThreshold:  3.5,
		ImprovementThreshold:    0.02,
		MinScoreThreshold:       0.0,
	}
}

// Evaluation is a single validator's scoring of a single submission.
type Evaluation struct {
	ValidatorHotkey identity.Hotkey
	ValidatorStake  *uint256.Int
	SubmissionHash  string
	ContentHash     string
	MinerHotkey     string
	MinerColdkey    string
	Score           float64
	TasksPassed     uint32
	TasksTotal      uint32
	SubmittedAt     time.Time
	Epoch           uint64
}

// AggregatedScore is the stake-weighted result for one submission, after
// outlier filtering.
type AggregatedScore struct {
	SubmissionHash  string
	ContentHash     string
	MinerHotkey     string
	MinerColdkey    string
	WeightedScore   float64
	ValidatorCount  uint32
	TotalStake      *uint256.Int
	Evaluations     []Evaluation
	Outliers        []identity.Hotkey
	Confidence      float64
	SubmittedAt     time.Time
}

// MinerWeight is a single normalized weight entry in the result.
type MinerWeight struct {
	MinerHotkey    string
	MinerColdkey   string
	SubmissionHash string
	Weight         float64
	RawScore       float64
	Rank           uint32
}

// BestAgent records the current champion for a challenge.
type BestAgent struct {
	SubmissionHash string
	MinerHotkey    string
	Score          float64
	Epoch          uint64
	Timestamp      time.Time
}

// CalculationStats carries diagnostic counters surfaced alongside the
// aggregation result.
type CalculationStats struct {
	TotalEvaluations     uint32
	TotalSubmissions     uint32
	ValidSubmissions     uint32
	ExcludedBanned       uint32
	ExcludedLowConfidence uint32
	OutlierValidators    uint32
}

// Result is the full output of Calculator.CalculateWeights.
type Result struct {
	Epoch         uint64
	ChallengeID   string
	Weights       []MinerWeight
	BestAgent     *BestAgent
	PreviousBest  *BestAgent
	NewBestFound  bool
	Stats         CalculationStats
}

// Calculator aggregates validator evaluations into miner weights,
// applying ban lists, outlier detection, and champion-election logic.
type Calculator struct {
	config          Config
	bannedHotkeys   map[string]bool
	bannedColdkeys  map[string]bool
	previousBest    *BestAgent
}

// NewCalculator builds a Calculator with an empty ban list and no
// previous champion.
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{
		config:         cfg,
		bannedHotkeys:  make(map[string]bool),
		bannedColdkeys: make(map[string]bool),
	}
}

// SetPreviousBest records the champion carried over from the prior epoch.
func (c *Calculator) SetPreviousBest(best *BestAgent) {
	c.previousBest = best
}

// BanHotkey bans a miner by hotkey; future evaluations of that miner are
// excluded from aggregation.
func (c *Calculator) BanHotkey(hotkey string) {
	c.bannedHotkeys[hotkey] = true
}

// BanColdkey bans a miner by coldkey.
func (c *Calculator) BanColdkey(coldkey string) {
	c.bannedColdkeys[coldkey] = true
}

// IsBanned reports whether either key is on a ban list.
func (c *Calculator) IsBanned(hotkey, coldkey string) bool {
	return c.bannedHotkeys[hotkey] || c.bannedColdkeys[coldkey]
}

// CalculateWeights runs the full pipeline: ban filtering, grouping by
// submission, stake-weighted aggregation with outlier removal, content
// dedup, sort, champion election, and normalization.
func (c *Calculator) CalculateWeights(challengeID string, epoch uint64, evaluations []Evaluation, totalNetworkStake *uint256.Int) Result {
	stats := CalculationStats{TotalEvaluations: uint32(len(evaluations))}

	bySubmission := make(map[string][]Evaluation)
	for _, eval := range evaluations {
		if c.IsBanned(eval.MinerHotkey, eval.MinerColdkey) {
			stats.ExcludedBanned++
			continue
		}
		bySubmission[eval.SubmissionHash] = append(bySubmission[eval.SubmissionHash], eval)
	}
	stats.TotalSubmissions = uint32(len(bySubmission))

	var aggregated []AggregatedScore
	for hash, evals := range bySubmission {
		if agg, ok := c.aggregateWithOutlierDetection(hash, evals, totalNetworkStake, &stats); ok {
			aggregated = append(aggregated, agg)
		}
	}
	stats.ValidSubmissions = uint32(len(aggregated))

	aggregated = deduplicateByContent(aggregated)

	sort.Slice(aggregated, func(i, j int) bool {
		if aggregated[i].WeightedScore != aggregated[j].WeightedScore {
			return aggregated[i].WeightedScore > aggregated[j].WeightedScore
		}
		return aggregated[i].SubmittedAt.Before(aggregated[j].SubmittedAt)
	})

	best, newBestFound := c.determineBestAgent(aggregated)
	weights := c.normalizeWeights(aggregated)

	return Result{
		Epoch:        epoch,
		ChallengeID:  challengeID,
		Weights:      weights,
		BestAgent:    best,
		PreviousBest: c.previousBest,
		NewBestFound: newBestFound,
		Stats:        stats,
	}
}

func (c *Calculator) aggregateWithOutlierDetection(submissionHash string, evaluations []Evaluation, totalNetworkStake *uint256.Int, stats *CalculationStats) (AggregatedScore, bool) {
	if len(evaluations) == 0 {
		return AggregatedScore{}, false
	}
	if uint32(len(evaluations)) < c.config.MinValidators {
		stats.ExcludedLowConfidence++
		return AggregatedScore{}, false
	}

	totalStake := new(uint256.Int)
	for _, e := range evaluations {
		totalStake.Add(totalStake, e.ValidatorStake)
	}
	stakePercentage := stakeRatio(totalStake, totalNetworkStake)
	if stakePercentage < c.config.MinStakePercentage {
		stats.ExcludedLowConfidence++
		return AggregatedScore{}, false
	}

	minerHotkey := evaluations[0].MinerHotkey
	minerColdkey := evaluations[0].MinerColdkey
	contentHash := evaluations[0].ContentHash
	submittedAt := evaluations[0].SubmittedAt

	outliers := detectOutliers(evaluations, c.config.OutlierZScoreThreshold)
	stats.OutlierValidators += uint32(len(outliers))

	outlierSet := make(map[identity.Hotkey]bool, len(outliers))
	for _, h := range outliers {
		outlierSet[h] = true
	}

	var validEvals []Evaluation
	for _, e := range evaluations {
		if !outlierSet[e.ValidatorHotkey] {
			validEvals = append(validEvals, e)
		}
	}
	if len(validEvals) == 0 {
		return AggregatedScore{}, false
	}

	validStake := new(uint256.Int)
	for _, e := range validEvals {
		validStake.Add(validStake, e.ValidatorStake)
	}

	var weightedScore float64
	for _, e := range validEvals {
		weightedScore += e.Score * stakeRatio(e.ValidatorStake, validStake)
	}

	var variance float64
	for _, e := range validEvals {
		diff := e.Score - weightedScore
		variance += diff * diff * stakeRatio(e.ValidatorStake, validStake)
	}

	confidence := 1.0 - min(variance/c.config.MaxVarianceThreshold, 1.0)

	return AggregatedScore{
		SubmissionHash: submissionHash,
		ContentHash:    contentHash,
		MinerHotkey:    minerHotkey,
		MinerColdkey:   minerColdkey,
		WeightedScore:  weightedScore,
		ValidatorCount: uint32(len(validEvals)),
		TotalStake:     validStake,
		Evaluations:    evaluations,
		Outliers:       outliers,
		Confidence:     confidence,
		SubmittedAt:    submittedAt,
	}, true
}

// stakeRatio computes numerator/denominator as a float64. Stake amounts
// are carried as uint256.Int for headroom against future re-denomination,
// but at present-day network scale both operands fit in a uint64.
func stakeRatio(numerator, denominator *uint256.Int) float64 {
	if denominator.IsZero() {
		return 0
	}
	return float64(numerator.Uint64()) / float64(denominator.Uint64())
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// deduplicateByContent keeps, per content hash, only the earliest
// submission — identical code resubmitted under a different hash never
// wins twice.
func deduplicateByContent(scores []AggregatedScore) []AggregatedScore {
	best := make(map[string]AggregatedScore, len(scores))
	order := make([]string, 0, len(scores))
	for _, s := range scores {
		existing, ok := best[s.ContentHash]
		if !ok {
			best[s.ContentHash] = s
			order = append(order, s.ContentHash)
			continue
		}
		if s.SubmittedAt.Before(existing.SubmittedAt) {
			best[s.ContentHash] = s
		}
	}
	out := make([]AggregatedScore, 0, len(order))
	for _, hash := range order {
		out = append(out, best[hash])
	}
	return out
}

// detectOutliers flags validators whose Modified Z-Score exceeds
// threshold. Fewer than three evaluations can't establish a median
// robustly enough to bother.
func detectOutliers(evaluations []Evaluation, threshold float64) []identity.Hotkey {
	if len(evaluations) < 3 {
		return nil
	}

	scores := make([]float64, len(evaluations))
	for i, e := range evaluations {
		scores[i] = e.Score
	}
	median := medianOf(append([]float64(nil), scores...))

	absDeviations := make([]float64, len(scores))
	for i, s := range scores {
		absDeviations[i] = abs(s - median)
	}
	mad := medianOf(absDeviations)

	if mad < madFloor {
		return nil
	}

	var outliers []identity.Hotkey
	for _, e := range evaluations {
		modifiedZScore := outlierZscoreConstant * (e.Score - median) / mad
		if abs(modifiedZScore) > threshold {
			outliers = append(outliers, e.ValidatorHotkey)
		}
	}
	return outliers
}

func medianOf(sorted []float64) float64 {
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2.0
	}
	return sorted[n/2]
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// determineBestAgent applies the improvement-threshold champion rule:
// the new top candidate only displaces the incumbent once it beats it
// by at least config.ImprovementThreshold.
func (c *Calculator) determineBestAgent(scores []AggregatedScore) (*BestAgent, bool) {
	if len(scores) == 0 {
		return c.previousBest, false
	}

	top := c.findBestCandidate(scores)

	if c.previousBest == nil {
		return &BestAgent{
			SubmissionHash: top.SubmissionHash,
			MinerHotkey:    top.MinerHotkey,
			Score:          top.WeightedScore,
			Epoch:          0,
			Timestamp:      time.Now().UTC(),
		}, true
	}

	var improvement float64
	if c.previousBest.Score > 0 {
		improvement = (top.WeightedScore - c.previousBest.Score) / c.previousBest.Score
	} else {
		improvement = 1.0
	}

	if improvement >= c.config.ImprovementThreshold {
		return &BestAgent{
			SubmissionHash: top.SubmissionHash,
			MinerHotkey:    top.MinerHotkey,
			Score:          top.WeightedScore,
			Epoch:          0,
			Timestamp:      time.Now().UTC(),
		}, true
	}
	prev := *c.previousBest
	return &prev, false
}

// findBestCandidate picks the highest scorer, but among candidates
// within ImprovementThreshold of the top score, the earliest submission
// wins the tie.
func (c *Calculator) findBestCandidate(scores []AggregatedScore) AggregatedScore {
	if len(scores) <= 1 {
		return scores[0]
	}

	top := scores[0]
	threshold := c.config.ImprovementThreshold

	var similar []AggregatedScore
	for _, s := range scores {
		if top.WeightedScore == 0 {
			if s.WeightedScore == 0 {
				similar = append(similar, s)
			}
			continue
		}
		diff := abs(top.WeightedScore-s.WeightedScore) / top.WeightedScore
		if diff < threshold {
			similar = append(similar, s)
		}
	}

	if len(similar) <= 1 {
		return top
	}

	earliest := similar[0]
	for _, s := range similar[1:] {
		if s.SubmittedAt.Before(earliest.SubmittedAt) {
			earliest = s
		}
	}
	return earliest
}

// normalizeWeights scales surviving scores to sum to 1.0 and assigns
// ranks 1..n in score order; equal scores get distinct ranks.
func (c *Calculator) normalizeWeights(scores []AggregatedScore) []MinerWeight {
	var valid []AggregatedScore
	for _, s := range scores {
		if s.WeightedScore >= c.config.MinScoreThreshold {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	var total float64
	for _, s := range valid {
		total += s.WeightedScore
	}
	if total <= 0 {
		return nil
	}

	weights := make([]MinerWeight, len(valid))
	for i, s := range valid {
		weights[i] = MinerWeight{
			MinerHotkey:    s.MinerHotkey,
			MinerColdkey:   s.MinerColdkey,
			SubmissionHash: s.SubmissionHash,
			Weight:         s.WeightedScore / total,
			RawScore:       s.WeightedScore,
			Rank:           uint32(i + 1),
		}
	}
	return weights
}
