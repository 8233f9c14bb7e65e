package weight

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/platform-net/validator-core/identity"
)

func makeHotkey(n byte) identity.Hotkey {
	var h identity.Hotkey
	for i := range h {
		h[i] = n
	}
	return h
}

func makeEval(validator byte, stake uint64, score float64, miner, submission string) Evaluation {
	now := time.Now().UTC()
	return Evaluation{
		ValidatorHotkey: makeHotkey(validator),
		ValidatorStake:  uint256.NewInt(stake),
		SubmissionHash:  submission,
		ContentHash:     "content-" + submission,
		MinerHotkey:     miner,
		MinerColdkey:    miner + "-coldkey",
		Score:           score,
		TasksPassed:     uint32(score * 10),
		TasksTotal:      10,
		SubmittedAt:     now,
		Epoch:           1,
	}
}

func TestOutlierDetection(t *testing.T) {
	evals := []Evaluation{
		makeEval(1, 1000, 0.80, "miner1", "sub1"),
		makeEval(2, 1000, 0.82, "miner1", "sub1"),
		makeEval(3, 1000, 0.79, "miner1", "sub1"),
		makeEval(4, 1000, 0.81, "miner1", "sub1"),
		makeEval(5, 1000, 0.20, "miner1", "sub1"), // outlier
	}

	outliers := detectOutliers(evals, DefaultConfig().OutlierZScoreThreshold)
	require.Len(t, outliers, 1)
	require.Equal(t, makeHotkey(5), outliers[0])
}

func TestStakeWeightedAverage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinValidators = 2
	cfg.MinStakePercentage = 0.1
	calc := NewCalculator(cfg)

	evals := []Evaluation{
		makeEval(1, 9000, 0.90, "miner1", "sub1"),
		makeEval(2, 1000, 0.50, "miner1", "sub1"),
	}

	result := calc.CalculateWeights("term-bench", 1, evals, uint256.NewInt(10000))

	require.Len(t, result.Weights, 1)
	require.InDelta(t, 0.86, result.Weights[0].RawScore, 0.01)
}

func TestBannedMinersExcluded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinValidators = 1
	cfg.MinStakePercentage = 0.0
	calc := NewCalculator(cfg)
	calc.BanHotkey("banned-miner")

	evals := []Evaluation{
		makeEval(1, 1000, 0.90, "banned-miner", "sub1"),
		makeEval(1, 1000, 0.70, "good-miner", "sub2"),
	}

	result := calc.CalculateWeights("term-bench", 1, evals, uint256.NewInt(1000))

	require.Len(t, result.Weights, 1)
	require.Equal(t, "good-miner", result.Weights[0].MinerHotkey)
	require.Equal(t, uint32(1), result.Stats.ExcludedBanned)
}

func TestImprovementThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ImprovementThreshold = 0.02
	cfg.MinValidators = 1
	cfg.MinStakePercentage = 0.0
	calc := NewCalculator(cfg)

	calc.SetPreviousBest(&BestAgent{
		SubmissionHash: "old",
		MinerHotkey:    "old-miner",
		Score:          0.80,
		Epoch:          0,
		Timestamp:      time.Now().UTC(),
	})

	// 1.25% improvement - not enough.
	evals := []Evaluation{makeEval(1, 1000, 0.81, "new-miner", "new-sub")}
	result := calc.CalculateWeights("term-bench", 1, evals, uint256.NewInt(1000))

	require.False(t, result.NewBestFound)
	require.Equal(t, "old-miner", result.BestAgent.MinerHotkey)

	// 2.5% improvement - enough.
	evals = []Evaluation{makeEval(1, 1000, 0.82, "new-miner2", "new-sub2")}
	result = calc.CalculateWeights("term-bench", 2, evals, uint256.NewInt(1000))

	require.True(t, result.NewBestFound)
	require.Equal(t, "new-miner2", result.BestAgent.MinerHotkey)
}

func TestDeduplicateByContentKeepsEarliest(t *testing.T) {
	earlier := time.Now().UTC().Add(-time.Hour)
	later := time.Now().UTC()

	scores := []AggregatedScore{
		{ContentHash: "same", SubmissionHash: "sub-later", SubmittedAt: later},
		{ContentHash: "same", SubmissionHash: "sub-earlier", SubmittedAt: earlier},
	}

	out := deduplicateByContent(scores)
	require.Len(t, out, 1)
	require.Equal(t, "sub-earlier", out[0].SubmissionHash)
}

func TestNormalizeWeightsSumsToOne(t *testing.T) {
	cfg := DefaultConfig()
	calc := NewCalculator(cfg)

	scores := []AggregatedScore{
		{MinerHotkey: "a", WeightedScore: 0.6},
		{MinerHotkey: "b", WeightedScore: 0.4},
	}
	weights := calc.normalizeWeights(scores)
	require.Len(t, weights, 2)

	var sum float64
	for _, w := range weights {
		sum += w.Weight
	}
	require.InDelta(t, 1.0, sum, 1e-9)
}
