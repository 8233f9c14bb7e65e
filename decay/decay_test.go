package decay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFirstEpochSetsTopAgentNoDecay(t *testing.T) {
	m := NewManager()
	m.RegisterCompetition("term-bench", nil)

	result, err := m.ProcessEpoch("term-bench", 1, []ScoredAgent{
		{UID: 1, Hotkey: "miner1", AgentHash: "hash1", Score: 0.80},
	})
	require.NoError(t, err)
	require.False(t, result.DecayActive)
	require.Zero(t, result.BurnPercent)
}

func TestDecayStartsAfterGraceEpochs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GraceEpochs = 3
	cfg.DecayRate = 0.05

	m := NewManagerWithDefaultConfig(cfg)
	m.RegisterCompetition("term-bench", nil)

	_, err := m.ProcessEpoch("term-bench", 1, []ScoredAgent{{UID: 1, Hotkey: "m1", AgentHash: "h1", Score: 0.80}})
	require.NoError(t, err)

	// Same score every epoch after, no improvement.
	for epoch := uint64(2); epoch <= 4; epoch++ {
		_, err = m.ProcessEpoch("term-bench", epoch, []ScoredAgent{{UID: 1, Hotkey: "m1", AgentHash: "h1", Score: 0.80}})
		require.NoError(t, err)
	}

	result, err := m.ProcessEpoch("term-bench", 5, []ScoredAgent{{UID: 1, Hotkey: "m1", AgentHash: "h1", Score: 0.80}})
	require.NoError(t, err)
	require.True(t, result.DecayActive)
	require.Greater(t, result.BurnPercent, 0.0)
}

func TestImprovementResetsDecay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GraceEpochs = 1
	cfg.MinImprovementThreshold = 0.02

	m := NewManagerWithDefaultConfig(cfg)
	m.RegisterCompetition("term-bench", nil)

	_, err := m.ProcessEpoch("term-bench", 1, []ScoredAgent{{UID: 1, Hotkey: "m1", AgentHash: "h1", Score: 0.80}})
	require.NoError(t, err)
	_, err = m.ProcessEpoch("term-bench", 2, []ScoredAgent{{UID: 1, Hotkey: "m1", AgentHash: "h1", Score: 0.80}})
	require.NoError(t, err)

	result, err := m.ProcessEpoch("term-bench", 3, []ScoredAgent{{UID: 2, Hotkey: "m2", AgentHash: "h2", Score: 0.90}})
	require.NoError(t, err)
	require.False(t, result.DecayActive)

	state, ok := m.GetState("term-bench")
	require.True(t, ok)
	require.Equal(t, "h2", state.TopAgent.AgentHash)
	require.Zero(t, state.TopAgent.EpochsWithoutImprovement)
}

func TestApplyDecayToWeightsRedirectsToBurnUID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GraceEpochs = 1
	cfg.DecayRate = 0.10

	m := NewManagerWithDefaultConfig(cfg)
	m.RegisterCompetition("term-bench", nil)

	_, err := m.ProcessEpoch("term-bench", 1, []ScoredAgent{{UID: 1, Hotkey: "m1", AgentHash: "h1", Score: 0.80}})
	require.NoError(t, err)
	result, err := m.ProcessEpoch("term-bench", 2, []ScoredAgent{{UID: 1, Hotkey: "m1", AgentHash: "h1", Score: 0.80}})
	require.NoError(t, err)
	require.True(t, result.DecayActive)

	weights := map[uint16]uint16{1: 60000, 2: 5535}
	applied, err := m.ApplyDecayToWeights("term-bench", weights)
	require.NoError(t, err)
	require.Greater(t, applied.BurnWeightAdded, uint16(0))
	require.Equal(t, applied.OriginalTotal, applied.AdjustedTotal)
	require.Greater(t, weights[BurnUID], uint16(0))
}

func TestDecayEventsPublishedOnFeed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GraceEpochs = 1
	cfg.EmitEvents = true

	m := NewManagerWithDefaultConfig(cfg)
	m.RegisterCompetition("term-bench", nil)

	ch := make(chan DecayEvent, 8)
	sub, err := m.Subscribe("term-bench", ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = m.ProcessEpoch("term-bench", 1, []ScoredAgent{{UID: 1, Hotkey: "m1", AgentHash: "h1", Score: 0.80}})
	require.NoError(t, err)
	_, err = m.ProcessEpoch("term-bench", 2, []ScoredAgent{{UID: 1, Hotkey: "m1", AgentHash: "h1", Score: 0.80}})
	require.NoError(t, err)

	select {
	case ev := <-ch:
		require.Equal(t, EventDecayStarted, ev.Kind)
	default:
		t.Fatal("expected a DecayStarted event")
	}
}

func TestLinearVsExponentialCurves(t *testing.T) {
	linear := DefaultConfig()
	linear.Curve = CurveLinear
	linear.DecayRate = 0.05

	exp := DefaultConfig()
	exp.Curve = CurveExponential
	exp.DecayRate = 0.05

	linearPercent := calculateBurnPercent(linear, 4)
	expPercent := calculateBurnPercent(exp, 4)

	require.InDelta(t, 20.0, linearPercent, 0.001)
	require.Less(t, expPercent, linearPercent)
}
