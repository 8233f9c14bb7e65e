// Package decay implements the reward decay mechanism that redirects
// weight to the burn UID when no agent has beaten the top performer for
// a configured number of epochs, grounded on
// original_source/src/reward_decay.rs.
package decay

import (
	"math"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"
)

// BurnUID is the Bittensor burn address; weight directed here is burned.
const BurnUID uint16 = 0

// Curve selects the burn-percentage growth function applied to
// consecutive stale epochs.
type Curve int

const (
	CurveLinear Curve = iota
	CurveExponential
	CurveStep
	CurveLogarithmic
	CurveCustom
)

// Config controls one competition's decay behavior.
type Config struct {
	Enabled                bool
	GraceEpochs            uint64
	DecayRate              float64
	MaxBurnPercent         float64
	Curve                  Curve
	StepSize               float64 // used only when Curve == CurveStep
	StepEpochs             uint64  // used only when Curve == CurveStep
	CustomPercentages      []float64 // used only when Curve == CurveCustom
	ResetOnAnyImprovement  bool
	MinImprovementThreshold float64
	EmitEvents             bool
}

// DefaultConfig mirrors the original's Default impl.
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		GraceEpochs:             10,
		DecayRate:               0.05,
		MaxBurnPercent:          80.0,
		Curve:                   CurveLinear,
		ResetOnAnyImprovement:   false,
		MinImprovementThreshold: 0.02,
		EmitEvents:              true,
	}
}

// TopAgentState tracks the reigning champion for decay purposes.
type TopAgentState struct {
	AgentHash                string
	MinerUID                 uint16
	MinerHotkey              string
	Score                    float64
	AchievedEpoch            uint64
	LastImprovementEpoch     uint64
	EpochsWithoutImprovement uint64
	DecayActive              bool
	CurrentBurnPercent       float64
}

// EventKind discriminates DecayEvent payloads.
type EventKind int

const (
	EventDecayStarted EventKind = iota
	EventDecayIncreased
	EventDecayReset
	EventImprovementDetected
	EventMaxDecayReached
)

// DecayEvent is published on a CompetitionState's event feed whenever
// process_epoch changes decay status.
type DecayEvent struct {
	Kind           EventKind
	CompetitionID  string
	At             time.Time
	TopAgent       string
	TopScore       float64
	EpochsStale    uint64
	BurnPercent    float64
	PreviousBurn   float64
	NewAgent       string
	NewScore       float64
	PreviousTop    string
	PreviousScore  float64
	Agent          string
	Score          float64
	ImprovementOver float64
}

// CompetitionState is one competition's decay tracking state, with its
// own event feed in place of the original's closure-based listeners.
type CompetitionState struct {
	CompetitionID string
	Config        Config
	TopAgent      *TopAgentState
	LastUpdated   time.Time

	feed event.Feed
}

func newCompetitionState(id string, cfg Config) *CompetitionState {
	return &CompetitionState{CompetitionID: id, Config: cfg, LastUpdated: time.Now().UTC()}
}

// Subscribe registers ch to receive every DecayEvent emitted for this competition.
func (s *CompetitionState) Subscribe(ch chan<- DecayEvent) event.Subscription {
	return s.feed.Subscribe(ch)
}

func (s *CompetitionState) emit(ev DecayEvent) {
	ev.CompetitionID = s.CompetitionID
	ev.At = time.Now().UTC()
	s.feed.Send(ev)
}

// ScoredAgent is one miner's best score within an epoch, the input unit
// for Manager.ProcessEpoch.
type ScoredAgent struct {
	UID       uint16
	Hotkey    string
	AgentHash string
	Score     float64
}

// Result is the outcome of processing one epoch for one competition.
type Result struct {
	BurnPercent float64
	BurnWeight  uint16
	DecayActive bool
}

// AppliedDecay summarizes the effect of ApplyDecayToWeights.
type AppliedDecay struct {
	BurnPercent     float64
	BurnWeightAdded uint16
	OriginalTotal   uint32
	AdjustedTotal   uint32
}

// Summary is a read-only snapshot of a competition's decay state.
type Summary struct {
	CompetitionID            string
	Enabled                  bool
	DecayActive              bool
	CurrentBurnPercent       float64
	EpochsWithoutImprovement uint64
	GraceEpochsRemaining     uint64
	TopAgent                 *TopAgentState
	Config                   Config
}

// Manager tracks decay state across many competitions.
type Manager struct {
	states        map[string]*CompetitionState
	defaultConfig Config
}

// NewManager builds a Manager using DefaultConfig for competitions
// registered without an explicit config.
func NewManager() *Manager {
	return &Manager{states: make(map[string]*CompetitionState), defaultConfig: DefaultConfig()}
}

// NewManagerWithDefaultConfig is the with_default_config constructor.
func NewManagerWithDefaultConfig(cfg Config) *Manager {
	return &Manager{states: make(map[string]*CompetitionState), defaultConfig: cfg}
}

func competitionNotRegistered(id string) error {
	return errors.Errorf("competition %s not registered", id)
}

// RegisterCompetition begins decay tracking for a competition. A nil
// cfg falls back to the manager's default config.
func (m *Manager) RegisterCompetition(competitionID string, cfg *Config) {
	c := m.defaultConfig
	if cfg != nil {
		c = *cfg
	}
	m.states[competitionID] = newCompetitionState(competitionID, c)
}

// UpdateConfig replaces a registered competition's config.
func (m *Manager) UpdateConfig(competitionID string, cfg Config) error {
	s, ok := m.states[competitionID]
	if !ok {
		return competitionNotRegistered(competitionID)
	}
	s.Config = cfg
	s.LastUpdated = time.Now().UTC()
	return nil
}

// SetEnabled toggles decay for a registered competition.
func (m *Manager) SetEnabled(competitionID string, enabled bool) error {
	s, ok := m.states[competitionID]
	if !ok {
		return competitionNotRegistered(competitionID)
	}
	s.Config.Enabled = enabled
	s.LastUpdated = time.Now().UTC()
	return nil
}

// Subscribe registers ch against a competition's event feed.
func (m *Manager) Subscribe(competitionID string, ch chan<- DecayEvent) (event.Subscription, error) {
	s, ok := m.states[competitionID]
	if !ok {
		return nil, competitionNotRegistered(competitionID)
	}
	return s.Subscribe(ch), nil
}

// ProcessEpoch evaluates this epoch's scores against the reigning
// champion, updating (and possibly resetting) the competition's decay
// state, per the original's process_epoch.
func (m *Manager) ProcessEpoch(competitionID string, currentEpoch uint64, scores []ScoredAgent) (Result, error) {
	s, ok := m.states[competitionID]
	if !ok {
		return Result{}, competitionNotRegistered(competitionID)
	}

	if !s.Config.Enabled {
		return Result{}, nil
	}

	currentBest, hasBest := bestOf(scores)

	switch {
	case s.TopAgent == nil && hasBest:
		s.TopAgent = &TopAgentState{
			AgentHash:            currentBest.AgentHash,
			MinerUID:             currentBest.UID,
			MinerHotkey:          currentBest.Hotkey,
			Score:                currentBest.Score,
			AchievedEpoch:        currentEpoch,
			LastImprovementEpoch: currentEpoch,
		}

	case s.TopAgent != nil && hasBest:
		top := s.TopAgent
		improvement := currentBest.Score - top.Score

		switch {
		case improvement >= s.Config.MinImprovementThreshold:
			if s.Config.EmitEvents {
				s.emit(DecayEvent{
					Kind:          EventDecayReset,
					NewAgent:      currentBest.AgentHash,
					NewScore:      currentBest.Score,
					PreviousTop:   top.AgentHash,
					PreviousScore: top.Score,
				})
			}
			s.TopAgent = &TopAgentState{
				AgentHash:            currentBest.AgentHash,
				MinerUID:             currentBest.UID,
				MinerHotkey:          currentBest.Hotkey,
				Score:                currentBest.Score,
				AchievedEpoch:        currentEpoch,
				LastImprovementEpoch: currentEpoch,
			}

		case s.Config.ResetOnAnyImprovement && improvement > 0:
			if s.Config.EmitEvents {
				s.emit(DecayEvent{
					Kind:            EventImprovementDetected,
					Agent:           currentBest.AgentHash,
					Score:           currentBest.Score,
					ImprovementOver: improvement,
				})
			}
			top.LastImprovementEpoch = currentEpoch
			top.EpochsWithoutImprovement = 0
			top.DecayActive = false
			top.CurrentBurnPercent = 0

		default:
			top.EpochsWithoutImprovement = saturatingSub(currentEpoch, top.LastImprovementEpoch)
			m.maybeDecay(s, top)
		}

	case s.TopAgent != nil && !hasBest:
		top := s.TopAgent
		top.EpochsWithoutImprovement = saturatingSub(currentEpoch, top.LastImprovementEpoch)
		if top.EpochsWithoutImprovement >= s.Config.GraceEpochs {
			staleEpochs := top.EpochsWithoutImprovement - s.Config.GraceEpochs + 1
			top.CurrentBurnPercent = calculateBurnPercent(s.Config, staleEpochs)
			top.DecayActive = true
		}
	}

	s.LastUpdated = time.Now().UTC()

	var burnPercent float64
	var decayActive bool
	if s.TopAgent != nil {
		burnPercent = s.TopAgent.CurrentBurnPercent
		decayActive = s.TopAgent.DecayActive
	}

	burnWeight := uint16(math.Round((burnPercent / 100.0) * 65535.0))
	return Result{BurnPercent: burnPercent, BurnWeight: burnWeight, DecayActive: decayActive}, nil
}

func (m *Manager) maybeDecay(s *CompetitionState, top *TopAgentState) {
	if top.EpochsWithoutImprovement < s.Config.GraceEpochs {
		return
	}
	staleEpochs := top.EpochsWithoutImprovement - s.Config.GraceEpochs + 1
	newBurnPercent := calculateBurnPercent(s.Config, staleEpochs)

	if s.Config.EmitEvents {
		if !top.DecayActive {
			s.emit(DecayEvent{
				Kind:        EventDecayStarted,
				TopAgent:    top.AgentHash,
				TopScore:    top.Score,
				EpochsStale: staleEpochs,
				BurnPercent: newBurnPercent,
			})
		} else if newBurnPercent > top.CurrentBurnPercent {
			s.emit(DecayEvent{
				Kind:         EventDecayIncreased,
				PreviousBurn: top.CurrentBurnPercent,
				BurnPercent:  newBurnPercent,
				EpochsStale:  staleEpochs,
			})
		}
		if newBurnPercent >= s.Config.MaxBurnPercent {
			s.emit(DecayEvent{Kind: EventMaxDecayReached, BurnPercent: s.Config.MaxBurnPercent})
		}
	}

	top.DecayActive = true
	top.CurrentBurnPercent = newBurnPercent
}

func bestOf(scores []ScoredAgent) (ScoredAgent, bool) {
	if len(scores) == 0 {
		return ScoredAgent{}, false
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s.Score > best.Score {
			best = s
		}
	}
	return best, true
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

func calculateBurnPercent(cfg Config, staleEpochs uint64) float64 {
	var raw float64
	switch cfg.Curve {
	case CurveLinear:
		raw = cfg.DecayRate * float64(staleEpochs) * 100.0
	case CurveExponential:
		raw = (1.0 - math.Pow(1.0-cfg.DecayRate, float64(staleEpochs))) * 100.0
	case CurveStep:
		steps := staleEpochs / cfg.StepEpochs
		raw = math.Min(float64(steps)*cfg.StepSize, 100.0)
	case CurveLogarithmic:
		raw = math.Log(1.0+float64(staleEpochs)) * cfg.DecayRate * 20.0
	case CurveCustom:
		idx := int(staleEpochs)
		if idx >= len(cfg.CustomPercentages) {
			idx = len(cfg.CustomPercentages) - 1
		}
		if idx < 0 {
			raw = cfg.MaxBurnPercent
		} else {
			raw = cfg.CustomPercentages[idx]
		}
	}
	return math.Max(math.Min(raw, cfg.MaxBurnPercent), 0.0)
}

// ApplyDecayToWeights scales every weight in weights except BurnUID's down
// by the active burn fraction and adds the reclaimed weight to BurnUID, in
// place.
func (m *Manager) ApplyDecayToWeights(competitionID string, weights map[uint16]uint16) (AppliedDecay, error) {
	s, ok := m.states[competitionID]
	if !ok {
		return AppliedDecay{}, competitionNotRegistered(competitionID)
	}

	originalTotal := sumWeights(weights)
	if !s.Config.Enabled {
		return AppliedDecay{OriginalTotal: originalTotal, AdjustedTotal: originalTotal}, nil
	}

	var burnPercent float64
	if s.TopAgent != nil && s.TopAgent.DecayActive {
		burnPercent = s.TopAgent.CurrentBurnPercent
	}
	if burnPercent <= 0 {
		return AppliedDecay{OriginalTotal: originalTotal, AdjustedTotal: originalTotal}, nil
	}

	burnFraction := burnPercent / 100.0
	scaleFactor := 1.0 - burnFraction
	for uid, w := range weights {
		if uid == BurnUID {
			continue
		}
		weights[uid] = uint16(math.Round(float64(w) * scaleFactor))
	}

	newTotal := sumWeights(weights)
	burnWeight := uint16(originalTotal - newTotal)
	weights[BurnUID] += burnWeight

	adjustedTotal := sumWeights(weights)
	return AppliedDecay{
		BurnPercent:     burnPercent,
		BurnWeightAdded: burnWeight,
		OriginalTotal:   originalTotal,
		AdjustedTotal:   adjustedTotal,
	}, nil
}

func sumWeights(weights map[uint16]uint16) uint32 {
	var total uint32
	for _, w := range weights {
		total += uint32(w)
	}
	return total
}

// GetState returns a competition's raw decay state.
func (m *Manager) GetState(competitionID string) (*CompetitionState, bool) {
	s, ok := m.states[competitionID]
	return s, ok
}

// GetSummary returns a read-only snapshot of a competition's decay state.
func (m *Manager) GetSummary(competitionID string) (Summary, bool) {
	s, ok := m.states[competitionID]
	if !ok {
		return Summary{}, false
	}

	summary := Summary{
		CompetitionID:        competitionID,
		Enabled:              s.Config.Enabled,
		GraceEpochsRemaining: s.Config.GraceEpochs,
		Config:               s.Config,
	}
	if s.TopAgent != nil {
		summary.DecayActive = s.TopAgent.DecayActive
		summary.CurrentBurnPercent = s.TopAgent.CurrentBurnPercent
		summary.EpochsWithoutImprovement = s.TopAgent.EpochsWithoutImprovement
		summary.GraceEpochsRemaining = saturatingSub(s.Config.GraceEpochs, s.TopAgent.EpochsWithoutImprovement)
		top := *s.TopAgent
		summary.TopAgent = &top
	}
	return summary, true
}

// ResetDecay clears an active decay (an operator override).
func (m *Manager) ResetDecay(competitionID string) error {
	s, ok := m.states[competitionID]
	if !ok {
		return competitionNotRegistered(competitionID)
	}
	if s.TopAgent != nil {
		s.TopAgent.EpochsWithoutImprovement = 0
		s.TopAgent.DecayActive = false
		s.TopAgent.CurrentBurnPercent = 0
		s.TopAgent.LastImprovementEpoch = uint64(time.Now().UTC().Unix())
	}
	s.LastUpdated = time.Now().UTC()
	return nil
}
