package policy

// TimePolicy configures the deterministic-clock capability. A non-nil
// FixedTimestampMs pins every call within an instance to the same value.
type TimePolicy struct {
	FixedTimestampMs *int64 `yaml:"fixed_timestamp_ms"`
}

// DataPolicy, ContainerPolicy and LLMPolicy follow the same bounded-resource
// shape as the other capabilities; the core does not interpret their
// contents beyond carrying them to the corresponding host registrar.
type DataPolicy struct {
	Enabled      bool     `yaml:"enabled"`
	AllowedPaths []string `yaml:"allowed_paths"`
	MaxBytes     uint64   `yaml:"max_bytes"`
}

type ContainerPolicy struct {
	Enabled       bool     `yaml:"enabled"`
	AllowedImages []string `yaml:"allowed_images"`
	TimeoutMs     uint64   `yaml:"timeout_ms"`
}

type LLMPolicy struct {
	Enabled         bool     `yaml:"enabled"`
	AllowedProviders []string `yaml:"allowed_providers"`
	MaxRequests     uint32   `yaml:"max_requests"`
}

// ConsensusPolicy governs how many validator proposals are required before
// a storage write under RequireConsensus is considered committed.
type ConsensusPolicy struct {
	// Fraction of active validators whose agreement is required, e.g. 0.66.
	Fraction float64 `yaml:"fraction"`
	// MinOne forces a threshold of at least one even when Active is zero.
	// See the Open Question decision recorded in DESIGN.md: the documented
	// current behavior yields a threshold of 0 at active=0 unless MinOne is set.
	MinOne bool `yaml:"min_one"`
}

// Threshold computes ceil(active * Fraction), respecting MinOne.
func (p ConsensusPolicy) Threshold(active int) int {
	if active <= 0 {
		if p.MinOne {
			return 1
		}
		return 0
	}
	raw := float64(active) * p.Fraction
	t := int(raw)
	if float64(t) < raw {
		t++
	}
	if p.MinOne && t < 1 {
		t = 1
	}
	return t
}
