package policy

// StoragePolicy configures the storage host function's limits and
// consensus requirements for a single challenge.
type StoragePolicy struct {
	MaxKeySize        uint32 `yaml:"max_key_size"`
	MaxValueSize       uint32 `yaml:"max_value_size"`
	MaxTotalStorage    uint64 `yaml:"max_total_storage"`
	MaxKeysPerChallenge uint32 `yaml:"max_keys_per_challenge"`
	AllowDirectWrites  bool   `yaml:"allow_direct_writes"`
	RequireConsensus   bool   `yaml:"require_consensus"`
}

// RequiresProposal reports whether a write must go through the proposal
// path (storage_propose_write) rather than being applied directly.
func (p StoragePolicy) RequiresProposal() bool {
	return p.RequireConsensus && !p.AllowDirectWrites
}
