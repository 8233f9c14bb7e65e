package policy

// Bundle groups every capability policy a challenge module may be
// instantiated with. A policy with an Enabled flag leaves its capability
// disabled at its zero value (Enabled defaults to false). StoragePolicy
// and TimePolicy have no such flag: a zero StoragePolicy sets no size
// limits and permits direct writes, and a zero TimePolicy leaves the
// clock unpinned.
type Bundle struct {
	Network   NetworkPolicy   `yaml:"network"`
	Storage   StoragePolicy   `yaml:"storage"`
	Exec      ExecPolicy      `yaml:"exec"`
	Sandbox   ExecPolicy      `yaml:"sandbox"`
	Terminal  TerminalPolicy  `yaml:"terminal"`
	Time      TimePolicy      `yaml:"time"`
	Data      DataPolicy      `yaml:"data"`
	Container ContainerPolicy `yaml:"container"`
	LLM       LLMPolicy       `yaml:"llm"`
	Consensus ConsensusPolicy `yaml:"consensus"`
}

// NormalizedBundle pairs a Bundle with its validated, enforcement-ready network policy.
type NormalizedBundle struct {
	Bundle  Bundle
	Network *NormalizedNetworkPolicy
}

// NormalizeBundle validates and normalizes every capability in b.
func NormalizeBundle(b Bundle) (*NormalizedBundle, error) {
	netPolicy, err := Normalize(b.Network)
	if err != nil {
		return nil, err
	}
	return &NormalizedBundle{Bundle: b, Network: netPolicy}, nil
}
