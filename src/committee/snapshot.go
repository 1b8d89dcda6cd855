package committee

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Snapshot is the on-disk form of a discovery result for one chain.
// JSON snapshots are accepted as well since JSON is valid YAML.
type Snapshot struct {
	ChainName string           `json:"chainName" yaml:"chainName"`
	Nodes     []DiscoveredNode `json:"nodes"     yaml:"nodes"`
}

// LoadSnapshot reads a discovery snapshot and returns a Directory over it.
func LoadSnapshot(path string) (*Directory, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read committee snapshot %s: %w", path, err)
	}

	var s Snapshot
	if err := yaml.Unmarshal(bz, &s); err != nil {
		return nil, fmt.Errorf("failed to parse committee snapshot %s: %w", path, err)
	}
	if len(s.Nodes) == 0 {
		return nil, fmt.Errorf("committee snapshot %s has no nodes", path)
	}

	return NewDirectory(s.ChainName, s.Nodes), nil
}
