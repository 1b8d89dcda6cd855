package committee

import (
	"sort"

	"github.com/relaykit/imasigner/src/types"
)

// DiscoveredNode is one committee node as reported by chain discovery.
// The position of a node in the discovery list is its member index.
type DiscoveredNode struct {
	Name            string             `json:"name,omitempty"     yaml:"name,omitempty"`
	Endpoint        string             `json:"endpoint"           yaml:"endpoint"`
	FullyDiscovered bool               `json:"fullyDiscovered"    yaml:"fullyDiscovered"`
	Threshold       int                `json:"t"                  yaml:"t"`
	Participants    int                `json:"n"                  yaml:"n"`
	PublicKey       types.BLSPublicKey `json:"blsPublicKey"       yaml:"blsPublicKey"`
	CommonPublicKey types.BLSPublicKey `json:"commonBLSPublicKey" yaml:"commonBLSPublicKey"`
}

// Member is a committee member that can be asked for a signature share.
type Member struct {
	// Index is zero based.
	Index     int
	Endpoint  string
	PublicKey types.BLSPublicKey
}

// Info is a read-only committee snapshot taken before a signing request.
type Info struct {
	Threshold       int
	Participants    int
	CommonPublicKey types.BLSPublicKey
	Members         []Member
}

// Validate checks the snapshot before any share is requested.
func (i *Info) Validate() error {
	if i == nil {
		return types.NewConfigurationError("committee info is missing")
	}
	if err := ValidateThresholdParticipants(i.Threshold, i.Participants); err != nil {
		return err
	}
	if len(i.Members) == 0 {
		return types.NewConfigurationError("committee has no members")
	}
	seen := make(map[int]bool, len(i.Members))
	for _, m := range i.Members {
		if seen[m.Index] {
			return types.NewConfigurationError("duplicate committee member index %d", m.Index)
		}
		seen[m.Index] = true
	}
	return nil
}

// PublicKey returns the BLS public key of the member with the given index.
func (i *Info) PublicKey(index int) (types.BLSPublicKey, error) {
	for _, m := range i.Members {
		if m.Index != index {
			continue
		}
		if m.PublicKey.Incomplete() {
			return types.BLSPublicKey{}, types.NewConfigurationError("BLS public key of member %d is not available", index)
		}
		return m.PublicKey, nil
	}
	return types.BLSPublicKey{}, types.NewConfigurationError("member %d is not part of the committee", index)
}

// SortedMembers returns the members ordered by index.
func (i *Info) SortedMembers() []Member {
	out := make([]Member, len(i.Members))
	copy(out, i.Members)
	sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	return out
}

// ValidateThresholdParticipants rejects a non-positive threshold or participant count and a
// threshold above the participant count.
func ValidateThresholdParticipants(t, n int) error {
	if t <= 0 {
		return types.NewConfigurationError("threshold t=%d must be positive", t)
	}
	if n <= 0 {
		return types.NewConfigurationError("participants n=%d must be positive", n)
	}
	if t > n {
		return types.NewConfigurationError("threshold t=%d must not exceed participants n=%d", t, n)
	}
	return nil
}

// Directory is a read-only accessor over discovered committee nodes.
type Directory struct {
	chainName string
	nodes     []DiscoveredNode
}

func NewDirectory(chainName string, nodes []DiscoveredNode) *Directory {
	cp := make([]DiscoveredNode, len(nodes))
	copy(cp, nodes)
	return &Directory{chainName: chainName, nodes: cp}
}

func (d *Directory) ChainName() string {
	return d.chainName
}

func (d *Directory) firstDiscovered() (*DiscoveredNode, error) {
	for i := range d.nodes {
		if d.nodes[i].FullyDiscovered {
			return &d.nodes[i], nil
		}
	}
	return nil, types.NewConfigurationError("no fully discovered node in committee of %q", d.chainName)
}

// DiscoverThreshold returns t as reported by the first fully discovered node.
func (d *Directory) DiscoverThreshold() (int, error) {
	n, err := d.firstDiscovered()
	if err != nil {
		return 0, err
	}
	return n.Threshold, nil
}

// DiscoverParticipants returns n as reported by the first fully discovered node.
func (d *Directory) DiscoverParticipants() (int, error) {
	n, err := d.firstDiscovered()
	if err != nil {
		return 0, err
	}
	return n.Participants, nil
}

// DiscoverPublicKey returns the key of the node at position index.
func (d *Directory) DiscoverPublicKey(index int) (types.BLSPublicKey, error) {
	if index < 0 || index >= len(d.nodes) {
		return types.BLSPublicKey{}, types.NewConfigurationError(
			"node index %d out of range, committee of %q has %d nodes", index, d.chainName, len(d.nodes))
	}
	pk := d.nodes[index].PublicKey
	if pk.Incomplete() {
		return types.BLSPublicKey{}, types.NewConfigurationError(
			"BLS public key of node %d of %q is not available", index, d.chainName)
	}
	return pk, nil
}

// DiscoverCommonPublicKey returns the chain-wide key from the first fully discovered node.
func (d *Directory) DiscoverCommonPublicKey() (types.BLSPublicKey, error) {
	n, err := d.firstDiscovered()
	if err != nil {
		return types.BLSPublicKey{}, err
	}
	if n.CommonPublicKey.Incomplete() {
		return types.BLSPublicKey{}, types.NewConfigurationError("common BLS public key of %q is not available", d.chainName)
	}
	return n.CommonPublicKey, nil
}

// Info builds a validated snapshot of the committee.
// Members without a complete key are kept: their shares fail verification individually.
func (d *Directory) Info() (*Info, error) {
	t, err := d.DiscoverThreshold()
	if err != nil {
		return nil, err
	}
	n, err := d.DiscoverParticipants()
	if err != nil {
		return nil, err
	}
	if err := ValidateThresholdParticipants(t, n); err != nil {
		return nil, err
	}
	common, err := d.DiscoverCommonPublicKey()
	if err != nil {
		return nil, err
	}

	info := &Info{
		Threshold:       t,
		Participants:    n,
		CommonPublicKey: common,
		Members:         make([]Member, 0, len(d.nodes)),
	}
	for i, node := range d.nodes {
		info.Members = append(info.Members, Member{
			Index:     i,
			Endpoint:  node.Endpoint,
			PublicKey: node.PublicKey,
		})
	}
	return info, nil
}
