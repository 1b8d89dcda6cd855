package committee_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/relaykit/imasigner/src/committee"
	"github.com/relaykit/imasigner/src/types"
	"github.com/stretchr/testify/require"
)

var (
	testCommonKey = types.BLSPublicKey{"c0", "c1", "c2", "c3"}
)

func testNodes(t, n int) []committee.DiscoveredNode {
	nodes := make([]committee.DiscoveredNode, n)
	for i := range nodes {
		nodes[i] = committee.DiscoveredNode{
			Endpoint:        "http://127.0.0.1:1500" + string(rune('0'+i)),
			FullyDiscovered: true,
			Threshold:       t,
			Participants:    n,
			PublicKey:       types.BLSPublicKey{"a", "b", "c", string(rune('0' + i))},
			CommonPublicKey: testCommonKey,
		}
	}
	return nodes
}

func TestValidateThresholdParticipants(t *testing.T) {
	type testCase struct {
		name      string
		t, n      int
		expectErr bool
	}

	testCases := []testCase{
		{name: "1 of 1", t: 1, n: 1},
		{name: "2 of 3", t: 2, n: 3},
		{name: "11 of 16", t: 11, n: 16},
		{name: "n of n", t: 5, n: 5},
		{name: "zero threshold", t: 0, n: 3, expectErr: true},
		{name: "negative threshold", t: -1, n: 3, expectErr: true},
		{name: "zero participants", t: 1, n: 0, expectErr: true},
		{name: "negative participants", t: 1, n: -4, expectErr: true},
		{name: "threshold above participants", t: 4, n: 3, expectErr: true},
	}

	for _, tc := range testCases {
		err := committee.ValidateThresholdParticipants(tc.t, tc.n)
		if !tc.expectErr {
			require.NoError(t, err, tc.name)
			continue
		}
		require.Error(t, err, tc.name)
		var cfgErr *types.ConfigurationError
		require.True(t, errors.As(err, &cfgErr), tc.name)
	}
}

func TestDiscoverFromFirstFullyDiscovered(t *testing.T) {
	nodes := testNodes(3, 5)
	nodes[0].FullyDiscovered = false
	nodes[0].Threshold = 99
	nodes[0].Participants = 100

	d := committee.NewDirectory("elated-tan-skat", nodes)

	threshold, err := d.DiscoverThreshold()
	require.NoError(t, err)
	require.Equal(t, 3, threshold)

	participants, err := d.DiscoverParticipants()
	require.NoError(t, err)
	require.Equal(t, 5, participants)

	common, err := d.DiscoverCommonPublicKey()
	require.NoError(t, err)
	require.Equal(t, testCommonKey, common)
}

func TestDiscoverNothingDiscovered(t *testing.T) {
	nodes := testNodes(2, 3)
	for i := range nodes {
		nodes[i].FullyDiscovered = false
	}
	d := committee.NewDirectory("elated-tan-skat", nodes)

	_, err := d.DiscoverThreshold()
	require.Error(t, err)

	_, err = d.Info()
	require.Error(t, err)
}

func TestDiscoverPublicKey(t *testing.T) {
	nodes := testNodes(2, 3)
	nodes[2].PublicKey = types.BLSPublicKey{"a", "", "c", "d"}
	d := committee.NewDirectory("elated-tan-skat", nodes)

	pk, err := d.DiscoverPublicKey(1)
	require.NoError(t, err)
	require.Equal(t, nodes[1].PublicKey, pk)

	var cfgErr *types.ConfigurationError

	_, err = d.DiscoverPublicKey(2)
	require.True(t, errors.As(err, &cfgErr))

	_, err = d.DiscoverPublicKey(3)
	require.True(t, errors.As(err, &cfgErr))

	_, err = d.DiscoverPublicKey(-1)
	require.True(t, errors.As(err, &cfgErr))
}

func TestInfo(t *testing.T) {
	for n := 1; n <= 6; n++ {
		for threshold := 1; threshold <= n; threshold++ {
			info, err := committee.NewDirectory("c", testNodes(threshold, n)).Info()
			require.NoError(t, err)
			require.NoError(t, info.Validate())
			require.Equal(t, threshold, info.Threshold)
			require.Equal(t, n, info.Participants)
			require.Len(t, info.Members, n)
			for i, m := range info.SortedMembers() {
				require.Equal(t, i, m.Index)
			}
		}
	}

	_, err := committee.NewDirectory("c", testNodes(4, 3)).Info()
	require.Error(t, err)
}

func TestInfoPublicKey(t *testing.T) {
	nodes := testNodes(2, 3)
	nodes[1].PublicKey = types.BLSPublicKey{}
	info, err := committee.NewDirectory("c", nodes).Info()
	require.NoError(t, err)

	pk, err := info.PublicKey(0)
	require.NoError(t, err)
	require.Equal(t, nodes[0].PublicKey, pk)

	var cfgErr *types.ConfigurationError
	_, err = info.PublicKey(1)
	require.True(t, errors.As(err, &cfgErr))

	_, err = info.PublicKey(7)
	require.True(t, errors.As(err, &cfgErr))
}

func TestInfoValidateDuplicateIndex(t *testing.T) {
	info, err := committee.NewDirectory("c", testNodes(2, 3)).Info()
	require.NoError(t, err)
	info.Members[2].Index = 0

	var cfgErr *types.ConfigurationError
	err = info.Validate()
	require.True(t, errors.As(err, &cfgErr))
	require.EqualError(t, err, "configuration error: duplicate committee member index 0")
}

func TestNilInfoValidate(t *testing.T) {
	var info *committee.Info
	require.Error(t, info.Validate())
}

func TestLoadSnapshot(t *testing.T) {
	dir := t.TempDir()

	yamlSnapshot := `chainName: elated-tan-skat
nodes:
  - endpoint: http://10.0.0.1:10003
    fullyDiscovered: true
    t: 2
    n: 3
    blsPublicKey: ["1", "2", "3", "4"]
    commonBLSPublicKey: ["5", "6", "7", "8"]
  - endpoint: http://10.0.0.2:10003
    fullyDiscovered: true
    t: 2
    n: 3
    blsPublicKey: ["9", "10", "11", "12"]
    commonBLSPublicKey: ["5", "6", "7", "8"]
  - endpoint: http://10.0.0.3:10003
    t: 2
    n: 3
`
	path := filepath.Join(dir, "committee.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlSnapshot), 0600))

	d, err := committee.LoadSnapshot(path)
	require.NoError(t, err)
	require.Equal(t, "elated-tan-skat", d.ChainName())

	info, err := d.Info()
	require.NoError(t, err)
	require.Equal(t, 2, info.Threshold)
	require.Equal(t, 3, info.Participants)
	require.Equal(t, types.BLSPublicKey{"5", "6", "7", "8"}, info.CommonPublicKey)
	require.Equal(t, "http://10.0.0.2:10003", info.Members[1].Endpoint)

	_, err = info.PublicKey(2)
	require.Error(t, err)

	jsonSnapshot := `{"chainName": "c", "nodes": [{"endpoint": "http://a", "fullyDiscovered": true, "t": 1, "n": 1, "blsPublicKey": ["1","2","3","4"], "commonBLSPublicKey": ["1","2","3","4"]}]}`
	path = filepath.Join(dir, "committee.json")
	require.NoError(t, os.WriteFile(path, []byte(jsonSnapshot), 0600))

	d, err = committee.LoadSnapshot(path)
	require.NoError(t, err)
	threshold, err := d.DiscoverThreshold()
	require.NoError(t, err)
	require.Equal(t, 1, threshold)

	_, err = committee.LoadSnapshot(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
