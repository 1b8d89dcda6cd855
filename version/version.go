// Package version provides the imasigner version command. Version and Commit are set at
// build time:
//
//	go build -ldflags "-X github.com/relaykit/imasigner/version.Version=1.0 \
//	  -X github.com/relaykit/imasigner/version.Commit=f0f7b7dab7e36c20b757cebce0e8f4fc5b95de60"
package version

import (
	"fmt"
	"runtime"
	dbg "runtime/debug"
)

var (
	// application's version string
	Version = ""
	// commit
	Commit = ""
)

const (
	cometModule = "github.com/cometbft/cometbft"
	gethModule  = "github.com/ethereum/go-ethereum"
)

// Info defines the application version information.
type Info struct {
	Version         string `json:"version" yaml:"version"`
	GitCommit       string `json:"commit" yaml:"commit"`
	GoVersion       string `json:"go_version" yaml:"go_version"`
	CometBFTVersion string `json:"cometbft_version" yaml:"cometbft_version"`
	GethVersion     string `json:"geth_version" yaml:"geth_version"`
}

func NewInfo() Info {
	deps := map[string]string{}
	if bi, ok := dbg.ReadBuildInfo(); ok {
		for _, dep := range bi.Deps {
			deps[dep.Path] = dep.Version
		}
	}

	return Info{
		Version:         Version,
		GitCommit:       Commit,
		GoVersion:       fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
		CometBFTVersion: deps[cometModule],
		GethVersion:     deps[gethModule],
	}
}

func (vi Info) String() string {
	return fmt.Sprintf(`imasigner: %s
git commit: %s
go version: %s
cometbft version: %s
go-ethereum version: %s
`,
		vi.Version, vi.GitCommit, vi.GoVersion, vi.CometBFTVersion, vi.GethVersion)
}
