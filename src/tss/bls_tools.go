package tss

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/relaykit/imasigner/src/types"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultGlueTool        = "bls_glue"
	DefaultHashToCurveTool = "hash_g1"
	DefaultVerifyTool      = "verify_bls"

	defaultMaxConcurrent = 8

	hashFile            = "hash.json"
	glueResultFile      = "glue-result.json"
	g1File              = "g1.json"
	commonPublicKeyFile = "common_public_key.json"
)

var _ CryptoProvider = &BLSTools{}

// ToolsConfig locates the external BLS command line tools.
type ToolsConfig struct {
	// Dir is prepended to the tool names when set, otherwise tools are looked up in PATH.
	Dir         string
	Glue        string
	HashToCurve string
	Verify      string
	// TempDir is the parent of the per call workspaces, os.TempDir() when empty.
	TempDir string
	// MaxConcurrent bounds the number of tool processes running at once.
	MaxConcurrent int
}

// BLSTools implements CryptoProvider by running the external BLS tools.
// Every call gets its own freshly created workspace which is removed when the call returns,
// so concurrent calls never share files.
type BLSTools struct {
	logger log.Logger

	glue   string
	hashG1 string
	verify string

	tempDir string
	sem     *semaphore.Weighted
}

// NewBLSTools resolves the configured tools and fails if any of them is not executable.
func NewBLSTools(logger log.Logger, cfg ToolsConfig) (*BLSTools, error) {
	resolve := func(name, fallback string) (string, error) {
		if name == "" {
			name = fallback
		}
		if cfg.Dir != "" && !filepath.IsAbs(name) {
			name = filepath.Join(cfg.Dir, name)
		}
		path, err := exec.LookPath(name)
		if err != nil {
			return "", fmt.Errorf("BLS tool %s is not available: %w", name, err)
		}
		return path, nil
	}

	glue, err := resolve(cfg.Glue, DefaultGlueTool)
	if err != nil {
		return nil, err
	}
	hashG1, err := resolve(cfg.HashToCurve, DefaultHashToCurveTool)
	if err != nil {
		return nil, err
	}
	verify, err := resolve(cfg.Verify, DefaultVerifyTool)
	if err != nil {
		return nil, err
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	return &BLSTools{
		logger:  logger,
		glue:    glue,
		hashG1:  hashG1,
		verify:  verify,
		tempDir: cfg.TempDir,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
	}, nil
}

type hashMessage struct {
	Message string `json:"message"`
}

type signResultFile struct {
	SignatureShare string `json:"signatureShare"`
	Hash           string `json:"hash"`
	Status         int    `json:"status"`
}

type glueResult struct {
	Signature G1Point `json:"signature"`
}

type g1Result struct {
	G1 HashPoint `json:"g1"`
}

type memberPublicKeyFile struct {
	Encryption string `json:"encryption"`
	Key0       string `json:"insecureBLSPublicKey0"`
	Key1       string `json:"insecureBLSPublicKey1"`
	Key2       string `json:"insecureBLSPublicKey2"`
	Key3       string `json:"insecureBLSPublicKey3"`
}

type commonPublicKey struct {
	Key0 string `json:"commonBLSPublicKey0"`
	Key1 string `json:"commonBLSPublicKey1"`
	Key2 string `json:"commonBLSPublicKey2"`
	Key3 string `json:"commonBLSPublicKey3"`
}

func signResultFileName(index int) string {
	return fmt.Sprintf("sign-result%d.json", index)
}

func thresholdArgs(p Params) []string {
	return []string{"--t", strconv.Itoa(p.Threshold), "--n", strconv.Itoa(p.Participants)}
}

// VerifyShare runs the per member verifier: `verify --t T --n N --j INDEX --input ./sign-resultINDEX.json`.
func (b *BLSTools) VerifyShare(
	ctx context.Context,
	p Params,
	hash string,
	share SignatureShare,
	pk types.BLSPublicKey,
) error {
	dir, err := b.workspace("verify-share")
	if err != nil {
		return err
	}
	defer b.removeAll(dir)

	j := share.MemberIndex
	inputFile := signResultFileName(j)

	if err := writeJSON(dir, hashFile, hashMessage{Message: types.Strip0x(hash)}); err != nil {
		return err
	}
	if err := writeJSON(dir, fmt.Sprintf("BLS_keys%d.json", j), memberPublicKeyFile{
		Encryption: "bls",
		Key0:       pk[0],
		Key1:       pk[1],
		Key2:       pk[2],
		Key3:       pk[3],
	}); err != nil {
		return err
	}
	if err := writeJSON(dir, inputFile, signResultFile{
		SignatureShare: share.String(),
		Hash:           types.Strip0x(hash),
	}); err != nil {
		return err
	}

	args := append(thresholdArgs(p), "--j", strconv.Itoa(j), "--input", "./"+inputFile)
	if out, err := b.run(ctx, dir, b.verify, args...); err != nil {
		return fmt.Errorf("%w, output: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Aggregate glues the shares and maps the hash onto G1 in the same workspace.
func (b *BLSTools) Aggregate(
	ctx context.Context,
	p Params,
	hash string,
	shares []SignatureShare,
) (*AggregateResult, error) {
	if len(shares) == 0 {
		return nil, &types.AggregationError{Err: errors.New("no signature shares to aggregate")}
	}

	dir, err := b.workspace("glue")
	if err != nil {
		return nil, &types.AggregationError{Err: err}
	}
	defer b.removeAll(dir)

	if err := writeJSON(dir, hashFile, hashMessage{Message: types.Strip0x(hash)}); err != nil {
		return nil, &types.AggregationError{Err: err}
	}

	args := thresholdArgs(p)
	for _, share := range shares {
		name := signResultFileName(share.MemberIndex)
		if err := writeJSON(dir, name, signResultFile{
			SignatureShare: share.String(),
			Hash:           types.Strip0x(hash),
		}); err != nil {
			return nil, &types.AggregationError{Err: err}
		}
		args = append(args, "--input", "./"+name)
	}
	args = append(args, "--output", "./"+glueResultFile)

	out, err := b.run(ctx, dir, b.glue, args...)
	if err != nil {
		return nil, &types.AggregationError{Err: err, Output: out}
	}

	var glued glueResult
	if err := readJSON(dir, glueResultFile, &glued); err != nil {
		return nil, &types.AggregationError{Err: err, Output: out}
	}
	if glued.Signature.X == "" || glued.Signature.Y == "" {
		return nil, &types.AggregationError{Err: errors.New("glue result has no signature"), Output: out}
	}

	hp, out, err := b.hashToCurveIn(ctx, dir, p)
	if err != nil {
		return nil, &types.AggregationError{Err: err, Output: out}
	}

	return &AggregateResult{
		Signature:  glued.Signature,
		SourceHash: hash,
		HashPoint:  hp.Point,
		Hint:       hp.Hint,
	}, nil
}

// HashToCurve maps hash onto G1 in a workspace of its own.
func (b *BLSTools) HashToCurve(ctx context.Context, p Params, hash string) (*HashPoint, error) {
	dir, err := b.workspace("hash-g1")
	if err != nil {
		return nil, &types.AggregationError{Err: err}
	}
	defer b.removeAll(dir)

	if err := writeJSON(dir, hashFile, hashMessage{Message: types.Strip0x(hash)}); err != nil {
		return nil, &types.AggregationError{Err: err}
	}

	hp, out, err := b.hashToCurveIn(ctx, dir, p)
	if err != nil {
		return nil, &types.AggregationError{Err: err, Output: out}
	}
	return hp, nil
}

// hashToCurveIn expects hash.json to be present in dir already.
func (b *BLSTools) hashToCurveIn(ctx context.Context, dir string, p Params) (*HashPoint, []byte, error) {
	out, err := b.run(ctx, dir, b.hashG1, thresholdArgs(p)...)
	if err != nil {
		return nil, out, err
	}

	var res g1Result
	if err := readJSON(dir, g1File, &res); err != nil {
		return nil, out, err
	}
	if res.G1.Point.X == "" || res.G1.Point.Y == "" {
		return nil, out, errors.New("hash-to-curve result has no hash point")
	}
	return &res.G1, out, nil
}

// VerifyAggregate runs the summary verifier against the common public key.
func (b *BLSTools) VerifyAggregate(
	ctx context.Context,
	p Params,
	hash string,
	sig G1Point,
	common types.BLSPublicKey,
) error {
	dir, err := b.workspace("verify-glue")
	if err != nil {
		return &types.AggregateVerificationError{Err: err}
	}
	defer b.removeAll(dir)

	if err := writeJSON(dir, hashFile, hashMessage{Message: types.Strip0x(hash)}); err != nil {
		return &types.AggregateVerificationError{Err: err}
	}
	if err := writeJSON(dir, glueResultFile, glueResult{Signature: sig}); err != nil {
		return &types.AggregateVerificationError{Err: err}
	}
	if err := writeJSON(dir, commonPublicKeyFile, commonPublicKey{
		Key0: common[0],
		Key1: common[1],
		Key2: common[2],
		Key3: common[3],
	}); err != nil {
		return &types.AggregateVerificationError{Err: err}
	}

	args := append(thresholdArgs(p), "--input", "./"+glueResultFile)
	if out, err := b.run(ctx, dir, b.verify, args...); err != nil {
		return &types.AggregateVerificationError{Err: err, Output: out}
	}
	return nil
}

func (b *BLSTools) run(ctx context.Context, dir, exe string, args ...string) ([]byte, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for BLS tool slot: %w", err)
	}
	defer b.sem.Release(1)

	//nolint: gosec
	// G204: tool paths come from local configuration
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w", filepath.Base(exe), strings.Join(args, " "), err)
	}

	b.logger.Debug("BLS tool finished", "tool", filepath.Base(exe), "dir", dir)
	return out, nil
}

func (b *BLSTools) workspace(op string) (string, error) {
	dir, err := os.MkdirTemp(b.tempDir, "imasigner-"+op+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create BLS workspace: %w", err)
	}
	return dir, nil
}

func (b *BLSTools) removeAll(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		b.logger.Error("Failed to remove BLS workspace", "dir", dir, "err", err)
	}
}

func writeJSON(dir, name string, v interface{}) error {
	bz, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), bz, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func readJSON(dir, name string, v interface{}) error {
	bz, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(bz, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}
