package types

import (
	"fmt"
)

// ConfigurationError is fatal for the request (or member) it is raised for and is never retried.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "configuration error: " + e.Msg }

func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// TransportError is a per-member failure to obtain a usable response: connection or RPC
// failure, malformed body, or a non-zero status reported by the member.
type TransportError struct {
	MemberIndex int
	Err         error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("member %d: transport error: %v", e.MemberIndex, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ShareVerificationError is a structurally valid share that failed cryptographic verification.
type ShareVerificationError struct {
	MemberIndex int
	Err         error
}

func (e *ShareVerificationError) Error() string {
	return fmt.Sprintf("member %d: signature share verification failed: %v", e.MemberIndex, e.Err)
}

func (e *ShareVerificationError) Unwrap() error { return e.Err }

type QuorumReason string

const (
	QuorumInsufficient QuorumReason = "insufficient"
	QuorumTimeout      QuorumReason = "timeout"
	QuorumCancelled    QuorumReason = "cancelled"
)

// QuorumError terminates a request that could not collect threshold verified shares.
// QuorumCancelled means the caller's context ended first.
type QuorumError struct {
	Reason    QuorumReason
	Threshold int
	Accepted  int
	Errors    int
	Contacted int
}

func (e *QuorumError) Error() string {
	switch e.Reason {
	case QuorumInsufficient:
		return fmt.Sprintf(
			"all %d contacted committee members responded, but only %d valid signature shares were collected "+
				"(threshold %d, errors %d)",
			e.Contacted, e.Accepted, e.Threshold, e.Errors,
		)
	case QuorumCancelled:
		return fmt.Sprintf(
			"signature share collection cancelled: %d of %d required were accepted (errors %d, contacted %d)",
			e.Accepted, e.Threshold, e.Errors, e.Contacted,
		)
	default:
		return fmt.Sprintf(
			"timed out collecting signature shares: %d of %d required were accepted (errors %d, contacted %d)",
			e.Accepted, e.Threshold, e.Errors, e.Contacted,
		)
	}
}

// AggregationError is a failure of the external glue or hash-to-curve step.
type AggregationError struct {
	Err    error
	Output []byte
}

func (e *AggregationError) Error() string {
	if len(e.Output) == 0 {
		return fmt.Sprintf("signature aggregation failed: %v", e.Err)
	}
	return fmt.Sprintf("signature aggregation failed: %v, output: %s", e.Err, e.Output)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// AggregateVerificationError is returned when the glued signature does not verify against
// the committee common public key.
type AggregateVerificationError struct {
	Err    error
	Output []byte
}

func (e *AggregateVerificationError) Error() string {
	if len(e.Output) == 0 {
		return fmt.Sprintf("aggregated signature verification failed: %v", e.Err)
	}
	return fmt.Sprintf("aggregated signature verification failed: %v, output: %s", e.Err, e.Output)
}

func (e *AggregateVerificationError) Unwrap() error { return e.Err }
