// errors.go
package parkcluster

import (
	"errors"
	"fmt"
)

// Kind tags a ClusterError with one of the error categories spec.md §7
// requires: Transport, Timeout, Protocol, Data, Quorum.
type Kind string

const (
	KindTransport Kind = "transport"
	KindTimeout   Kind = "timeout"
	KindProtocol  Kind = "protocol"
	KindData      Kind = "data"
	KindQuorum    Kind = "quorum"
)

// ClusterError is a tagged error: callers match on Kind rather than on
// string content to decide retry vs. surface-to-caller.
type ClusterError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *ClusterError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ClusterError) Unwrap() error { return e.Err }

func newErr(kind Kind, op string, err error) *ClusterError {
	return &ClusterError{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err (or any error it wraps) carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var ce *ClusterError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// Sentinel errors for conditions that do not need the request-specific
// Op/cause a ClusterError carries.
var (
	// ErrTimeout is returned by the request/reply gateway when the bounded
	// wait elapses with no matching correlation id observed.
	ErrTimeout = errors.New("request/reply timeout")
	// ErrNoQuorum names a consensus round that closed with fewer than
	// minNodes proposals. No function in this package returns it: the
	// dispatcher resolves a timed-out round over the proposals that arrived.
	ErrNoQuorum = errors.New("quorum not reached")
	// ErrUnknownZone names a zone the Data View cannot resolve. The
	// recommender does not use it: it logs recommender_unknown_zone and
	// proposes an empty list.
	ErrUnknownZone = errors.New("unknown zone")
	// ErrMalformedPayload is returned by codec parse functions on malformed
	// wire payloads (§6); per §7 this is logged and the message dropped,
	// never propagated as a reply.
	ErrMalformedPayload = errors.New("malformed payload")
)
