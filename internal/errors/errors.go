package errors

import (
	"fmt"
)

// PrismError is the structured error type shared by every prism component.
// It carries enough context for logging and for callers that need to branch
// on error kind (is this retryable, is this partial, does this need to
// surface a specific Placement failure reason).
type PrismError struct {
	// Code is the unique error code (e.g., "ERR_101_COLLECTION_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Caller, Engine, Transport, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried. Only set for
	// transport-layer errors; the propagator is the sole retrying caller.
	Retryable bool
}

// Error implements the error interface.
func (e *PrismError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *PrismError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code, so errors.Is
// works against a sentinel built with the same code.
func (e *PrismError) Is(target error) bool {
	if t, ok := target.(*PrismError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error. Returns the error for
// method chaining.
func (e *PrismError) WithDetail(key, value string) *PrismError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new PrismError with the given code and message. Category,
// severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *PrismError {
	return &PrismError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a PrismError from an existing error, using the error's
// message as the PrismError message.
func Wrap(code string, err error) *PrismError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// CollectionNotFound reports a lookup against a collection name the
// collection manager has no schema for.
func CollectionNotFound(name string) *PrismError {
	return New(ErrCodeCollectionNotFound, fmt.Sprintf("collection %q not found", name), nil).
		WithDetail("collection", name)
}

// SchemaErr reports an invalid or incompatible collection schema.
func SchemaErr(reason string) *PrismError {
	return New(ErrCodeSchema, reason, nil)
}

// InvalidQuery reports a malformed hybrid or text query.
func InvalidQuery(reason string) *PrismError {
	return New(ErrCodeInvalidQuery, reason, nil)
}

// Backend reports a local search backend failure (text index, vector
// index). Also used for programmer errors such as indexing into a sealed
// segment, which must not occur under normal control flow.
func Backend(reason string, cause error) *PrismError {
	return New(ErrCodeBackend, reason, cause)
}

// Storage reports a local persistence failure (segment persist/restore,
// snapshot read/write).
func Storage(reason string, cause error) *PrismError {
	return New(ErrCodeStorage, reason, cause)
}

// Connection reports a failure to establish or reuse an RPC connection to
// a peer. Retryable by the propagator.
func Connection(peer string, cause error) *PrismError {
	return New(ErrCodeConnection, fmt.Sprintf("connection to %s failed", peer), cause).
		WithDetail("peer", peer)
}

// Transport reports a failure at the framing/stream layer of an
// established RPC connection. Retryable by the propagator.
func Transport(reason string, cause error) *PrismError {
	return New(ErrCodeTransport, reason, cause)
}

// Timeout reports an RPC that did not complete within its deadline.
// Retryable by the propagator; query RPCs are not auto-retried.
func Timeout(op string, cause error) *PrismError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out", op), cause).
		WithDetail("op", op)
}

// ConfigErr reports invalid configuration or an unparsable address.
func ConfigErr(reason string) *PrismError {
	return New(ErrCodeConfig, reason, nil)
}

// Discovery reports a membership lookup failure (DNS resolution, empty
// result set).
func Discovery(reason string, cause error) *PrismError {
	return New(ErrCodeDiscovery, reason, cause)
}

// PlacementInsufficientNodes reports that fewer healthy nodes exist than
// the requested replication factor.
func PlacementInsufficientNodes(have, want int) *PrismError {
	return New(ErrCodePlacementInsufficientNodes,
		fmt.Sprintf("insufficient nodes: have %d, need %d", have, want), nil)
}

// PlacementInsufficientZones reports that fewer distinct zones exist than
// the replication factor requires under Zone spread.
func PlacementInsufficientZones(have, want int) *PrismError {
	return New(ErrCodePlacementInsufficientZones,
		fmt.Sprintf("insufficient zones: have %d, need %d", have, want), nil)
}

// PlacementInsufficientRacks reports that fewer distinct racks exist than
// the replication factor requires under Rack spread.
func PlacementInsufficientRacks(have, want int) *PrismError {
	return New(ErrCodePlacementInsufficientRacks,
		fmt.Sprintf("insufficient racks: have %d, need %d", have, want), nil)
}

// PlacementNoHealthyNodes reports that the candidate pool is empty after
// the hard filter removes unhealthy nodes.
func PlacementNoHealthyNodes() *PrismError {
	return New(ErrCodePlacementNoHealthyNodes, "no healthy nodes available for placement", nil)
}

// PlacementNodeNotFound reports a reference to a node id absent from
// cluster state.
func PlacementNodeNotFound(nodeID string) *PrismError {
	return New(ErrCodePlacementNodeNotFound, fmt.Sprintf("node %q not found", nodeID), nil).
		WithDetail("node_id", nodeID)
}

// PlacementRequiredAttributeMissing reports a node missing an attribute
// (zone, rack, region) that the configured spread level requires.
func PlacementRequiredAttributeMissing(nodeID, attribute string) *PrismError {
	return New(ErrCodePlacementRequiredAttributeMissing,
		fmt.Sprintf("node %q missing required attribute %q", nodeID, attribute), nil).
		WithDetail("node_id", nodeID).
		WithDetail("attribute", attribute)
}

// NotImplemented reports a called path not yet supported. Surfaced as-is
// to the client.
func NotImplemented(what string) *PrismError {
	return New(ErrCodeNotImplemented, fmt.Sprintf("%s not implemented", what), nil)
}

// IsRetryable reports whether err is a PrismError with the Retryable flag
// set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if pe, ok := err.(*PrismError); ok {
		return pe.Retryable
	}
	return false
}

// IsFatal reports whether err is a PrismError with fatal severity.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if pe, ok := err.(*PrismError); ok {
		return pe.Severity == SeverityFatal
	}
	return false
}

// Code extracts the error code from a PrismError, or "" if err is not one.
func Code(err error) string {
	if pe, ok := err.(*PrismError); ok {
		return pe.Code
	}
	return ""
}

// GetCategory extracts the category from a PrismError, or "" if err is not
// one.
func GetCategory(err error) Category {
	if pe, ok := err.(*PrismError); ok {
		return pe.Category
	}
	return ""
}
