package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for routing and response mapping.
type Kind string

const (
	KindUnknown                  Kind = "Unknown"
	KindSchemaMismatch           Kind = "SchemaMismatchError"
	KindFeatureContractViolation Kind = "FeatureContractViolation"
	KindInsufficientHistory      Kind = "InsufficientHistoryError"
	KindModelInference           Kind = "ModelInferenceError"
	KindPricingDomain            Kind = "PricingDomainError"
	KindInvalidRequest           Kind = "InvalidRequest"
	KindStoreTimeout             Kind = "StoreTimeout"
	KindStoreUnavailable         Kind = "StoreUnavailable"
	KindArtifactUnavailable      Kind = "ArtifactUnavailable"
)

// Error is a typed failure raised by the inference core.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a typed error.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Newf creates a typed error with formatting.
func Newf(kind Kind, op, format string, a ...interface{}) *Error {
	return New(kind, op, fmt.Sprintf(format, a...))
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func SchemaMismatch(op, format string, a ...interface{}) *Error {
	return Newf(KindSchemaMismatch, op, format, a...)
}

func ContractViolation(op, format string, a ...interface{}) *Error {
	return Newf(KindFeatureContractViolation, op, format, a...)
}

func InsufficientHistory(op string, have, want int) *Error {
	return Newf(KindInsufficientHistory, op, "window has %d entries, need %d", have, want)
}

func ModelInference(op string, err error) *Error {
	return Wrap(KindModelInference, op, err)
}

func PricingDomain(op string, price float64) *Error {
	return Newf(KindPricingDomain, op, "price %g is outside the non-negative domain", price)
}

func InvalidRequest(op, format string, a ...interface{}) *Error {
	return Newf(KindInvalidRequest, op, format, a...)
}

// Store classifies an entity store failure, separating deadline expiry from other faults.
func Store(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindStoreTimeout, op, err)
	}
	return Wrap(KindStoreUnavailable, op, err)
}

// KindOf returns the kind of the outermost typed error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status maps a kind onto an HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case KindSchemaMismatch, KindInsufficientHistory:
		return http.StatusUnprocessableEntity
	case KindFeatureContractViolation, KindInvalidRequest:
		return http.StatusBadRequest
	case KindStoreTimeout:
		return http.StatusGatewayTimeout
	case KindStoreUnavailable, KindArtifactUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the stable API error code for kind.
func Code(kind Kind) string {
	switch kind {
	case KindSchemaMismatch:
		return "ERR_SCHEMA_MISMATCH"
	case KindFeatureContractViolation:
		return "ERR_FEATURE_CONTRACT"
	case KindInsufficientHistory:
		return "ERR_INSUFFICIENT_HISTORY"
	case KindModelInference:
		return "ERR_MODEL_INFERENCE"
	case KindPricingDomain:
		return "ERR_PRICING_DOMAIN"
	case KindInvalidRequest:
		return "ERR_BAD_REQUEST"
	case KindStoreTimeout:
		return "ERR_STORE_TIMEOUT"
	case KindStoreUnavailable:
		return "ERR_STORE_UNAVAILABLE"
	case KindArtifactUnavailable:
		return "ERR_ARTIFACT_UNAVAILABLE"
	default:
		return "ERR_INTERNAL"
	}
}
