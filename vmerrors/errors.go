package vmerrors

import (
	"errors"
	"strings"
)

// Host (H) Errors. These abort the whole transaction, never just a frame.
var (
	ErrBackendUnavailable = errors.New("H1|BackendUnavailable: State backend could not resolve the query.")
	ErrCorruptRecord      = errors.New("H2|CorruptRecord: State backend returned a record that could not be decoded.")
	ErrRequestReused      = errors.New("H3|RequestReused: A call or create descriptor was dispatched twice.")
	ErrConcurrentUse      = errors.New("H4|ConcurrentUse: Host is already driving a transaction.")
	ErrStepLimit          = errors.New("H5|StepLimit: Transaction exceeded the configured step limit.")
	ErrCancelled          = errors.New("H6|Cancelled: Transaction context was cancelled while stepping.")
	ErrHostSpent          = errors.New("H7|HostSpent: Host already ran a transaction.")
)

// Backend (B) Errors
var (
	ErrReadOnlyBackend = errors.New("B1|ReadOnlyBackend: Backend does not accept state writes.")
	ErrBlockNotPinned  = errors.New("B2|BlockNotPinned: Remote backend needs a block number to fork from.")
)

// Transaction (T) Errors. The transaction is rejected before any frame runs.
var (
	ErrIntrinsicGas      = errors.New("T1|IntrinsicGas: Transaction gas limit is below its intrinsic cost.")
	ErrInsufficientFunds = errors.New("T2|InsufficientFunds: Origin cannot pay for gas and value.")
	ErrNonceMax          = errors.New("T3|NonceMax: Origin nonce is at its maximum.")
)

var allErrors = []error{
	ErrBackendUnavailable,
	ErrCorruptRecord,
	ErrRequestReused,
	ErrConcurrentUse,
	ErrStepLimit,
	ErrCancelled,
	ErrHostSpent,
	ErrReadOnlyBackend,
	ErrBlockNotPinned,
	ErrIntrinsicGas,
	ErrInsufficientFunds,
	ErrNonceMax,
}

// sentinel returns the registered error wrapped by err, or err itself.
func sentinel(err error) error {
	for _, e := range allErrors {
		if errors.Is(err, e) {
			return e
		}
	}
	return err
}

// GetErrorName extracts the error name from the error message.
func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	errStr := sentinel(err).Error()
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	nameParts := strings.SplitN(parts[1], ":", 2)
	return strings.TrimSpace(nameParts[0])
}

// GetErrorCode extracts the error code from the error message.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	errStr := sentinel(err).Error()
	if !strings.Contains(errStr, "|") {
		return ""
	}
	parts := strings.SplitN(errStr, "|", 2)
	return strings.TrimSpace(parts[0])
}

// GetErrorCodeWithName returns the error code and name in the format "Code_ErrorName".
func GetErrorCodeWithName(err error) string {
	code := GetErrorCode(err)
	name := GetErrorName(err)
	if code == "" || name == "" {
		return ""
	}
	return code + "_" + name
}

// IsHostError reports whether err wraps one of the registered sentinels.
// Anything else came from outside this module.
func IsHostError(err error) bool {
	for _, e := range allErrors {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// IsTxError reports whether err rejects a transaction before execution.
func IsTxError(err error) bool {
	return errors.Is(err, ErrIntrinsicGas) || errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrNonceMax)
}
