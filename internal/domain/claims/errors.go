package claims

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a business rule violation.
type ErrorCode string

const (
	CodeIssueNotFound           ErrorCode = "ISSUE_NOT_FOUND"
	CodeAlreadyClaimed          ErrorCode = "ALREADY_CLAIMED"
	CodeNotClaimed              ErrorCode = "NOT_CLAIMED"
	CodeUnauthorized            ErrorCode = "UNAUTHORIZED"
	CodeClaimantNotFound        ErrorCode = "CLAIMANT_NOT_FOUND"
	CodeClaimantAtCapacity      ErrorCode = "CLAIMANT_AT_CAPACITY"
	CodeMaxClaimsExceeded       ErrorCode = "MAX_CLAIMS_EXCEEDED"
	CodeCapabilityMismatch      ErrorCode = "CAPABILITY_MISMATCH"
	CodeHandoffPending          ErrorCode = "HANDOFF_PENDING"
	CodeHandoffNotFound         ErrorCode = "HANDOFF_NOT_FOUND"
	CodeInvalidStatusTransition ErrorCode = "INVALID_STATUS_TRANSITION"
	CodeValidationError         ErrorCode = "VALIDATION_ERROR"
	CodeNotStealable            ErrorCode = "NOT_STEALABLE"
	CodeInGracePeriod           ErrorCode = "IN_GRACE_PERIOD"
	CodeProtectedByProgress     ErrorCode = "PROTECTED_BY_PROGRESS"
	CodeCrossTypeNotAllowed     ErrorCode = "CROSS_TYPE_NOT_ALLOWED"
	CodeContestPending          ErrorCode = "CONTEST_PENDING"
	CodeStealerOverloaded       ErrorCode = "STEALER_OVERLOADED"
	CodeNoContest               ErrorCode = "NO_CONTEST"
	CodeContestResolved         ErrorCode = "CONTEST_ALREADY_RESOLVED"
	CodeContestWindowExpired    ErrorCode = "CONTEST_WINDOW_EXPIRED"
	CodeConcurrentModification  ErrorCode = "CONCURRENT_MODIFICATION"
)

// ClaimError is an expected business violation returned by rules and services.
type ClaimError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ClaimError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any ClaimError carrying the same code.
func (e *ClaimError) Is(target error) bool {
	var other *ClaimError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// WithDetail attaches a detail value and returns the error.
func (e *ClaimError) WithDetail(key string, value interface{}) *ClaimError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewClaimError creates a ClaimError with a formatted message.
func NewClaimError(code ErrorCode, format string, args ...interface{}) *ClaimError {
	return &ClaimError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the error code from err, or "" when err is not a ClaimError.
func CodeOf(err error) ErrorCode {
	var ce *ClaimError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// Sentinels for errors.Is comparisons.
var (
	ErrIssueNotFound           = &ClaimError{Code: CodeIssueNotFound, Message: "issue not found"}
	ErrAlreadyClaimed          = &ClaimError{Code: CodeAlreadyClaimed, Message: "issue is already claimed"}
	ErrNotClaimed              = &ClaimError{Code: CodeNotClaimed, Message: "issue is not claimed"}
	ErrUnauthorized            = &ClaimError{Code: CodeUnauthorized, Message: "caller does not own the claim"}
	ErrClaimantNotFound        = &ClaimError{Code: CodeClaimantNotFound, Message: "claimant not found"}
	ErrClaimantAtCapacity      = &ClaimError{Code: CodeClaimantAtCapacity, Message: "claimant is at capacity"}
	ErrMaxClaimsExceeded       = &ClaimError{Code: CodeMaxClaimsExceeded, Message: "maximum concurrent claims exceeded"}
	ErrCapabilityMismatch      = &ClaimError{Code: CodeCapabilityMismatch, Message: "claimant lacks required capabilities"}
	ErrHandoffPending          = &ClaimError{Code: CodeHandoffPending, Message: "a handoff is pending"}
	ErrHandoffNotFound         = &ClaimError{Code: CodeHandoffNotFound, Message: "no pending handoff"}
	ErrInvalidStatusTransition = &ClaimError{Code: CodeInvalidStatusTransition, Message: "invalid status transition"}
	ErrValidation              = &ClaimError{Code: CodeValidationError, Message: "validation failed"}
	ErrNotStealable            = &ClaimError{Code: CodeNotStealable, Message: "claim is not stealable"}
	ErrInGracePeriod           = &ClaimError{Code: CodeInGracePeriod, Message: "claim is within its grace period"}
	ErrProtectedByProgress     = &ClaimError{Code: CodeProtectedByProgress, Message: "claim is protected by progress"}
	ErrCrossTypeNotAllowed     = &ClaimError{Code: CodeCrossTypeNotAllowed, Message: "cross-type steal not allowed"}
	ErrContestPending          = &ClaimError{Code: CodeContestPending, Message: "a steal contest is pending"}
	ErrStealerOverloaded       = &ClaimError{Code: CodeStealerOverloaded, Message: "stealer is overloaded"}
	ErrNoContest               = &ClaimError{Code: CodeNoContest, Message: "no contest for claim"}
	ErrContestResolved         = &ClaimError{Code: CodeContestResolved, Message: "contest already resolved"}
	ErrContestWindowExpired    = &ClaimError{Code: CodeContestWindowExpired, Message: "contest window has expired"}
	ErrConcurrentModification  = &ClaimError{Code: CodeConcurrentModification, Message: "claim was modified concurrently"}
)
