package errors

import "fmt"

// ErrorCode represents a Vouch error code.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrNoSnapshot       ErrorCode = "NO_SNAPSHOT"       // 404
	ErrAlreadyDecided   ErrorCode = "ALREADY_DECIDED"   // 409
	ErrNotApproved      ErrorCode = "NOT_APPROVED"      // 409
	ErrConflict         ErrorCode = "CONFLICT"          // 409
	ErrUniqueConstraint ErrorCode = "UNIQUE_CONSTRAINT" // 409
	ErrInternal         ErrorCode = "INTERNAL"          // 500
)

// VouchError represents a structured error with code, status, and details.
type VouchError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *VouchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *VouchError {
	return &VouchError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing record.
func NewNotFound(kind, identifier string) *VouchError {
	return &VouchError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewNoSnapshot creates a 404 error for an unresolvable snapshot reference.
func NewNoSnapshot(ref string) *VouchError {
	return &VouchError{
		Code:    ErrNoSnapshot,
		Status:  404,
		Message: fmt.Sprintf("no snapshot for reference: %s", ref),
		Details: map[string]any{"reference": ref},
	}
}

// NewAlreadyDecided creates a 409 error for a decision on a terminal candidate.
func NewAlreadyDecided(candidateID, status string) *VouchError {
	return &VouchError{
		Code:    ErrAlreadyDecided,
		Status:  409,
		Message: fmt.Sprintf("candidate %s already decided: %s", candidateID, status),
		Details: map[string]any{"candidate_id": candidateID, "status": status},
	}
}

// NewNotApproved creates a 409 error for promoting a non-accepted candidate.
func NewNotApproved(candidateID, status string) *VouchError {
	return &VouchError{
		Code:    ErrNotApproved,
		Status:  409,
		Message: fmt.Sprintf("candidate %s is %s, not accepted", candidateID, status),
		Details: map[string]any{"candidate_id": candidateID, "status": status},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *VouchError {
	return &VouchError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *VouchError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &VouchError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a VouchError with the given code.
func Is(err error, code ErrorCode) bool {
	if vErr, ok := err.(*VouchError); ok {
		return vErr.Code == code
	}
	return false
}
