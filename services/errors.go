package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dosada05/league-orchestrator/provider"
)

// ErrorCode is a stable, caller-facing failure code. Every typed service error matches its
// code with errors.Is, e.g. errors.Is(err, CodeInvalidScore).
type ErrorCode string

func (c ErrorCode) Error() string { return string(c) }

// Коды ошибок, используемые в сервисах и маппинге HTTP.
const (
	// Validation
	CodeInvalidScore           ErrorCode = "INVALID_SCORE"
	CodeInvalidInput           ErrorCode = "INVALID_INPUT"
	CodeNotEnoughDivisionNames ErrorCode = "NOT_ENOUGH_DIVISION_NAMES"
	CodeEmptyWaitlist          ErrorCode = "EMPTY_WAITLIST"

	// Not found
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeParticipantNotFound ErrorCode = "PARTICIPANT_NOT_FOUND"
	CodeMatchNotFound       ErrorCode = "MATCH_NOT_FOUND"
	CodeNotRegistered       ErrorCode = "NOT_REGISTERED"

	// Conflict
	CodeAlreadyRegistered     ErrorCode = "ALREADY_REGISTERED"
	CodeDuplicateIGN          ErrorCode = "DUPLICATE_IGN"
	CodeCapacityExceeded      ErrorCode = "CAPACITY_EXCEEDED"
	CodeAmbiguous             ErrorCode = "AMBIGUOUS"
	CodeNameTaken             ErrorCode = "NAME_TAKEN"
	CodeAlreadyStarted        ErrorCode = "ALREADY_STARTED"
	CodeNotStarted            ErrorCode = "NOT_STARTED"
	CodeIncompleteMatches     ErrorCode = "INCOMPLETE_MATCHES"
	CodeReconciliationPending ErrorCode = "RECONCILIATION_PENDING"

	// External
	CodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	CodeProviderRejected    ErrorCode = "PROVIDER_REJECTED"

	CodeReconciliationNeeded ErrorCode = "RECONCILIATION_NEEDED"
)

// ValidationError is raised before any lookup or provider call.
type ValidationError struct {
	Code    ErrorCode
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	c, ok := target.(ErrorCode)
	return ok && c == e.Code
}

// NotFoundError also matches CodeNotFound whatever its specific code is.
type NotFoundError struct {
	Code     ErrorCode
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s %q not found", e.Code, e.Resource, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	c, ok := target.(ErrorCode)
	return ok && (c == e.Code || c == CodeNotFound)
}

type ConflictError struct {
	Code    ErrorCode
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ConflictError) Is(target error) bool {
	c, ok := target.(ErrorCode)
	return ok && c == e.Code
}

// ExternalServiceError wraps a provider failure. Local state is unchanged when it is returned.
type ExternalServiceError struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func (e *ExternalServiceError) Is(target error) bool {
	c, ok := target.(ErrorCode)
	return ok && c == e.Code
}

// ReconciliationNeededError means a write was committed locally but its upstream effect is unknown.
// The report stays flagged until the reconciler settles it.
type ReconciliationNeededError struct {
	ReportID string
	Op       string
	Err      error
}

func (e *ReconciliationNeededError) Error() string {
	return fmt.Sprintf("%s: %s (report %s): %v", CodeReconciliationNeeded, e.Op, e.ReportID, e.Err)
}

func (e *ReconciliationNeededError) Unwrap() error { return e.Err }

func (e *ReconciliationNeededError) Is(target error) bool {
	c, ok := target.(ErrorCode)
	return ok && c == CodeReconciliationNeeded
}

func validationErr(code ErrorCode, field, format string, args ...any) error {
	return &ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

func notFoundErr(code ErrorCode, resource, key string) error {
	return &NotFoundError{Code: code, Resource: resource, Key: key}
}

func conflictErr(code ErrorCode, format string, args ...any) error {
	return &ConflictError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// externalErr classifies a provider error. Context cancellation is passed through untouched.
func externalErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	code := CodeProviderRejected
	if provider.IsTransient(err) {
		code = CodeProviderUnavailable
	}
	return &ExternalServiceError{Code: code, Op: op, Err: err}
}
