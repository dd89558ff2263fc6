package platform

import (
	"errors"
	"fmt"

	"privalytics/domain/core"
	apperrors "privalytics/internal/errors"
)

// Envelope is the uniform response shape of every facade operation. Exactly
// one of Data and Error is set.
type Envelope struct {
	Success  bool        `json:"success"`
	Data     interface{} `json:"data,omitempty"`
	Error    *ErrorBody  `json:"error,omitempty"`
	Metadata Metadata    `json:"metadata"`
}

// ErrorBody carries a stable machine code plus a human-readable message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Metadata is attached to every envelope, success or failure.
type Metadata struct {
	Timestamp        core.Timestamp `json:"timestamp"`
	RequestID        core.RequestID `json:"requestId"`
	ProcessingTimeMs int64          `json:"processingTime"`
}

// errorCode maps domain sentinels and AppErrors onto envelope codes.
func errorCode(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	switch {
	case core.IsConsentError(err):
		return apperrors.CodeConsentDenied
	case core.IsNotFoundError(err):
		return apperrors.CodeNotFound
	case errors.Is(err, core.ErrRoleNotPermitted):
		return apperrors.CodeUnauthorized
	case errors.Is(err, core.ErrQueryTooComplex),
		errors.Is(err, core.ErrInvalidHypothesis),
		errors.Is(err, core.ErrInsufficientData),
		errors.Is(err, core.ErrAlreadyInitialized),
		errors.Is(err, core.ErrGracePeriodActive),
		errors.Is(err, core.ErrApprovalDecided):
		return apperrors.CodeValidationError
	case errors.Is(err, core.ErrQueryTimeout):
		return apperrors.CodeQueryTimeout
	case errors.Is(err, core.ErrApprovalRequired):
		return apperrors.CodeApprovalPending
	default:
		return apperrors.CodeInternalError
	}
}

func failure(err error, meta Metadata) *Envelope {
	return &Envelope{
		Success:  false,
		Error:    &ErrorBody{Code: errorCode(err), Message: err.Error()},
		Metadata: meta,
	}
}

func success(data interface{}, meta Metadata) *Envelope {
	return &Envelope{Success: true, Data: data, Metadata: meta}
}

// panicError normalizes a recovered panic value into an error.
func panicError(v interface{}) error {
	if err, ok := v.(error); ok {
		return apperrors.Wrap(err, "internal panic")
	}
	return apperrors.InternalError(fmt.Sprintf("internal panic: %v", v))
}
