package common

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
)

// ErrorKind classifies why a document run did not produce a FiscalRecord.
type ErrorKind string

const (
	KindUnsupportedFormat ErrorKind = "UNSUPPORTED_FORMAT"
	KindOCRFailure        ErrorKind = "OCR_FAILURE"
	KindNoTextDetected    ErrorKind = "NO_TEXT_DETECTED"
	KindNoFieldsExtracted ErrorKind = "NO_FIELDS_EXTRACTED"
	KindAIQuotaExceeded   ErrorKind = "AI_QUOTA_EXCEEDED"
	KindAIInvalidResponse ErrorKind = "AI_INVALID_RESPONSE"
	KindAIUnavailable     ErrorKind = "AI_UNAVAILABLE"
	KindValidationFailure ErrorKind = "VALIDATION_FAILURE"
	KindCancelled         ErrorKind = "CANCELLED"
	KindInternal          ErrorKind = "INTERNAL"
)

// Sentinels, one per kind, so callers can use errors.Is.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrOCRFailure        = errors.New("ocr failure")
	ErrNoTextDetected    = errors.New("no text detected")
	ErrNoFieldsExtracted = errors.New("no fields extracted")
	ErrAIQuotaExceeded   = errors.New("ai quota exceeded")
	ErrAIInvalidResponse = errors.New("ai invalid response")
	ErrAIUnavailable     = errors.New("ai unavailable")
	ErrValidation        = errors.New("validation failed")
	ErrCancelled         = errors.New("cancelled")
	ErrInternal          = errors.New("internal error")
)

var kindSentinels = map[ErrorKind]error{
	KindUnsupportedFormat: ErrUnsupportedFormat,
	KindOCRFailure:        ErrOCRFailure,
	KindNoTextDetected:    ErrNoTextDetected,
	KindNoFieldsExtracted: ErrNoFieldsExtracted,
	KindAIQuotaExceeded:   ErrAIQuotaExceeded,
	KindAIInvalidResponse: ErrAIInvalidResponse,
	KindAIUnavailable:     ErrAIUnavailable,
	KindValidationFailure: ErrValidation,
	KindCancelled:         ErrCancelled,
	KindInternal:          ErrInternal,
}

// ExtractionError is the only error type returned across the pipeline boundary.
type ExtractionError struct {
	Kind    ErrorKind
	Stage   constants.Stage
	Message string
	Cause   error
}

func (e *ExtractionError) Error() string {
	msg := string(e.Kind)
	if e.Stage != "" {
		msg += " at " + string(e.Stage)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *ExtractionError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := kindSentinels[e.Kind]; ok {
		errs = append(errs, s)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// NewError builds an ExtractionError. Stage is filled in by the pipeline.
func NewError(kind ErrorKind, message string, cause error) *ExtractionError {
	return &ExtractionError{Kind: kind, Message: message, Cause: cause}
}

// Errorf is NewError with a formatted message and no cause.
func Errorf(kind ErrorKind, format string, args ...any) *ExtractionError {
	return &ExtractionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or "" if err is not an ExtractionError.
func KindOf(err error) ErrorKind {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}

// IsKind reports whether err is an ExtractionError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

type transientError struct{ err error }

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// Transient marks err as safe to retry.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether a failed provider call may succeed on retry.
// Validation and parse failures are never transient, whatever their cause.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ee *ExtractionError
	if errors.As(err, &ee) {
		switch ee.Kind {
		case KindAIInvalidResponse, KindValidationFailure, KindUnsupportedFormat,
			KindCancelled, KindAIQuotaExceeded, KindNoTextDetected, KindNoFieldsExtracted:
			return false
		}
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		switch ge.Code {
		case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
			return true
		}
	}
	return false
}

// FromContext converts a context error into a CANCELLED ExtractionError.
func FromContext(ctx context.Context) *ExtractionError {
	if err := ctx.Err(); err != nil {
		return NewError(KindCancelled, "run aborted", err)
	}
	return nil
}

// GRPCCode maps an error kind onto a gRPC status code.
func GRPCCode(kind ErrorKind) codes.Code {
	switch kind {
	case KindUnsupportedFormat:
		return codes.InvalidArgument
	case KindNoTextDetected, KindNoFieldsExtracted, KindValidationFailure:
		return codes.FailedPrecondition
	case KindOCRFailure, KindAIUnavailable:
		return codes.Unavailable
	case KindAIQuotaExceeded:
		return codes.ResourceExhausted
	case KindAIInvalidResponse:
		return codes.DataLoss
	case KindCancelled:
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// ToGRPCStatus renders err as a gRPC status error.
func ToGRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(GRPCCode(KindOf(err)), err.Error())
}

// HTTPStatus maps an error kind onto an HTTP status code.
func HTTPStatus(kind ErrorKind) int {
	switch kind {
	case KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case KindNoTextDetected, KindNoFieldsExtracted, KindValidationFailure:
		return http.StatusUnprocessableEntity
	case KindOCRFailure, KindAIUnavailable:
		return http.StatusBadGateway
	case KindAIQuotaExceeded:
		return http.StatusTooManyRequests
	case KindCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// InvalidArgumentError is a plain gRPC error for malformed requests.
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

// NotFoundError is a plain gRPC error for missing records.
func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}
