package qdrant

import "fmt"

type OperationErrorCode string

const (
	OperationErrorValidationFailed OperationErrorCode = "validation_failed"
	OperationErrorEncodeFailed     OperationErrorCode = "encode_failed"
	OperationErrorDecodeFailed     OperationErrorCode = "decode_failed"
	OperationErrorTransportFailed  OperationErrorCode = "transport_failed"
	OperationErrorTimeout          OperationErrorCode = "timeout"
	OperationErrorQueryFailed      OperationErrorCode = "query_failed"
)

// OperationError is the error type returned by Store operations. StatusCode
// is zero unless Qdrant answered with a non-2xx response.
type OperationError struct {
	Code       OperationErrorCode
	Operation  string
	StatusCode int
	Message    string
	Cause      error
}

func (e *OperationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("qdrant %s: %s (status=%d): %s", e.Operation, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("qdrant %s: %s: %s", e.Operation, e.Code, e.Message)
}

func (e *OperationError) Unwrap() error { return e.Cause }

// HTTPStatusCode implements httpx.HTTPStatusCoder for upstream status checks.
func (e *OperationError) HTTPStatusCode() int { return e.StatusCode }

func opErr(code OperationErrorCode, operation, message string, cause error) *OperationError {
	return &OperationError{Code: code, Operation: operation, Message: message, Cause: cause}
}
