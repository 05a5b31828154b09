package utils

import (
	"errors"
	"fmt"
)

// Kind classifies failures of the signature pipeline
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransientFetch is a network or auth failure of a remote call
	KindTransientFetch
	// KindInvalidPayload is a malformed or empty signature
	KindInvalidPayload
	// KindOversizePayload is content above the insertion limit
	KindOversizePayload
	// KindAttachment is a failed inline image attachment
	KindAttachment
	// KindStorage is a backend read/write failure
	KindStorage
	// KindCredential means no credential could be produced
	KindCredential
	// KindHost is a failed host mail-client call
	KindHost
)

// String returns the name used in logs and metrics
func (k Kind) String() string {
	switch k {
	case KindTransientFetch:
		return "transient_fetch"
	case KindInvalidPayload:
		return "invalid_payload"
	case KindOversizePayload:
		return "oversize_payload"
	case KindAttachment:
		return "attachment"
	case KindStorage:
		return "storage"
	case KindCredential:
		return "credential"
	case KindHost:
		return "host"
	default:
		return "unknown"
	}
}

// AppError represents a classified application error with context
type AppError struct {
	Kind    Kind
	Message string
	Err     error
	Context map[string]interface{}
}

// NewAppError creates a new AppError
func NewAppError(kind Kind, message string, err error) *AppError {
	return &AppError{
		Kind:    kind,
		Message: message,
		Err:     err,
		Context: make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying error to errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	e.Context[key] = value
	return e
}

// KindOf returns the kind of the first AppError in err's chain
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

func FetchError(message string, err error) *AppError {
	return NewAppError(KindTransientFetch, message, err)
}

func PayloadError(message string, err error) *AppError {
	return NewAppError(KindInvalidPayload, message, err)
}

func OversizeError(message string, err error) *AppError {
	return NewAppError(KindOversizePayload, message, err)
}

func AttachmentError(message string, err error) *AppError {
	return NewAppError(KindAttachment, message, err)
}

func StorageError(message string, err error) *AppError {
	return NewAppError(KindStorage, message, err)
}

func CredentialError(message string, err error) *AppError {
	return NewAppError(KindCredential, message, err)
}

func HostError(message string, err error) *AppError {
	return NewAppError(KindHost, message, err)
}
