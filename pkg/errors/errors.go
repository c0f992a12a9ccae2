package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNavigation represents a failed load, refresh or link follow
	ErrorTypeNavigation ErrorType = "navigation"
	// ErrorTypeElementNotFound represents a required element that is absent
	ErrorTypeElementNotFound ErrorType = "element_not_found"
	// ErrorTypeStaleReference represents an element handle detached from the live DOM
	ErrorTypeStaleReference ErrorType = "stale_reference"
	// ErrorTypeRenderTimeout represents a bounded wait that expired
	ErrorTypeRenderTimeout ErrorType = "render_timeout"
	// ErrorTypeMalformedPost represents a post page that does not match the expected shape
	ErrorTypeMalformedPost ErrorType = "malformed_post"
	// ErrorTypeAuthenticationRequired represents an action blocked by the login overlay
	ErrorTypeAuthenticationRequired ErrorType = "authentication_required"
	// ErrorTypeInvalidAction represents a request the current page cannot satisfy
	ErrorTypeInvalidAction ErrorType = "invalid_action"
	// ErrorTypeFeedExhausted represents a feed whose first post could not be located
	ErrorTypeFeedExhausted ErrorType = "feed_exhausted"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeStorage represents post archive errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// Sentinels for errors.Is. A ScanError matches a sentinel of the same type.
var (
	ErrNavigation             = &ScanError{Type: ErrorTypeNavigation}
	ErrElementNotFound        = &ScanError{Type: ErrorTypeElementNotFound}
	ErrStaleReference         = &ScanError{Type: ErrorTypeStaleReference}
	ErrRenderTimeout          = &ScanError{Type: ErrorTypeRenderTimeout}
	ErrMalformedPost          = &ScanError{Type: ErrorTypeMalformedPost}
	ErrAuthenticationRequired = &ScanError{Type: ErrorTypeAuthenticationRequired}
	ErrInvalidAction          = &ScanError{Type: ErrorTypeInvalidAction}
	ErrFeedExhausted          = &ScanError{Type: ErrorTypeFeedExhausted}
	ErrRateLimit              = &ScanError{Type: ErrorTypeRateLimit}
	ErrCache                  = &ScanError{Type: ErrorTypeCache}
	ErrPublisher              = &ScanError{Type: ErrorTypePublisher}
	ErrStorage                = &ScanError{Type: ErrorTypeStorage}
	ErrConfiguration          = &ScanError{Type: ErrorTypeConfiguration}
)

// ScanError represents an error raised while browsing or scanning a feed
type ScanError struct {
	Type    ErrorType
	Source  string
	Field   string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *ScanError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field %s)", msg, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Source, msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Source, msg)
}

// Unwrap returns the underlying error
func (e *ScanError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's type
func (e *ScanError) Is(target error) bool {
	t, ok := target.(*ScanError)
	if !ok || t.Message != "" || t.Err != nil {
		return false
	}
	return t.Type == e.Type
}

// IsRetryable reports whether the operation may be repeated after the page
// is refreshed. Only stale references qualify.
func (e *ScanError) IsRetryable() bool {
	return e.Type == ErrorTypeStaleReference
}

// IsRetryable reports whether err wraps a retryable ScanError
func IsRetryable(err error) bool {
	var se *ScanError
	return stderrors.As(err, &se) && se.IsRetryable()
}

// New creates a new ScanError
func New(errType ErrorType, source, message string, err error) *ScanError {
	return &ScanError{
		Type:    errType,
		Source:  source,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewNavigation creates a new navigation error
func NewNavigation(source, url string, err error) *ScanError {
	return New(ErrorTypeNavigation, source, fmt.Sprintf("failed to load %s", url), err)
}

// NewElementNotFound creates a new element-not-found error
func NewElementNotFound(source, message string) *ScanError {
	return New(ErrorTypeElementNotFound, source, message, nil)
}

// NewStaleReference creates a new stale reference error
func NewStaleReference(source string, err error) *ScanError {
	return New(ErrorTypeStaleReference, source, "element is no longer attached to the page", err)
}

// NewRenderTimeout creates a new render timeout error
func NewRenderTimeout(source, what string, waited time.Duration) *ScanError {
	return New(ErrorTypeRenderTimeout, source, fmt.Sprintf("%s did not appear within %v", what, waited), nil)
}

// NewMalformedPost creates a new malformed post error naming the offending field
func NewMalformedPost(source, field, message string, err error) *ScanError {
	e := New(ErrorTypeMalformedPost, source, message, err)
	e.Field = field
	return e
}

// NewAuthenticationRequired creates a new authentication error
func NewAuthenticationRequired(source, action string) *ScanError {
	return New(ErrorTypeAuthenticationRequired, source, fmt.Sprintf("%s requires login", action), nil)
}

// NewInvalidAction creates a new invalid action error
func NewInvalidAction(source, message string) *ScanError {
	return New(ErrorTypeInvalidAction, source, message, nil)
}

// NewFeedExhausted creates a new feed exhausted error
func NewFeedExhausted(source string, attempts int, err error) *ScanError {
	return New(ErrorTypeFeedExhausted, source, fmt.Sprintf("no post located after %d attempts", attempts), err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(source string, duration time.Duration) *ScanError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, source, message, nil)
}

// NewCache creates a new cache error
func NewCache(source, message string, err error) *ScanError {
	return New(ErrorTypeCache, source, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(source, message string, err error) *ScanError {
	return New(ErrorTypePublisher, source, message, err)
}

// NewStorage creates a new storage error
func NewStorage(source, message string, err error) *ScanError {
	return New(ErrorTypeStorage, source, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *ScanError {
	return New(ErrorTypeConfiguration, "", message, err)
}
