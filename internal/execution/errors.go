package execution

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrNoStartBlocks is returned before scheduling when a run has nothing to start from
var ErrNoStartBlocks = errors.New("no start blocks: add a START block or choose start blocks explicitly")

// BlockExecutionError wraps any failure raised while a block executes.
// The engine reports it as an error event and keeps running.
type BlockExecutionError struct {
	BlockID   string
	BlockName string
	Cause     error
}

func (e *BlockExecutionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("block %q failed", e.BlockName)
	}
	return e.Cause.Error()
}

func (e *BlockExecutionError) Unwrap() error {
	return e.Cause
}

// blockError builds a BlockExecutionError from a message
func blockError(format string, args ...any) error {
	return &BlockExecutionError{Cause: fmt.Errorf(format, args...)}
}

// ErrorCategory classifies external call failures for retry decisions
type ErrorCategory int

const (
	// ErrorCategoryUnknown is an unclassified failure, not retried
	ErrorCategoryUnknown ErrorCategory = iota

	// ErrorCategoryTransient covers timeouts, 429, 5xx and network errors
	ErrorCategoryTransient

	// ErrorCategoryPermanent covers auth errors, bad requests and TLS failures
	ErrorCategoryPermanent

	// ErrorCategoryValidation covers requests rejected before they are sent
	ErrorCategoryValidation
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrorCategoryTransient:
		return "transient"
	case ErrorCategoryPermanent:
		return "permanent"
	case ErrorCategoryValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// ExecutionError is a classified failure of an outbound call
type ExecutionError struct {
	Category   ErrorCategory
	Message    string
	StatusCode int   // HTTP status code if applicable
	Retryable  bool  // explicit retryable flag
	RetryAfter int   // seconds to wait before retry, from Retry-After
	Cause      error // original error
}

func (e *ExecutionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("[%d] %s", e.StatusCode, e.Message)
	}
	return e.Message
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// ExternalCallError is a BlockExecutionError raised by an API block when
// the transport fails or the remote answers with a status of 400 or above.
type ExternalCallError struct {
	*ExecutionError
	Method string
	URL    string
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.ExecutionError.Error())
}

func (e *ExternalCallError) Unwrap() error {
	return e.ExecutionError
}

// ClassifyHTTPError classifies an HTTP error response
func ClassifyHTTPError(statusCode int, body string) *ExecutionError {
	err := &ExecutionError{
		StatusCode: statusCode,
		Message:    fmt.Sprintf("HTTP %d: %s", statusCode, truncateString(body, 200)),
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		err.Category = ErrorCategoryTransient
		err.Retryable = true
		err.RetryAfter = 60

	case statusCode == http.StatusRequestTimeout,
		statusCode >= 500 && statusCode < 600:
		err.Category = ErrorCategoryTransient
		err.Retryable = true

	case statusCode == http.StatusBadRequest,
		statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden,
		statusCode == http.StatusNotFound,
		statusCode == http.StatusUnprocessableEntity:
		err.Category = ErrorCategoryPermanent

	default:
		err.Category = ErrorCategoryUnknown
	}

	return err
}

// ClassifyError classifies a transport-level error
func ClassifyError(err error) *ExecutionError {
	if err == nil {
		return nil
	}

	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}

	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "context deadline exceeded"),
		strings.Contains(errStr, "Client.Timeout"):
		return &ExecutionError{
			Category:  ErrorCategoryTransient,
			Message:   "Request timed out",
			Retryable: true,
			Cause:     err,
		}

	case strings.Contains(errStr, "context canceled"):
		return &ExecutionError{
			Category: ErrorCategoryPermanent,
			Message:  "Request cancelled",
			Cause:    err,
		}

	case strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "connection reset"),
		strings.Contains(errStr, "no such host"),
		strings.Contains(errStr, "network is unreachable"),
		strings.Contains(errStr, "i/o timeout"),
		strings.Contains(errStr, "EOF"):
		return &ExecutionError{
			Category:  ErrorCategoryTransient,
			Message:   fmt.Sprintf("Network error: %s", truncateString(errStr, 100)),
			Retryable: true,
			Cause:     err,
		}

	case strings.Contains(errStr, "certificate"),
		strings.Contains(errStr, "tls:"),
		strings.Contains(errStr, "x509:"):
		return &ExecutionError{
			Category: ErrorCategoryPermanent,
			Message:  "TLS/Certificate error",
			Cause:    err,
		}
	}

	return &ExecutionError{
		Category: ErrorCategoryUnknown,
		Message:  truncateString(errStr, 200),
		Cause:    err,
	}
}

// BackoffCalculator computes retry delays with exponential backoff and jitter
type BackoffCalculator struct {
	initialDelay  time.Duration
	maxDelay      time.Duration
	multiplier    float64
	jitterPercent int
}

// NewBackoffCalculator creates a calculator; zero values select defaults
func NewBackoffCalculator(initialDelay, maxDelay time.Duration, multiplier float64, jitterPercent int) *BackoffCalculator {
	if initialDelay <= 0 {
		initialDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	if multiplier <= 0 {
		multiplier = 2.0
	}
	if jitterPercent < 0 {
		jitterPercent = 20
	}
	return &BackoffCalculator{
		initialDelay:  initialDelay,
		maxDelay:      maxDelay,
		multiplier:    multiplier,
		jitterPercent: jitterPercent,
	}
}

// NextDelay returns the delay before retry number attempt (0-indexed)
func (b *BackoffCalculator) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt))
	if delay > float64(b.maxDelay) {
		delay = float64(b.maxDelay)
	}

	if b.jitterPercent > 0 {
		jitterRange := delay * float64(b.jitterPercent) / 100.0
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	if delay < 0 {
		delay = float64(b.initialDelay)
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether a classified error is worth another attempt
func ShouldRetry(err *ExecutionError) bool {
	return err != nil && err.Retryable
}

// errorType maps an ExecutionError to a short type string for retry history
func errorType(err *ExecutionError) string {
	if err.StatusCode == http.StatusTooManyRequests {
		return "rate_limit"
	}
	if err.StatusCode >= 500 {
		return "server_error"
	}
	msg := strings.ToLower(err.Message)
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") {
		return "timeout"
	}
	if strings.Contains(msg, "network") || strings.Contains(msg, "connection") {
		return "network_error"
	}
	return "unknown"
}

// CircuitBreaker tracks consecutive failures per remote host within one run.
// After threshold consecutive failures the host is tripped and API blocks
// stop retrying against it for the rest of the run.
type CircuitBreaker struct {
	mu               sync.Mutex
	consecutiveFails map[string]int
	tripped          map[string]bool
	threshold        int
}

// NewCircuitBreaker creates a circuit breaker; threshold <= 0 selects 5
func NewCircuitBreaker(threshold int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &CircuitBreaker{
		consecutiveFails: make(map[string]int),
		tripped:          make(map[string]bool),
		threshold:        threshold,
	}
}

// RecordFailure counts a failure and reports whether the source is now tripped
func (cb *CircuitBreaker) RecordFailure(source string) bool {
	if source == "" {
		return false
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFails[source]++
	if cb.consecutiveFails[source] >= cb.threshold {
		cb.tripped[source] = true
	}
	return cb.tripped[source]
}

// RecordSuccess resets the source
func (cb *CircuitBreaker) RecordSuccess(source string) {
	if source == "" {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.consecutiveFails, source)
	delete(cb.tripped, source)
}

// IsTripped reports whether the circuit for source is open
func (cb *CircuitBreaker) IsTripped(source string) bool {
	if source == "" {
		return false
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.tripped[source]
}

// truncateString truncates s to maxLen bytes
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
