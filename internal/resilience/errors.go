// Package resilience holds the error taxonomy, the upstream error classifier and
// the retry policy shared by every connector and the scoring engine.
package resilience

import (
	"errors"
	"fmt"

	"github.com/spigell/grantfit/internal/utils"
)

// Kind is a classified failure category.
type Kind string

const (
	KindAuth              Kind = "auth_error"
	KindValidation        Kind = "validation_error"
	KindQuotaExceeded     Kind = "quota_exceeded"
	KindInvalidCredential Kind = "invalid_credential"
	KindContentRejected   Kind = "content_rejected"
	KindModelNotFound     Kind = "model_not_found"
	KindUpstream          Kind = "upstream_error"
)

const diagnosticTail = 120

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage renders a human-readable summary with a short diagnostic tail.
func (e *Error) UserMessage() string {
	msg := userMessages[e.Kind]
	if msg == "" {
		msg = userMessages[KindUpstream]
	}
	if e.Err == nil {
		return msg
	}
	return fmt.Sprintf("%s (detail: %s)", msg, utils.TailForDisplay(e.Err.Error(), diagnosticTail))
}

var userMessages = map[Kind]string{
	KindAuth:              "A data source credential is missing or invalid. Check the API key in the configuration.",
	KindValidation:        "The request was rejected before contacting any provider.",
	KindQuotaExceeded:     "The upstream rate limit or quota was exceeded. Wait a moment and try again.",
	KindInvalidCredential: "The reasoning backend rejected the API key. Update ai.gemini.api-key in the configuration.",
	KindContentRejected:   "The reasoning backend refused the input for content-safety reasons. Revise the profile or program text and try again.",
	KindModelNotFound:     "The configured model is not available. Choose another model in ai.gemini.model.",
	KindUpstream:          "The upstream service failed. Try again later.",
}

// New builds a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a formatted message.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of a classified error found in err's chain, or
// KindUpstream for anything unclassified.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindUpstream
}

// Retryable reports whether failures of the given kind may be retried.
// This table is the only place retry eligibility is decided.
func Retryable(kind Kind) bool {
	return retryable[kind]
}

var retryable = map[Kind]bool{
	KindQuotaExceeded: true,
	KindUpstream:      true,
}
