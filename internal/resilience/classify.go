package resilience

import (
	"errors"
	"strings"
)

// ClassifierVersion identifies the substring table below. Bump it whenever a
// rule is added, removed or reordered.
const ClassifierVersion = "3"

type rule struct {
	kind    Kind
	needles []string
}

// Rules are evaluated in order against the lower-cased error text; the first
// match wins. Status codes only count with a status prefix so ports, IDs and
// byte counts do not trip them.
var rules = []rule{
	{kind: KindQuotaExceeded, needles: []string{"error 429", "status 429", "http 429", "too many requests", "resource_exhausted", "quota", "rate limit"}},
	{kind: KindInvalidCredential, needles: []string{"error 403", "status 403", "http 403", "api key not valid", "api_key_invalid", "invalid api key", "permission_denied", "unauthenticated"}},
	{kind: KindContentRejected, needles: []string{"finish reason safety", "block_reason", "prompt blocked", "response blocked", "prohibited_content"}},
	{kind: KindModelNotFound, needles: []string{"is not found for api version", "model not found", "not_found", "unknown model"}},
}

// Classify maps err onto the taxonomy. Errors that already carry a Kind keep
// it; anything the table does not recognise is an UpstreamError.
func Classify(err error) *Error {
	return classify("", err)
}

func classify(op string, err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	return &Error{Kind: classifyText(err.Error()), Op: op, Err: err}
}

func classifyText(text string) Kind {
	text = strings.ToLower(text)
	for _, r := range rules {
		for _, needle := range r.needles {
			if strings.Contains(text, needle) {
				return r.kind
			}
		}
	}
	return KindUpstream
}
