package sources

import (
	"fmt"
	"regexp"

	"github.com/spigell/grantfit/internal/resilience"
)

// endpointPattern allows "/<dataset id>/v<n>/<resource>" and nothing else, so
// a caller-supplied path can never climb out of the provider API root.
var endpointPattern = regexp.MustCompile(`^/[0-9]{6,10}/v[0-9]+/[A-Za-z0-9:_-]+$`)

// ValidateEndpoint checks an open data endpoint path against the allow-list.
func ValidateEndpoint(path string) error {
	if !endpointPattern.MatchString(path) {
		return resilience.New(resilience.KindValidation, "opendata.endpoint", fmt.Errorf("endpoint path %q is not allowed", path))
	}
	return nil
}
