package sources

import (
	"bytes"

	"github.com/tidwall/gjson"

	"github.com/spigell/grantfit/internal/resilience"
)

// The public data portal answers some failures with HTTP 200 and an XML
// OpenAPI error envelope, or with a JSON {code, msg} body.
var dataPortalAuthMarkers = [][]byte{
	[]byte("SERVICE_KEY_IS_NOT_REGISTERED_ERROR"),
	[]byte("SERVICE_ACCESS_DENIED_ERROR"),
	[]byte("UNREGISTERED_IP_ERROR"),
}

var dataPortalQuotaMarkers = [][]byte{
	[]byte("LIMITED_NUMBER_OF_SERVICE_REQUESTS_EXCEEDS_ERROR"),
	[]byte("LIMITED_NUMBER_OF_SERVICE_REQUESTS_PER_SECOND_EXCEEDS_ERROR"),
}

func dataPortalError(op string, body []byte) *resilience.Error {
	for _, marker := range dataPortalAuthMarkers {
		if bytes.Contains(body, marker) {
			return resilience.Errorf(resilience.KindAuth, op, "provider rejected the service key: %s", marker)
		}
	}
	for _, marker := range dataPortalQuotaMarkers {
		if bytes.Contains(body, marker) {
			return resilience.Errorf(resilience.KindQuotaExceeded, op, "provider quota exceeded: %s", marker)
		}
	}

	if !gjson.ValidBytes(body) {
		return nil
	}
	code := gjson.GetBytes(body, "code")
	if !code.Exists() || code.Int() >= 0 {
		return nil
	}
	msg := gjson.GetBytes(body, "msg").String()
	switch code.Int() {
	case -4, -401:
		return resilience.Errorf(resilience.KindAuth, op, "provider error %d: %s", code.Int(), msg)
	default:
		return resilience.Errorf(resilience.KindUpstream, op, "provider error %d: %s", code.Int(), msg)
	}
}
