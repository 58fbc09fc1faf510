package portalclient

import (
	"net/http"
)

// Transport wraps every authenticated outbound call. On a 401 it requests a
// rotation through the client's single-flight refresh, retries the original
// request exactly once with the new access token, and returns that result
// whatever it is. A second 401 is not retried; retry storms are worse than a
// forced re-login.
type Transport struct {
	Base   http.RoundTripper
	client *Client
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	attempt := req.Clone(req.Context())
	if token := t.client.session.AccessToken(); token != "" {
		attempt.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := base.RoundTrip(attempt)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// A consumed one-shot body cannot be replayed; surface the 401 as-is.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}
	drainClose(resp.Body)

	token, rErr := t.client.refresh(req.Context())
	if rErr != nil {
		// Every caller that was queued on the same in-flight refresh gets
		// this same failure.
		t.client.expire(req.Context())
		return nil, ErrSessionExpired
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+token)
	return base.RoundTrip(retry)
}
