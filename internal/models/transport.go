package models

import (
	"io"
	"net/http"
	"strings"
	"time"
)

// backendTransport turns failed or foreign responses into ErrModelUnavailable
// before a model SDK tries to decode them. A reverse proxy answering
// "no available server" as text/plain is the usual culprit.
type backendTransport struct {
	inner    http.RoundTripper
	provider string
	accept   []string // Content-Type substrings a healthy reply carries
}

// newBackendClient returns an http.Client whose responses must carry one of
// the accepted content types.
func newBackendClient(provider string, timeout time.Duration, accept ...string) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &backendTransport{inner: http.DefaultTransport, provider: provider, accept: accept},
	}
}

func (t *backendTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, &ErrModelUnavailable{Provider: t.provider, Cause: err}
	}

	if resp.StatusCode >= 400 {
		return nil, t.reject(resp, resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" || len(t.accept) == 0 {
		return resp, nil
	}
	for _, a := range t.accept {
		if strings.Contains(ct, a) {
			return resp, nil
		}
	}
	return nil, t.reject(resp, 0)
}

func (t *backendTransport) reject(resp *http.Response, status int) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	resp.Body.Close()
	return &ErrModelUnavailable{
		Provider: t.provider,
		Status:   status,
		Body:     strings.TrimSpace(string(body)),
	}
}
