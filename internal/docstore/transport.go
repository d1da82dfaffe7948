package docstore

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// transport satisfies esapi.Transport for one endpoint. esapi builds
// requests with a relative path; Perform points them at the endpoint and
// sends them with the HTTP client. Path segments reach esapi already
// escaped, so Perform keeps that encoding on the wire: a document id with a
// slash in it stays one segment.
type transport struct {
	base    *url.URL
	baseErr error
	http    *http.Client
}

func newTransport(endpoint string, h *http.Client) *transport {
	t := &transport{http: h}
	u, err := url.Parse(strings.TrimRight(endpoint, "/"))
	switch {
	case err != nil:
		t.baseErr = fmt.Errorf("parsing index engine endpoint %q: %w", endpoint, err)
	case u.Scheme == "" || u.Host == "":
		t.baseErr = fmt.Errorf("index engine endpoint %q needs a scheme and host", endpoint)
	default:
		t.base = u
	}
	return t
}

func (t *transport) Perform(req *http.Request) (*http.Response, error) {
	if t.baseErr != nil {
		return nil, t.baseErr
	}
	escaped := req.URL.RawPath
	if escaped == "" {
		escaped = req.URL.Path
	}
	escaped = strings.TrimRight(t.base.EscapedPath(), "/") + escaped
	path, err := url.PathUnescape(escaped)
	if err != nil {
		return nil, fmt.Errorf("request path %q: %w", escaped, err)
	}
	req.URL.Scheme = t.base.Scheme
	req.URL.Host = t.base.Host
	req.URL.User = t.base.User
	req.URL.Path, req.URL.RawPath = path, escaped
	return t.http.Do(req)
}
