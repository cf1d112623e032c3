package offline

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// hopHeaders are not forwarded in either direction.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Handler returns an HTTP handler that serves every request through the
// controller, forwarding to origin.
func (c *Controller) Handler(origin *url.URL) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out, err := c.outboundRequest(origin, r)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		resp, err := c.Fetch(out)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				c.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Unavailable offline")
				http.Error(w, "content unavailable offline", http.StatusServiceUnavailable)
				return
			}
			c.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Upstream request failed")
			http.Error(w, "upstream request failed", http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		header := w.Header()
		for key, values := range resp.Header {
			for _, value := range values {
				header.Add(key, value)
			}
		}
		removeHopHeaders(header)

		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			c.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Failed to write response")
		}
	})
}

// outboundRequest rewrites an incoming request to target origin.
func (c *Controller) outboundRequest(origin *url.URL, r *http.Request) (*http.Request, error) {
	target := url.URL{
		Scheme:   origin.Scheme,
		Host:     origin.Host,
		Path:     joinPath(origin.Path, r.URL.Path),
		RawQuery: r.URL.RawQuery,
	}

	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		body = r.Body
	}

	out, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	out.Header = r.Header.Clone()
	removeHopHeaders(out.Header)
	out.ContentLength = r.ContentLength
	if body == nil {
		out.ContentLength = 0
	}
	return out, nil
}

func removeHopHeaders(h http.Header) {
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

func joinPath(a, b string) string {
	switch {
	case a == "" || a == "/":
		return b
	case strings.HasSuffix(a, "/") && strings.HasPrefix(b, "/"):
		return a + b[1:]
	case !strings.HasSuffix(a, "/") && !strings.HasPrefix(b, "/"):
		return a + "/" + b
	default:
		return a + b
	}
}
