// Package header provides header filtering for the splice proxy.
//
// This proxy sits between a browser and an upstream web origin like so:
//
//	Browser <--> Proxy <--> Upstream Origin
//
// and headers are handled accordingly as each leg negotiates compression, hops,
// encoding, etc. independently.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Handler manages headers between proxy connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// skipRequest is the set of request headers (browser --> proxy --> upstream)
// that are not forwarded to the upstream origin.
var skipRequest = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection":       {},
	"Keep-Alive":       {},
	"Proxy-Connection": {},
	"Te":               {},
	"Upgrade":          {},

	// The Host header is rewritten by Go's http.Transport to match the
	// upstream URL. The original host travels in X-Forwarded-Host.
	"Host": {},

	// Accept-Encoding is stripped so that Go's http.Transport adds its own
	// "Accept-Encoding: gzip" and transparently decompresses the upstream
	// response. The filter only ever sees identity-encoded HTML.
	"Accept-Encoding": {},
}

// skipResponse is the set of upstream response headers (browser <-- proxy <-- upstream)
// that are not copied back to the downstream client.
var skipResponse = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection": {},
	"Keep-Alive": {},

	// fasthttp manages chunked transfer encoding for the client-facing
	// response independently.
	"Transfer-Encoding": {},

	// The proxy always reads a decompressed body. Fiber's compress middleware
	// sets the correct Content-Encoding when it re-compresses for the client.
	"Content-Encoding": {},

	// The upstream length is wrong after decompression, and always wrong for
	// a document that had a script injected.
	"Content-Length": {},
}

// skipInjected is the set of additional headers dropped from documents whose
// body was rewritten: they describe the upstream bytes, not the served ones.
var skipInjected = map[string]struct{}{
	"Etag":          {},
	"Content-Md5":   {},
	"Accept-Ranges": {},
}

// SetUpstreamRequestHeaders copies request headers from the Fiber context to
// the outgoing http.Request, filtering headers that the proxy should not forward
// to the upstream origin, and records the client leg in X-Forwarded-* headers.
func (h *Handler) SetUpstreamRequestHeaders(c *fiber.Ctx, req *http.Request) {
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := http.CanonicalHeaderKey(string(key))
		if _, skip := skipRequest[k]; !skip {
			req.Header.Add(k, string(value))
		}
	})

	forwardedFor := c.IP()
	if prior := req.Header.Get(fiber.HeaderXForwardedFor); prior != "" {
		forwardedFor = prior + ", " + forwardedFor
	}
	req.Header.Set(fiber.HeaderXForwardedFor, forwardedFor)

	if req.Header.Get(fiber.HeaderXForwardedHost) == "" {
		req.Header.Set(fiber.HeaderXForwardedHost, string(c.Request().Host()))
	}
	if req.Header.Get(fiber.HeaderXForwardedProto) == "" {
		req.Header.Set(fiber.HeaderXForwardedProto, c.Protocol())
	}
}

// SetClientResponseHeaders copies response headers from the upstream
// http.Response to the Fiber context, filtering headers that the proxy should
// not forward back down to the client. Pass injected=true when the body is
// being rewritten.
func (h *Handler) SetClientResponseHeaders(c *fiber.Ctx, resp *http.Response, injected bool) {
	for k, v := range resp.Header {
		if _, skip := skipResponse[k]; skip {
			continue
		}
		if _, skip := skipInjected[k]; skip && injected {
			continue
		}

		// Cookies cannot be folded into a single comma separated value.
		if k == fiber.HeaderSetCookie {
			for _, cookie := range v {
				c.Response().Header.Add(k, cookie)
			}
			continue
		}

		c.Set(k, strings.Join(v, ", "))
	}
}
