// Package proxy provides a reverse proxy that injects a script element into
// the HTML documents it forwards from an upstream origin.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"

	"github.com/papercomputeco/splice/pkg/eventstream"
	"github.com/papercomputeco/splice/pkg/eventstream/nop"
	"github.com/papercomputeco/splice/pkg/inject"
	"github.com/papercomputeco/splice/pkg/script"
	"github.com/papercomputeco/splice/proxy/header"
	"github.com/papercomputeco/splice/proxy/worker"
)

// HealthPath is served by the proxy itself and never forwarded upstream.
const HealthPath = "/__splice/health"

// ErrorResponse is the JSON body returned when the proxy itself fails a request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON body served on HealthPath.
type HealthResponse struct {
	Status    string `json:"status"`
	Documents int64  `json:"documents"`
	Injected  int64  `json:"injected"`
}

// Proxy is a transparent reverse proxy that streams eligible HTML documents
// through an injection filter and enqueues an event per document for async
// publishing via its worker pool.
type Proxy struct {
	config        Config
	upstream      *url.URL
	workerPool    *worker.Pool
	logger        *slog.Logger
	httpClient    *http.Client
	server        *fiber.App
	headerHandler *header.Handler

	documents atomic.Int64
	injected  atomic.Int64
}

// New creates a new Proxy.
// Returns an error if the upstream URL is missing or invalid, or if no script
// source is configured.
func New(config Config, logger *slog.Logger) (*Proxy, error) {
	upstream, err := parseUpstream(config.UpstreamURL)
	if err != nil {
		return nil, err
	}

	if config.Script == nil {
		return nil, script.ErrNoSource
	}

	if config.ChunkSize <= 0 {
		config.ChunkSize = inject.DefaultChunkSize
	}

	if config.Publisher == nil {
		config.Publisher = nop.NewPublisher()
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})

	// Add compression middleware to handle responses
	app.Use(compress.New())

	wp, err := worker.NewPool(&worker.Config{
		Publisher: config.Publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	p := &Proxy{
		config:        config,
		upstream:      upstream,
		workerPool:    wp,
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(),
		httpClient: &http.Client{
			// Redirects are the browser's business.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}

	app.Get(HealthPath, adaptor.HTTPHandlerFunc(p.handleHealth))

	// Register transparent proxy route - forwards any path to upstream
	app.All("/*", p.handleProxy)

	return p, nil
}

func parseUpstream(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.New("upstream URL is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream URL %q must use http or https", raw)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("upstream URL %q has no host", raw)
	}

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""

	return u, nil
}

// Run starts the proxy server on the given listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting proxy server",
		"listen", p.config.ListenAddr,
		"upstream", p.upstream.String(),
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the proxy server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting proxy server",
		"listen", listener.Addr().String(),
		"upstream", p.upstream.String(),
	)

	return p.server.Listener(listener)
}

// Close gracefully shuts down the proxy and waits for the worker pool to drain
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.workerPool.Close()
	return err
}

func (p *Proxy) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:    "ok",
		Documents: p.documents.Load(),
		Injected:  p.injected.Load(),
	})
}

// handleProxy is a transparent proxy handler that forwards requests to upstream
// and filters eligible documents on their way back.
func (p *Proxy) handleProxy(c *fiber.Ctx) error {
	startTime := time.Now()
	method := c.Method()
	upstreamURL := p.upstream.String() + c.OriginalURL()

	var reqBody io.Reader
	if body := c.Body(); len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	// Use context.Background() instead of c.Context() because fasthttp recycles
	// its RequestCtx after the handler returns, but the body stream is read
	// asynchronously and needs the upstream connection to remain open.
	httpReq, err := http.NewRequestWithContext(context.Background(), method, upstreamURL, reqBody)
	if err != nil {
		p.logger.Error("failed to create upstream request", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal error"})
	}

	p.headerHandler.SetUpstreamRequestHeaders(c, httpReq)

	p.logger.Debug("forwarding request to upstream",
		"method", method,
		"url", upstreamURL,
	)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("upstream request failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: "upstream request failed"})
	}

	injecting := eligible(method, httpResp.StatusCode,
		httpResp.Header.Get("Content-Type"),
		c.Get("Sec-Fetch-Dest"),
	)

	p.headerHandler.SetClientResponseHeaders(c, httpResp, injecting)
	c.Status(httpResp.StatusCode)

	if !hasBody(method, httpResp.StatusCode) {
		httpResp.Body.Close()
		return nil
	}

	if !injecting {
		// fasthttp closes the stream once it has been written out.
		c.Context().Response.SetBodyStream(httpResp.Body, int(httpResp.ContentLength))
		return nil
	}

	f := inject.New(p.config.Script.Script(),
		inject.WithLocation(p.config.Location),
		inject.WithPolicy(p.config.Policy),
		inject.WithOverflowLimit(p.config.OverflowLimit),
		inject.WithNonce(p.config.Nonce),
	)

	meta := eventstream.RequestMeta{
		Method:     method,
		Path:       c.Path(),
		Host:       string(c.Request().Host()),
		HTTPStatus: httpResp.StatusCode,
		StartedAt:  startTime,
	}

	// Use io.Pipe + SetBodyStream so that pw.Write blocks until fasthttp has
	// taken the previous chunk. This gives direct backpressure from the client
	// all the way to the upstream read.
	pr, pw := io.Pipe()
	go p.streamDocument(httpResp, pw, f, meta)

	// Set the pipe reader as the body stream with unknown size (-1),
	// which triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// streamDocument copies the upstream body through the filter into pw, then
// enqueues an injection event describing the stream.
func (p *Proxy) streamDocument(httpResp *http.Response, pw *io.PipeWriter, f *inject.Filter, meta eventstream.RequestMeta) {
	defer httpResp.Body.Close()

	w := inject.NewWriter(pw, f, p.config.ChunkSize)

	_, streamErr := io.Copy(w, httpResp.Body)
	if streamErr == nil {
		// Close flushes the filter's overflow queue and closes pw.
		streamErr = w.Close()
	} else {
		pw.CloseWithError(streamErr)
	}

	if streamErr != nil {
		p.logger.Warn("document stream truncated",
			"path", meta.Path,
			"error", streamErr,
		)
	}

	injections := f.Injections()
	p.documents.Add(1)
	p.injected.Add(int64(injections))

	meta.CompletedAt = time.Now()
	meta.DurationMs = meta.CompletedAt.Sub(meta.StartedAt).Milliseconds()

	p.logger.Debug("document filtered",
		"path", meta.Path,
		"bytes_in", w.BytesIn(),
		"bytes_out", w.BytesOut(),
		"injections", injections,
		"duration_ms", meta.DurationMs,
	)

	event := eventstream.NewInjectionEvent(meta.CompletedAt,
		eventstream.EventSource{
			Upstream: p.upstream.String(),
			Location: p.config.Location.String(),
			Policy:   p.config.Policy.String(),
		},
		meta,
		eventstream.StreamMeta{
			BytesIn:    w.BytesIn(),
			BytesOut:   w.BytesOut(),
			Injections: injections,
			Truncated:  streamErr != nil,
		},
	)

	// Non-blocking enqueue for async publishing
	p.workerPool.Enqueue(worker.Job{Event: event})
}

// eligible reports whether a response should be filtered: a successful GET
// for an HTML or XHTML document that the browser will render as a top-level
// page. Subresource and iframe fetches carry a different Sec-Fetch-Dest.
func eligible(method string, status int, contentType, fetchDest string) bool {
	if method != fiber.MethodGet {
		return false
	}

	if status < 200 || status > 299 || status == fiber.StatusNoContent || status == fiber.StatusPartialContent {
		return false
	}

	if fetchDest != "" && fetchDest != "document" {
		return false
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// hasBody reports whether a response to method with status carries a body.
func hasBody(method string, status int) bool {
	if method == fiber.MethodHead {
		return false
	}

	return status >= 200 && status != fiber.StatusNoContent && status != fiber.StatusNotModified
}
