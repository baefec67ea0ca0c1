package proxy

import (
	"github.com/papercomputeco/splice/pkg/eventstream"
	"github.com/papercomputeco/splice/pkg/inject"
	"github.com/papercomputeco/splice/pkg/script"
)

// Config is the proxy server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// UpstreamURL is the origin whose documents are filtered (e.g., "http://localhost:3000")
	UpstreamURL string

	// Script supplies the JavaScript injected into each eligible document.
	// It is read once per response.
	Script script.Source

	// Location selects the tag the script is injected after.
	Location inject.Location

	// Policy selects whether only the first or every marker is followed by the script.
	Policy inject.Policy

	// Nonce is emitted as the script element's nonce attribute when set.
	Nonce string

	// ChunkSize is the filter's output buffer size. Defaults to inject.DefaultChunkSize.
	ChunkSize int

	// OverflowLimit bounds each filter's overflow queue; 0 is unbounded.
	OverflowLimit int

	// Publisher receives an event for every filtered document.
	// If nil, events are discarded.
	Publisher eventstream.Publisher
}
