package inject

import "strings"

// Location selects the tag after which the payload is injected.
type Location int

const (
	// LocationHead injects right after the opening <head> tag.
	LocationHead Location = iota

	// LocationBody injects right after the opening <body> tag.
	LocationBody
)

var (
	headMarker = []byte("<head>")
	bodyMarker = []byte("<body>")
)

// Marker returns the lowercase tag text matched for the location.
// Unknown locations fall back to the head marker.
func (l Location) Marker() []byte {
	switch l {
	case LocationBody:
		return bodyMarker
	default:
		return headMarker
	}
}

func (l Location) String() string {
	switch l {
	case LocationBody:
		return "body"
	default:
		return "head"
	}
}

// ParseLocation maps a config value to a Location. Unrecognized values
// return LocationHead and false.
func ParseLocation(s string) (Location, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "head", "":
		return LocationHead, true
	case "body":
		return LocationBody, true
	default:
		return LocationHead, false
	}
}

// Policy decides how many times a stream is injected into.
type Policy int

const (
	// InjectEvery injects after every completed marker in the stream.
	InjectEvery Policy = iota

	// InjectFirst injects after the first completed marker only.
	InjectFirst
)

func (p Policy) String() string {
	switch p {
	case InjectFirst:
		return "first"
	default:
		return "every"
	}
}

// ParsePolicy maps a config value to a Policy. Unrecognized values return
// InjectEvery and false.
func ParsePolicy(s string) (Policy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "every", "":
		return InjectEvery, true
	case "first", "once":
		return InjectFirst, true
	default:
		return InjectEvery, false
	}
}
