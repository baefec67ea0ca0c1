// Package script provides the JavaScript source text that splice injects into
// documents. A Source is read once per response, so a reloading source swaps
// the payload for new responses without disturbing streams already in flight.
package script

import "log/slog"

// Source returns the current script text.
type Source interface {
	Script() string
}

// Static is a Source whose text never changes.
type Static string

// Script returns s.
func (s Static) Script() string {
	return string(s)
}

// FromConfig resolves the configured script. A script file wins over inline
// text; with neither set it returns ErrNoSource.
func FromConfig(inline, file string, logger *slog.Logger) (Source, error) {
	if file != "" {
		return NewFileSource(file, logger)
	}

	if inline != "" {
		return Static(inline), nil
	}

	return nil, ErrNoSource
}
