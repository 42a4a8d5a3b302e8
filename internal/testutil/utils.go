package testutil

import (
	"testing"

	"github.com/rs/zerolog"
)

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// TestLogger returns a logger that writes through t.Log so output is
// attached to the failing test.
func TestLogger(t *testing.T) zerolog.Logger {
	return zerolog.New(testWriter{t: t}).With().Timestamp().Logger()
}
