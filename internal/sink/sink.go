package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/9TreyRP/CryptoScanner/internal/config"
	"github.com/9TreyRP/CryptoScanner/internal/model"
)

var (
	ErrFull   = errors.New("sink: buffer full, record dropped")
	ErrClosed = errors.New("sink: closed")
)

// Recorder persists interesting records. Writes are append-only.
type Recorder interface {
	Name() string
	Record(ctx context.Context, rec model.ScanRecord) error
	Close() error
}

// NewFromConfig builds the configured recorder wrapped in an Async buffer.
// Test mode always yields a no-op.
func NewFromConfig(c config.Sink, testMode bool) (Recorder, error) {
	if testMode {
		return Noop{}, nil
	}
	var r Recorder
	var err error
	switch c.Type {
	case "file", "":
		r, err = NewFile(c.Path)
	case "sqlite":
		r, err = NewSQLite(c.Path)
	case "none":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown sink type: %s", c.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s sink: %w", c.Type, err)
	}
	return NewAsync(r, c.Buffer), nil
}

// Noop discards everything.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Record(context.Context, model.ScanRecord) error { return nil }

func (Noop) Close() error { return nil }
