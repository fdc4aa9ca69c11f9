package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/9TreyRP/CryptoScanner/internal/config"
	"github.com/9TreyRP/CryptoScanner/internal/model"
)

// ErrEmpty is returned when a source has nothing to offer at all.
var ErrEmpty = errors.New("source: no candidates")

// Source hands out candidates one at a time. ok is false once the current
// pass is exhausted or ctx is done.
type Source interface {
	Name() string
	Next(ctx context.Context) (c model.Candidate, ok bool)
	// Reset starts a new pass.
	Reset()
}

func NewFromConfig(c config.Source) (Source, error) {
	switch c.Type {
	case "watchlist", "":
		return LoadWatchList(c.Path)
	default:
		return nil, fmt.Errorf("unknown source type: %s", c.Type)
	}
}
