package sink

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/9TreyRP/CryptoScanner/internal/model"
)

// File appends one text block per record to a log file.
type File struct {
	path string

	mu sync.Mutex
	f  *os.File
}

func NewFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &File{path: path, f: f}, nil
}

func (s *File) Name() string { return "file:" + s.path }

func (s *File) Record(_ context.Context, rec model.ScanRecord) error {
	var b strings.Builder
	ts := rec.CheckedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	fmt.Fprintf(&b, "[%s] FOUND WALLET\n", ts.Format("2006-01-02 15:04:05"))
	for _, r := range rec.Results {
		fmt.Fprintf(&b, "%s: %s - Balance: %s (%s via %s)\n",
			strings.ToUpper(r.Chain.String()), r.Address, model.FormatUnits(r.Balance, r.Decimals), r.Outcome, r.Provider)
	}
	fmt.Fprintf(&b, "Label: %s\n", rec.Candidate.Label)
	fmt.Fprintf(&b, "Record: %s\n", rec.ID)
	b.WriteString(strings.Repeat("-", 70) + "\n")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	w := bufio.NewWriter(s.f)
	if _, err := w.WriteString(b.String()); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return s.f.Sync()
}

func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
