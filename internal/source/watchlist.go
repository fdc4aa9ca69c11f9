package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/9TreyRP/CryptoScanner/internal/model"
)

// WatchList serves a fixed set of candidates read from a file. YAML files
// (.yml/.yaml) use the `candidates:` list; anything else is parsed as text,
// one candidate per line: "[label] <btc> <eth>" separated by spaces or commas.
type WatchList struct {
	name string

	mu    sync.Mutex
	items []model.Candidate
	pos   int
}

type yamlEntry struct {
	Label string `yaml:"label"`
	BTC   string `yaml:"btc"`
	ETH   string `yaml:"eth"`
}

type yamlFile struct {
	Candidates []yamlEntry `yaml:"candidates"`
}

func LoadWatchList(path string) (*WatchList, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read watch list: %w", err)
	}
	var items []model.Candidate
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		items, err = parseYAML(b)
	default:
		items, err = parseText(b)
	}
	if err != nil {
		return nil, fmt.Errorf("parse watch list %s: %w", path, err)
	}
	return NewWatchList(filepath.Base(path), items)
}

func NewWatchList(name string, items []model.Candidate) (*WatchList, error) {
	if len(items) == 0 {
		return nil, ErrEmpty
	}
	return &WatchList{name: name, items: items}, nil
}

func (w *WatchList) Name() string { return "watchlist:" + w.name }

func (w *WatchList) Len() int { return len(w.items) }

func (w *WatchList) Next(ctx context.Context) (model.Candidate, bool) {
	if ctx.Err() != nil {
		return model.Candidate{}, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pos >= len(w.items) {
		return model.Candidate{}, false
	}
	c := w.items[w.pos]
	w.pos++
	return c, true
}

func (w *WatchList) Reset() {
	w.mu.Lock()
	w.pos = 0
	w.mu.Unlock()
}

func parseYAML(b []byte) ([]model.Candidate, error) {
	var f yamlFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	out := make([]model.Candidate, 0, len(f.Candidates))
	for i, e := range f.Candidates {
		c := build(e.Label, e.BTC, e.ETH)
		if len(c.Addresses) == 0 {
			return nil, fmt.Errorf("entry %d has no addresses", i)
		}
		if c.Label == "" {
			c.Label = fmt.Sprintf("entry-%d", i+1)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseText(b []byte) ([]model.Candidate, error) {
	var out []model.Candidate
	sc := bufio.NewScanner(bytes.NewReader(b))
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
		var c model.Candidate
		switch len(fields) {
		case 2:
			c = build(fmt.Sprintf("line-%d", n), fields[0], fields[1])
		case 3:
			c = build(fields[0], fields[1], fields[2])
		default:
			return nil, fmt.Errorf("line %d: want \"[label] <btc> <eth>\", got %d fields", n, len(fields))
		}
		out = append(out, c)
	}
	return out, sc.Err()
}

func build(label, btc, eth string) model.Candidate {
	c := model.Candidate{Label: strings.TrimSpace(label), Addresses: map[model.Chain]string{}}
	if s := strings.TrimSpace(btc); s != "" && s != "-" {
		c.Addresses[model.ChainBTC] = s
	}
	if s := strings.TrimSpace(eth); s != "" && s != "-" {
		c.Addresses[model.ChainETH] = s
	}
	return c
}
