// Package store remembers which candidates were verified recently so
// repeated passes over a watch list do not re-query unchanged addresses
// before their TTL runs out.
package store

import (
	"container/list"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/9TreyRP/CryptoScanner/internal/model"
)

// Recent is a TTL-bound LRU of candidate keys.
type Recent struct {
	mu    sync.Mutex
	cap   int
	ttl   time.Duration
	now   func() time.Time
	ll    *list.List // most recent at front
	items map[string]*list.Element
}

type entry struct {
	key string
	exp time.Time
}

func NewRecent(maxKeys int, ttl time.Duration) *Recent {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Recent{cap: maxKeys, ttl: ttl, now: time.Now, ll: list.New(), items: make(map[string]*list.Element, maxKeys)}
}

// Key identifies a candidate by its addresses, independent of its label.
func Key(c model.Candidate) string {
	parts := make([]string, 0, len(c.Addresses))
	for ch, a := range c.Addresses {
		parts = append(parts, ch.String()+"="+strings.ToLower(a))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

// Seen reports whether c was marked and has not expired.
func (r *Recent) Seen(c model.Candidate) bool {
	key := Key(c)
	r.mu.Lock()
	defer r.mu.Unlock()
	el, ok := r.items[key]
	if !ok {
		return false
	}
	if r.now().Before(el.Value.(entry).exp) {
		r.ll.MoveToFront(el)
		return true
	}
	r.ll.Remove(el)
	delete(r.items, key)
	return false
}

// Mark records c as verified now.
func (r *Recent) Mark(c model.Candidate) {
	key := Key(c)
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if el, ok := r.items[key]; ok {
		el.Value = entry{key: key, exp: now.Add(r.ttl)}
		r.ll.MoveToFront(el)
		return
	}
	r.items[key] = r.ll.PushFront(entry{key: key, exp: now.Add(r.ttl)})
	for r.ll.Len() > r.cap {
		r.evict(r.ll.Back())
	}
	for t := r.ll.Back(); t != nil && !now.Before(t.Value.(entry).exp); t = r.ll.Back() {
		r.evict(t)
	}
}

func (r *Recent) evict(el *list.Element) {
	r.ll.Remove(el)
	delete(r.items, el.Value.(entry).key)
}

func (r *Recent) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ll.Len()
}
