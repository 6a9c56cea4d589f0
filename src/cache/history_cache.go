// Package cache holds the most recent and historical encoded updates per
// subject. It answers what a new subscriber is allowed to see.
package cache

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"market-broker/src/codec"
	"market-broker/src/models"
	"market-broker/src/utils"
)

// DefaultHistoryCapacity bounds every (subject, interval) history buffer.
// It is also the largest capacity accepted.
const DefaultHistoryCapacity = 120

type historyKey struct {
	subject  string
	interval int
}

// -----------------------------------------------------------------------------

// HistoryCache owns the latest-value map and the bounded history tapes.
type HistoryCache struct {
	mu       sync.RWMutex
	latest   map[string]string
	history  map[historyKey]*utils.RingBuffer
	order    []historyKey // creation order of history keys, for a stable Snapshot
	capacity int

	lastTimestamp atomic.Int64
	admitted      atomic.Int64
}

// -----------------------------------------------------------------------------

func NewHistoryCache(capacity int) *HistoryCache {
	if capacity <= 0 || capacity > DefaultHistoryCapacity {
		capacity = DefaultHistoryCapacity
	}
	return &HistoryCache{
		latest:   make(map[string]string),
		history:  make(map[historyKey]*utils.RingBuffer),
		capacity: capacity,
	}
}

// -----------------------------------------------------------------------------

// Admit records an encoded update. rec may be nil, in which case encoded is
// decoded to read the volume.
//
// The latest value for subject is replaced when the update carries volume on
// the finest interval, or when the subject has no latest value yet. The
// update is always appended to the (subject, interval) history.
func (c *HistoryCache) Admit(subject string, interval int, encoded string, rec *models.MUpdateRecord) string {
	if rec == nil {
		if parsed, err := codec.DecodeUpdate(encoded); err == nil {
			rec = parsed
		} else {
			rec = &models.MUpdateRecord{Name: subject, Interval: interval}
		}
	}

	key := historyKey{subject: subject, interval: interval}

	c.mu.Lock()
	if _, exists := c.latest[subject]; !exists || (rec.VolumeMoved != 0 && interval == models.IntervalFinest) {
		c.latest[subject] = encoded
	}

	buf, ok := c.history[key]
	if !ok {
		buf = utils.NewRingBuffer(c.capacity)
		c.history[key] = buf
		c.order = append(c.order, key)
	}
	buf.Append(encoded)
	c.mu.Unlock()

	c.admitted.Add(1)
	for {
		cur := c.lastTimestamp.Load()
		if rec.Timestamp <= cur || c.lastTimestamp.CompareAndSwap(cur, rec.Timestamp) {
			break
		}
	}

	return subject
}

// -----------------------------------------------------------------------------

// Seed admits one zero-valued baseline record per subject so the subject is
// known before any publisher has sent data.
func (c *HistoryCache) Seed(subjects []string) {
	for _, s := range subjects {
		rec := &models.MUpdateRecord{Name: s, Interval: models.IntervalBaseline}
		c.Admit(s, models.IntervalBaseline, codec.EncodeUpdate(rec), rec)
	}
}

// -----------------------------------------------------------------------------

// SubjectNames lists subjects that have a baseline-interval history, sorted.
func (c *HistoryCache) SubjectNames() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.order))
	for _, k := range c.order {
		if k.interval == models.IntervalBaseline {
			names = append(names, k.subject)
		}
	}
	c.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Directory renders SubjectNames as "A|B|", the listing text frame format.
func (c *HistoryCache) Directory() string {
	var b strings.Builder
	for _, n := range c.SubjectNames() {
		b.WriteString(n)
		b.WriteByte('|')
	}
	return b.String()
}

// -----------------------------------------------------------------------------

// Contains reports whether subject has a latest value.
func (c *HistoryCache) Contains(subject string) bool {
	c.mu.RLock()
	_, ok := c.latest[subject]
	c.mu.RUnlock()
	return ok
}

// -----------------------------------------------------------------------------

// Latest returns the latest value for subject.
func (c *HistoryCache) Latest(subject string) (string, bool) {
	c.mu.RLock()
	v, ok := c.latest[subject]
	c.mu.RUnlock()
	return v, ok
}

// History returns a copy of the (subject, interval) tape, oldest first.
func (c *HistoryCache) History(subject string, interval int) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	buf, ok := c.history[historyKey{subject: subject, interval: interval}]
	if !ok {
		return nil
	}
	return buf.GetAll()
}

// -----------------------------------------------------------------------------

// Snapshot returns every latest value (sorted by subject) followed by every
// history entry, grouped per (subject, interval) in creation order.
func (c *HistoryCache) Snapshot() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subjects := make([]string, 0, len(c.latest))
	total := len(c.latest)
	for s := range c.latest {
		subjects = append(subjects, s)
	}
	for _, buf := range c.history {
		total += buf.Size()
	}
	sort.Strings(subjects)

	out := make([]string, 0, total)
	for _, s := range subjects {
		out = append(out, c.latest[s])
	}
	for _, k := range c.order {
		out = c.history[k].AppendTo(out)
	}
	return out
}

// -----------------------------------------------------------------------------

// Len returns the number of latest values and the total history entries.
func (c *HistoryCache) Len() (latest int, history int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, buf := range c.history {
		history += buf.Size()
	}
	return len(c.latest), history
}

// AdmittedCount is the number of Admit calls so far.
func (c *HistoryCache) AdmittedCount() int64 {
	return c.admitted.Load()
}

// LatestTimestamp is the largest update timestamp admitted so far.
func (c *HistoryCache) LatestTimestamp() int64 {
	return c.lastTimestamp.Load()
}
