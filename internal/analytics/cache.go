package analytics

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/sallowayma-git/IELTS-practice-sub003/internal/model"
)

type cacheEntry struct {
	data   any
	stored time.Time
}

// fingerprint keys a cached result by operation, record count, first id,
// a hash over every record's identity and scoring fields, and the window.
// Two collections that differ in any hashed field get different keys even
// when their size and first id match.
func fingerprint(op string, records []model.PracticeRecord, window int) string {
	d := xxhash.New()
	var buf []byte
	for _, r := range records {
		buf = buf[:0]
		buf = append(buf, r.ID...)
		buf = append(buf, 0)
		buf = strconv.AppendInt(buf, r.UpdatedAt.UnixNano(), 10)
		buf = append(buf, 0)
		buf = strconv.AppendInt(buf, r.StartTime.UnixNano(), 10)
		buf = append(buf, 0)
		buf = strconv.AppendFloat(buf, r.Accuracy, 'g', -1, 64)
		buf = append(buf, 0)
		buf = append(buf, string(r.Status)...)
		buf = append(buf, '\n')
		d.Write(buf)
	}
	first := ""
	if len(records) > 0 {
		first = records[0].ID
	}
	key := op + "_" + strconv.Itoa(len(records)) + "_" + first + "_" + strconv.FormatUint(d.Sum64(), 16)
	if window > 0 {
		key += "_" + strconv.Itoa(window)
	}
	return key
}

func (e *Engine) lookup(key string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.cache[key]
	if !ok {
		return nil, false
	}
	if e.now().Sub(entry.stored) >= e.ttl {
		delete(e.cache, key)
		return nil, false
	}
	return entry.data, true
}

func (e *Engine) store(key string, data any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache[key] = cacheEntry{data: data, stored: e.now()}
}

// sweep removes expired entries.
func (e *Engine) sweep() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	removed := 0
	for key, entry := range e.cache {
		if now.Sub(entry.stored) >= e.ttl {
			delete(e.cache, key)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("swept analysis cache", "removed", removed, "remaining", len(e.cache))
	}
}

// cached returns the memoized result for key or computes and stores it.
// Cached values are shared between callers and must be treated as read-only.
func cached[T any](e *Engine, key string, compute func() T) T {
	if v, ok := e.lookup(key); ok {
		if t, ok := v.(T); ok {
			return t
		}
	}
	v := compute()
	e.store(key, v)
	return v
}
