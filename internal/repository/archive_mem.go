package repository

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/eternaltwin/etwin/internal/temporal"
)

type archiveKey struct {
	field   string
	subject string
}

type entityKey struct {
	entity string
	server string
	id     string
}

// memArchive はメモリ上のアーカイブ。書き込みは mu で直列化する。
type memArchive struct {
	mu       sync.RWMutex
	entities map[entityKey]time.Time
	rows     *temporal.Archive[archiveKey, []byte]
}

func newMemArchive() *memArchive {
	return &memArchive{
		entities: make(map[entityKey]time.Time),
		rows:     temporal.NewArchive[archiveKey, []byte](bytes.Equal),
	}
}

func (m *memArchive) view(ctx context.Context, fn func(r archiveReader) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m)
}

func (m *memArchive) update(ctx context.Context, fn func(w archiveWriter) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m)
}

func (m *memArchive) archivedAt(_ context.Context, entity, server, id string) (*time.Time, error) {
	at, ok := m.entities[entityKey{entity, server, id}]
	if !ok {
		return nil, nil
	}
	return &at, nil
}

func (m *memArchive) read(_ context.Context, subject string, t *time.Time, fields ...string) (map[string]archiveValue, error) {
	out := make(map[string]archiveValue, len(fields))
	for _, f := range fields {
		row, ok := m.rows.Get(archiveKey{f, subject}, t)
		if !ok {
			continue
		}
		out[f] = archiveValue{Period: row.Period, Retrieved: row.LastRetrieved(), Raw: row.Value}
	}
	return out, nil
}

func (m *memArchive) touchEntity(_ context.Context, entity, server, id string, now time.Time) error {
	key := entityKey{entity, server, id}
	if at, ok := m.entities[key]; !ok || now.Before(at) {
		m.entities[key] = now
	}
	return nil
}

func (m *memArchive) touch(_ context.Context, field, subject string, now time.Time, raw []byte) (temporal.Outcome, error) {
	return m.rows.Touch(archiveKey{field, subject}, now, raw), nil
}

func (m *memArchive) closeOthers(_ context.Context, field, server, subject string, now time.Time, raw []byte) (int, error) {
	prefix := server + "/"
	n := m.rows.CloseWhere(now, func(key archiveKey, value []byte) bool {
		return key.field == field &&
			key.subject != subject &&
			strings.HasPrefix(key.subject, prefix) &&
			bytes.Equal(value, raw)
	})
	return n, nil
}

// compile-time interface check
var _ archiveBackend = (*memArchive)(nil)
var _ archiveWriter = (*memArchive)(nil)
