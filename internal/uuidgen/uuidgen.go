// Package uuidgen はローカルで発行するエンティティのUUIDを生成する。
package uuidgen

import (
	"encoding/binary"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator は一意なUUIDを返す。
type Generator interface {
	Next() uuid.UUID
}

// Random はランダムなv4 UUIDを生成する。
type Random struct{}

// Next は新しいUUIDを返す。
func (Random) Next() uuid.UUID {
	return uuid.New()
}

// Counter は単調増加するカウンタからv4形式のUUIDを生成する。
type Counter struct {
	next atomic.Uint64
}

// NewCounter はカウンタ型ジェネレータを生成する。
func NewCounter() *Counter {
	return &Counter{}
}

// Next は次のUUIDを返す。
func (c *Counter) Next() uuid.UUID {
	n := c.next.Add(1) - 1
	var id uuid.UUID
	binary.BigEndian.PutUint64(id[8:], n)
	return withV4Bits(id)
}

// Seeded はシードから決定的なUUID列を生成する。
type Seeded struct {
	mu  sync.Mutex
	rng *rand.ChaCha8
}

// NewSeeded はシード付きジェネレータを生成する。
func NewSeeded(seed uint64) *Seeded {
	var s [32]byte
	binary.LittleEndian.PutUint64(s[:], seed)
	return &Seeded{rng: rand.NewChaCha8(s)}
}

// Next は次のUUIDを返す。
func (g *Seeded) Next() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	var id uuid.UUID
	_, _ = g.rng.Read(id[:])
	return withV4Bits(id)
}

func withV4Bits(id uuid.UUID) uuid.UUID {
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}

// compile-time interface check
var (
	_ Generator = Random{}
	_ Generator = (*Counter)(nil)
	_ Generator = (*Seeded)(nil)
)
