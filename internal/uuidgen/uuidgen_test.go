package uuidgen

import (
	"testing"

	"github.com/google/uuid"
)

func TestCounter_IsDeterministicAndV4(t *testing.T) {
	a := NewCounter()
	b := NewCounter()

	for i := 0; i < 3; i++ {
		x, y := a.Next(), b.Next()
		if x != y {
			t.Fatalf("同じ順番で異なるUUIDが生成されました: %s != %s", x, y)
		}
		if x.Version() != 4 || x.Variant() != uuid.RFC4122 {
			t.Errorf("v4形式ではありません: %s", x)
		}
	}
}

func TestCounter_Unique(t *testing.T) {
	g := NewCounter()
	seen := make(map[uuid.UUID]bool)
	for i := 0; i < 100; i++ {
		id := g.Next()
		if seen[id] {
			t.Fatalf("重複したUUIDが生成されました: %s", id)
		}
		seen[id] = true
	}
}

func TestSeeded_SameSeedSameStream(t *testing.T) {
	a := NewSeeded(42)
	b := NewSeeded(42)
	c := NewSeeded(7)

	x, y, z := a.Next(), b.Next(), c.Next()
	if x != y {
		t.Errorf("同じシードで異なるUUIDが生成されました: %s != %s", x, y)
	}
	if x == z {
		t.Errorf("異なるシードで同じUUIDが生成されました: %s", x)
	}
	if x.Version() != 4 {
		t.Errorf("v4形式ではありません: %s", x)
	}
}

func TestRandom_Version(t *testing.T) {
	id := Random{}.Next()
	if id.Version() != 4 {
		t.Errorf("v4形式ではありません: %s", id)
	}
}
