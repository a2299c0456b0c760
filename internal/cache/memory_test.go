package cache

import (
	"encoding/json"
	"testing"
)

type tinyRecord struct {
	N int `json:"n"`
}

func (tinyRecord) SchemaVersion() string { return "1.0.0" }

func (r tinyRecord) Encode() ([]byte, error) { return json.Marshal(r) }

func TestMemoryTierAccounting(t *testing.T) {
	m := newMemoryTier[tinyRecord]()

	m.put("a", tinyRecord{N: 1}, 1, 10)
	m.put("b", tinyRecord{N: 2}, 2, 20)

	if m.count() != 2 {
		t.Errorf("Expected 2 entries, got %d", m.count())
	}
	if m.size() != 30 {
		t.Errorf("Expected total size 30, got %d", m.size())
	}

	// Overwriting replaces the old size rather than adding to it.
	m.put("a", tinyRecord{N: 3}, 3, 15)
	if m.size() != 35 {
		t.Errorf("Expected total size 35 after overwrite, got %d", m.size())
	}
	if m.count() != 2 {
		t.Errorf("Expected overwrite to keep 2 entries, got %d", m.count())
	}

	if !m.delete("a") {
		t.Error("Expected delete of present key to report true")
	}
	if m.delete("a") {
		t.Error("Expected delete of absent key to report false")
	}
	if m.size() != 20 || m.count() != 1 {
		t.Errorf("Expected 1 entry of 20 bytes, got %d entries of %d bytes", m.count(), m.size())
	}
}

func TestMemoryTierEldestOrder(t *testing.T) {
	m := newMemoryTier[tinyRecord]()

	m.put("c", tinyRecord{}, 3, 1)
	m.put("b", tinyRecord{}, 1, 1)
	m.put("a", tinyRecord{}, 2, 1)

	// Oldest timestamp wins.
	if key, ok := m.eldest(); !ok || key != "b" {
		t.Errorf("Expected eldest b, got %q found=%v", key, ok)
	}

	// On a timestamp tie, the lexicographically smaller key wins.
	m.put("d", tinyRecord{}, 1, 1)
	m.put("aa", tinyRecord{}, 1, 1)
	if key, ok := m.eldest(); !ok || key != "aa" {
		t.Errorf("Expected eldest aa on tie, got %q found=%v", key, ok)
	}
}

func TestMemoryTierEldestDrainOrder(t *testing.T) {
	m := newMemoryTier[tinyRecord]()
	m.put("b", tinyRecord{}, 5, 1)
	m.put("a", tinyRecord{}, 5, 1)
	m.put("c", tinyRecord{}, 4, 1)

	var order []string
	for {
		key, ok := m.eldest()
		if !ok {
			break
		}
		order = append(order, key)
		m.delete(key)
	}

	want := []string{"c", "a", "b"}
	if len(order) != len(want) {
		t.Fatalf("Expected %d victims, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("Victim %d: expected %s, got %s", i, want[i], order[i])
		}
	}
}

func TestMemoryTierClear(t *testing.T) {
	m := newMemoryTier[tinyRecord]()
	m.put("a", tinyRecord{}, 1, 5)
	m.put("b", tinyRecord{}, 2, 5)

	m.clear()

	if m.count() != 0 || m.size() != 0 {
		t.Errorf("Expected empty tier, got %d entries of %d bytes", m.count(), m.size())
	}
	if m.contains("a") {
		t.Error("Expected cleared tier to contain nothing")
	}
	if _, ok := m.eldest(); ok {
		t.Error("Expected no eldest entry in cleared tier")
	}
}
