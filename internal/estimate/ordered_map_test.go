package estimate

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestOrderedMapKeepsInsertionOrder(t *testing.T) {
	var m OrderedMap[int]
	if err := json.Unmarshal([]byte(`{"z":1,"a":2,"m":3}`), &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got := strings.Join(m.Keys(), ","); got != "z,a,m" {
		t.Fatalf("expected z,a,m, got %s", got)
	}
	m.Set("b", 4)
	m.Set("z", 9)
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"z":9,"a":2,"m":3,"b":4}` {
		t.Fatalf("unexpected encoding %s", data)
	}
	if m.Legacy() {
		t.Fatalf("object form should not be legacy")
	}
}

func TestOrderedMapDecodesLegacyArray(t *testing.T) {
	var m OrderedMap[*Note]
	if err := json.Unmarshal([]byte(`[{"id":7,"note":"a"},null,{"note":"b"}]`), &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !m.Legacy() {
		t.Fatalf("expected legacy flag")
	}
	if got := strings.Join(m.Keys(), ","); got != "7,2" {
		t.Fatalf("expected keys 7,2, got %s", got)
	}
}

func TestOrderedMapSwapAndDelete(t *testing.T) {
	m := NewOrderedMap[string]()
	m.Set("a", "A")
	m.Set("b", "B")
	m.Set("c", "C")
	if m.Swap("b", "c", "X") {
		t.Fatalf("expected swap onto existing key to fail")
	}
	if m.Swap("missing", "d", "D") {
		t.Fatalf("expected swap of missing key to fail")
	}
	if !m.Swap("b", "d", "D") {
		t.Fatalf("expected swap to succeed")
	}
	if got := strings.Join(m.Keys(), ","); got != "a,d,c" {
		t.Fatalf("expected a,d,c, got %s", got)
	}
	if !m.Delete("a") || m.Delete("a") {
		t.Fatalf("expected delete to succeed exactly once")
	}
	if got := strings.Join(m.Values(), ","); got != "D,C" {
		t.Fatalf("expected D,C, got %s", got)
	}
}
