package estimate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// OrderedMap is the canonical keyed collection of the persisted record.
// Keys keep insertion order so rendering is stable across reloads.
//
// The JSON decoder accepts both the canonical object form and the legacy
// array form written by older clients; array elements are keyed by their
// "id" field (or their index when no id is present).
type OrderedMap[T any] struct {
	keys   []string
	values map[string]T
	legacy bool
}

func NewOrderedMap[T any]() *OrderedMap[T] {
	return &OrderedMap[T]{values: map[string]T{}}
}

func (m *OrderedMap[T]) ensure() {
	if m.values == nil {
		m.values = map[string]T{}
	}
}

func (m *OrderedMap[T]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

func (m *OrderedMap[T]) Has(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m.values[key]
	return ok
}

func (m *OrderedMap[T]) Get(key string) (T, bool) {
	var zero T
	if m == nil {
		return zero, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Set stores value under key. New keys are appended; existing keys keep
// their position.
func (m *OrderedMap[T]) Set(key string, value T) {
	m.ensure()
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Swap replaces oldKey with newKey at the same position. It returns false
// when oldKey is missing or newKey is already used by another entry.
func (m *OrderedMap[T]) Swap(oldKey, newKey string, value T) bool {
	if m == nil {
		return false
	}
	if _, ok := m.values[oldKey]; !ok {
		return false
	}
	if oldKey != newKey {
		if _, taken := m.values[newKey]; taken {
			return false
		}
	}
	for i, k := range m.keys {
		if k == oldKey {
			m.keys[i] = newKey
			break
		}
	}
	delete(m.values, oldKey)
	m.values[newKey] = value
	return true
}

func (m *OrderedMap[T]) Delete(key string) bool {
	if m == nil {
		return false
	}
	if _, ok := m.values[key]; !ok {
		return false
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

func (m *OrderedMap[T]) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

func (m *OrderedMap[T]) Values() []T {
	if m == nil {
		return nil
	}
	out := make([]T, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.values[k])
	}
	return out
}

// Range calls fn for each entry in order until fn returns false.
func (m *OrderedMap[T]) Range(fn func(key string, value T) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// Legacy reports whether the map was decoded from the array form.
func (m *OrderedMap[T]) Legacy() bool {
	return m != nil && m.legacy
}

func (m OrderedMap[T]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *OrderedMap[T]) UnmarshalJSON(data []byte) error {
	m.keys = nil
	m.values = map[string]T{}
	m.legacy = false
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '{':
		return m.decodeObject(data)
	case '[':
		m.legacy = true
		return m.decodeArray(data)
	default:
		return fmt.Errorf("ordered map: unexpected JSON %q", truncate(string(data), 32))
	}
}

func (m *OrderedMap[T]) decodeObject(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("ordered map: non-string key %v", tok)
		}
		var value T
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("ordered map: decode %q: %w", key, err)
		}
		m.Set(key, value)
	}
	_, err := dec.Token()
	return err
}

func (m *OrderedMap[T]) decodeArray(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	for i, raw := range items {
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}
		var probe struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.Unmarshal(raw, &probe)
		key := flexString(probe.ID)
		if key == "" {
			key = strconv.Itoa(i)
		}
		var value T
		if err := json.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("ordered map: decode item %d: %w", i, err)
		}
		m.Set(key, value)
	}
	return nil
}

// flexString decodes an identifier that may be encoded as a JSON string or
// a JSON number.
func flexString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	return n.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
