package aliases

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrKeyNotFound is returned by a Backend for a subkey that does not exist.
var ErrKeyNotFound = errors.New("registry key not found")

// Values are the named values of one App Paths subkey. The empty name is the
// key's default value.
type Values struct {
	Strings map[string]string
	DWords  map[string]uint32
}

func (v *Values) str(name string) (string, bool) {
	if v == nil || v.Strings == nil {
		return "", false
	}
	s, ok := v.Strings[name]
	return s, ok
}

// Backend stores App Paths subkeys. Subkey names compare case-insensitively,
// as they do in the registry.
type Backend interface {
	// Keys lists subkey names. A missing App Paths root yields no keys.
	Keys() ([]string, error)
	// Read returns every value of name, or ErrKeyNotFound.
	Read(name string) (*Values, error)
	// Write creates name if needed and sets the given values, leaving any
	// others in place.
	Write(name string, v *Values) error
	// Delete removes name, or returns ErrKeyNotFound.
	Delete(name string) error
}

// MemoryBackend is an in-process Backend used by tests and by builds without
// a registry.
type MemoryBackend struct {
	mu   sync.Mutex
	keys map[string]*memKey
}

type memKey struct {
	name   string
	values Values
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{keys: make(map[string]*memKey)}
}

func (m *MemoryBackend) Keys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, k.name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryBackend) Read(name string) (*Values, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[strings.ToLower(name)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := &Values{Strings: map[string]string{}, DWords: map[string]uint32{}}
	for n, s := range k.values.Strings {
		out.Strings[n] = s
	}
	for n, d := range k.values.DWords {
		out.DWords[n] = d
	}
	return out, nil
}

func (m *MemoryBackend) Write(name string, v *Values) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := strings.ToLower(name)
	k, ok := m.keys[id]
	if !ok {
		k = &memKey{name: name, values: Values{Strings: map[string]string{}, DWords: map[string]uint32{}}}
		m.keys[id] = k
	}
	if v == nil {
		return nil
	}
	// A registry value has exactly one type.
	for n, s := range v.Strings {
		delete(k.values.DWords, n)
		k.values.Strings[n] = s
	}
	for n, d := range v.DWords {
		delete(k.values.Strings, n)
		k.values.DWords[n] = d
	}
	return nil
}

func (m *MemoryBackend) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := strings.ToLower(name)
	if _, ok := m.keys[id]; !ok {
		return ErrKeyNotFound
	}
	delete(m.keys, id)
	return nil
}
