//go:build windows

package aliases

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows/registry"
)

// RegistryBackend reads and writes subkeys of HKCU\AppPathsKey.
type RegistryBackend struct {
	root registry.Key
	path string
}

func NewRegistryBackend() *RegistryBackend {
	return &RegistryBackend{root: registry.CURRENT_USER, path: AppPathsKey}
}

// DefaultBackend is the per-user App Paths key.
func DefaultBackend() Backend {
	return NewRegistryBackend()
}

func (r *RegistryBackend) subkey(name string) string {
	return r.path + `\` + name
}

func (r *RegistryBackend) Keys() ([]string, error) {
	k, err := registry.OpenKey(r.root, r.path, registry.ENUMERATE_SUB_KEYS)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open App Paths: %w", err)
	}
	defer k.Close()

	names, err := k.ReadSubKeyNames(-1)
	if err != nil {
		return nil, fmt.Errorf("enumerate App Paths: %w", err)
	}
	return names, nil
}

func (r *RegistryBackend) Read(name string) (*Values, error) {
	k, err := registry.OpenKey(r.root, r.subkey(name), registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer k.Close()

	names, err := k.ReadValueNames(-1)
	if err != nil {
		return nil, fmt.Errorf("read values of %s: %w", name, err)
	}
	// The default value is not always enumerated.
	names = append(names, "")

	out := &Values{Strings: map[string]string{}, DWords: map[string]uint32{}}
	for _, n := range names {
		if _, seen := out.Strings[n]; seen {
			continue
		}
		_, valType, err := k.GetValue(n, nil)
		if err != nil {
			continue
		}
		switch valType {
		case registry.SZ, registry.EXPAND_SZ:
			if s, _, err := k.GetStringValue(n); err == nil {
				out.Strings[n] = s
			}
		case registry.DWORD, registry.QWORD:
			if d, _, err := k.GetIntegerValue(n); err == nil {
				out.DWords[n] = uint32(d)
			}
		}
	}
	return out, nil
}

func (r *RegistryBackend) Write(name string, v *Values) error {
	k, _, err := registry.CreateKey(r.root, r.subkey(name), registry.SET_VALUE|registry.QUERY_VALUE)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer k.Close()
	if v == nil {
		return nil
	}

	for n, s := range v.Strings {
		if err := k.SetStringValue(n, s); err != nil {
			return fmt.Errorf("set %s\\%s: %w", name, n, err)
		}
	}
	for n, d := range v.DWords {
		if err := k.SetDWordValue(n, d); err != nil {
			return fmt.Errorf("set %s\\%s: %w", name, n, err)
		}
	}
	return nil
}

func (r *RegistryBackend) Delete(name string) error {
	if err := registry.DeleteKey(r.root, r.subkey(name)); err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}
