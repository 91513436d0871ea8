//go:build !windows

package shortcut

func Read(path string) (*Shortcut, error) {
	return nil, ErrUnsupported
}

func Write(path string, s Shortcut) error {
	return ErrUnsupported
}
