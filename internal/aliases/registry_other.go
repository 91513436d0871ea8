//go:build !windows

package aliases

// DefaultBackend has no registry to write to off Windows; aliases live only
// for the life of the process.
func DefaultBackend() Backend {
	return NewMemoryBackend()
}
