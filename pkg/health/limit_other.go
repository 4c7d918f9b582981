//go:build !linux

package health

// systemMemoryLimit is unknown outside Linux.
func systemMemoryLimit() uint64 {
	return 0
}
