//go:build linux

package ring

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mappedFile is a temp file truncated to length and mapped MAP_SHARED,
// generalizing the teacher's shm.NewMatrix open/truncate/mmap sequence
// from /dev/shm filenames to a caller-chosen directory and (for the
// backing store) an on-disk, not tmpfs-only, file.
type mappedFile struct {
	f    *os.File
	data []byte
}

// mapFile creates (or truncates) the file at path to length bytes and maps
// it MAP_SHARED, PROT_READ|PROT_WRITE. It is the backing-store mapper
// collaborator of spec.md §6: input (length, directory-qualified path),
// output (fd, base address) - represented here as an *os.File and a []byte
// view over the mapping.
func mapFile(path string, length uint64) (*mappedFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ring: mapFile: open %s: %w", path, err)
	}
	if err := f.Truncate(int64(length)); err != nil {
		f.Close()
		return nil, fmt.Errorf("ring: mapFile: truncate %s: %w", path, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ring: mapFile: mmap %s: %w", path, err)
	}
	return &mappedFile{f: f, data: data}, nil
}

func (m *mappedFile) fd() int { return int(m.f.Fd()) }

func (m *mappedFile) close(removeFile bool) error {
	path := m.f.Name()
	if err := unix.Munmap(m.data); err != nil {
		m.f.Close()
		return fmt.Errorf("ring: mappedFile.close: munmap: %w", err)
	}
	if err := m.f.Close(); err != nil {
		return fmt.Errorf("ring: mappedFile.close: close: %w", err)
	}
	if removeFile {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("ring: mappedFile.close: remove %s: %w", path, err)
		}
	}
	return nil
}
