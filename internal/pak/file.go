package pak

import (
	"fmt"
	"os"
	"path/filepath"

	"appleport/internal/medium"
)

// Extension is the conventional pak filename suffix.
const Extension = ".pak"

// LoadFile reads a pak from disk.
func LoadFile(path string) (*medium.MemArchive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	a, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// SaveFile writes a pak to disk via a temp file so a failed save never
// truncates the previous container.
func SaveFile(path string, arc medium.Archive, method Method) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pak-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := Save(tmp, arc, method); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
