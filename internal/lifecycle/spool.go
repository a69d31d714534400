package lifecycle

import (
	"fmt"
	"os"
)

// SpoolFile writes data to a fresh temporary file and returns its path with a
// release that removes it. Decoders that need a seekable, named source read
// from the path until release.
func SpoolFile(data []byte, pattern string) (string, Release, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", nil, fmt.Errorf("create spool file: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", nil, fmt.Errorf("write spool file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", nil, fmt.Errorf("close spool file: %w", err)
	}

	release := Once(func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove spool file: %w", err)
		}
		return nil
	})
	return path, release, nil
}
