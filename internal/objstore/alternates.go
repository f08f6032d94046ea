package objstore

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrCorrupt is returned when an object's bytes do not hash to the id
// under which they were stored.
var ErrCorrupt = errors.New("corrupt object")

// readAlternatesManifest reads objdir/info/alternates: one directory
// path per line, blank lines and "#"-prefixed lines ignored. Relative
// paths are resolved against objdir, mirroring how loose and pack
// paths are resolved against it.
func readAlternatesManifest(objdir string) ([]string, error) {
	f, err := os.Open(filepath.Join(objdir, "info", "alternates"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var paths []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(objdir, line)
		}
		paths = append(paths, filepath.Clean(line))
	}
	return paths, s.Err()
}

// fingerprintFor identifies an object directory for alternate-cycle
// detection: the cleaned absolute path.
func fingerprintFor(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Clean(dir)
	}
	return abs
}
