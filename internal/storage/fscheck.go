package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

var networkFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// checkLocalFilesystem refuses history databases on network mounts, where
// SQLite locking is unreliable and two CI jobs could both record a run.
func checkLocalFilesystem(path string) error {
	return checkLocalFilesystemWith(path, detectFilesystemType)
}

func checkLocalFilesystemWith(path string, detect func(string) (string, error)) error {
	if path == "" {
		return errors.New("history database path is empty")
	}

	at, err := nearestExistingPath(path)
	if err != nil {
		return errors.Wrapf(err, "resolve history database path %q", path)
	}

	fsType, err := detect(at)
	if err != nil {
		return errors.Wrapf(err, "detect filesystem for %q", at)
	}
	if isNetworkFilesystem(fsType) {
		return errors.WithHint(
			errors.Newf("history database %q is on network filesystem %q", path, fsType),
			"SQLite requires a local filesystem; point state.path at local disk")
	}
	return nil
}

func nearestExistingPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(err, "absolute path")
	}
	for candidate := abs; ; {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", errors.Wrapf(err, "stat %q", candidate)
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", errors.Newf("no existing parent for %q", abs)
		}
		candidate = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	_, found := networkFilesystems[strings.TrimSpace(strings.ToLower(fsType))]
	return found
}
