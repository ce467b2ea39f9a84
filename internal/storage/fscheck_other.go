//go:build !darwin && !linux

package storage

import "github.com/cockroachdb/errors"

func detectFilesystemType(string) (string, error) {
	return "", errors.New("filesystem detection is unsupported on this platform")
}
