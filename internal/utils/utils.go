package utils

import (
	"path/filepath"
)

// AbsPath will return the absolute path for the given path
// if its not already abs. given root must be an absolute path
func AbsPath(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
