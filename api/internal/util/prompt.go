package util

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ReadPromptFile loads <dir>/<name>.tmpl. Missing files and an empty dir report ok=false.
func ReadPromptFile(dir, name string) (string, bool, error) {
	if strings.TrimSpace(dir) == "" {
		return "", false, nil
	}
	b, err := os.ReadFile(filepath.Join(dir, name+".tmpl"))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return "", false, nil
	}
	return string(b), true, nil
}
