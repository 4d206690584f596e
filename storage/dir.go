package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// DirProvider saves completed payloads as new files inside a base directory.
// The directory is created on first save.
type DirProvider struct {
	baseDir string
}

// NewDirProvider creates a provider rooted at baseDir.
func NewDirProvider(baseDir string) *DirProvider {
	return &DirProvider{baseDir: baseDir}
}

// Save writes data to a new file named name inside the base directory and
// returns its path. Names that would escape the directory are rejected, and
// existing files are never overwritten.
func (p *DirProvider) Save(name string, data []byte) (string, error) {
	logrus.WithFields(logrus.Fields{
		"function": "Save",
		"base_dir": p.baseDir,
		"name":     name,
		"size":     len(data),
	}).Info("Saving received file")

	cleaned, err := ValidateName(name)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Save",
			"name":     name,
			"error":    err.Error(),
		}).Error("File name validation failed")
		return "", err
	}

	if err := os.MkdirAll(p.baseDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}

	path := filepath.Join(p.baseDir, cleaned)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("%w: %s", ErrFileExists, path)
		}
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Save",
		"path":     path,
		"size":     len(data),
	}).Info("Received file saved")

	return path, nil
}
