// Package storage provides the completion hand-off for received files: a
// write-bytes-to-new-file capability supplied to the receiver by its host
// application.
package storage

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrDirectoryTraversal indicates a file name that would escape the storage
// directory.
var ErrDirectoryTraversal = errors.New("name contains directory traversal")

// ErrFileExists indicates the target file already exists; providers never
// overwrite.
var ErrFileExists = errors.New("file already exists")

// MaxFileNameLength is the maximum accepted file name length in bytes,
// matching typical filesystem limits.
const MaxFileNameLength = 255

// ErrFileNameTooLong indicates a file name exceeds MaxFileNameLength.
var ErrFileNameTooLong = errors.New("file name too long")

// Provider persists a completed payload under a suggested name. Save returns
// the final path of the new file. Implementations must not overwrite
// existing files; callers do not retry failed saves.
type Provider interface {
	Save(name string, data []byte) (path string, err error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(name string, data []byte) (string, error)

// Save implements Provider for ProviderFunc.
func (f ProviderFunc) Save(name string, data []byte) (string, error) {
	return f(name, data)
}

// ValidateName checks a suggested file name for directory traversal and
// length. It returns the cleaned name or an error.
func ValidateName(name string) (string, error) {
	if len(name) > MaxFileNameLength {
		return "", ErrFileNameTooLong
	}

	cleaned := filepath.Clean(name)
	if strings.Contains(cleaned, "..") {
		return "", ErrDirectoryTraversal
	}
	if filepath.IsAbs(cleaned) || strings.ContainsRune(cleaned, filepath.Separator) {
		return "", ErrDirectoryTraversal
	}

	return cleaned, nil
}
