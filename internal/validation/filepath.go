package validation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyPath      = errors.New("path cannot be empty")
	ErrUnsafePath     = errors.New("unsafe path")
	ErrPathNotAllowed = errors.New("path not within allowed directories")
)

// FilePathValidator validates database, index, backup and import paths.
type FilePathValidator struct {
	// AllowedBaseDirs restricts paths to these directories. Empty allows all.
	AllowedBaseDirs []string
	MaxPathLength   int
}

// NewFilePathValidator restricts paths to the unwatched data and config
// directories plus the system temp dir.
func NewFilePathValidator() *FilePathValidator {
	homeDir, _ := os.UserHomeDir()
	return &FilePathValidator{
		AllowedBaseDirs: []string{
			filepath.Join(homeDir, ".unwatched"),
			filepath.Join(homeDir, ".config", "unwatched"),
			os.TempDir(),
		},
		MaxPathLength: 4096,
	}
}

// NewPermissiveFilePathValidator accepts any safe path.
func NewPermissiveFilePathValidator() *FilePathValidator {
	return &FilePathValidator{MaxPathLength: 4096}
}

// ValidateAndSanitize expands ~/, makes the path absolute and cleans it.
func (v *FilePathValidator) ValidateAndSanitize(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	if len(path) > v.MaxPathLength {
		return "", fmt.Errorf("%w: too long (max %d characters)", ErrUnsafePath, v.MaxPathLength)
	}
	for _, char := range path {
		if char == 0 || (char < 32 && char != '\t') {
			return "", fmt.Errorf("%w: contains control characters", ErrUnsafePath)
		}
	}
	for _, component := range strings.Split(filepath.ToSlash(path), "/") {
		if component == ".." {
			return "", fmt.Errorf("%w: directory traversal not allowed", ErrUnsafePath)
		}
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	} else if strings.HasPrefix(path, "~") {
		return "", fmt.Errorf("%w: invalid tilde usage", ErrUnsafePath)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot make path absolute: %w", err)
	}
	absPath = filepath.Clean(absPath)

	if err := v.validateBaseDirs(absPath); err != nil {
		return "", err
	}
	return absPath, nil
}

func (v *FilePathValidator) validateBaseDirs(absPath string) error {
	if len(v.AllowedBaseDirs) == 0 {
		return nil
	}
	for _, baseDir := range v.AllowedBaseDirs {
		absBaseDir, err := filepath.Abs(baseDir)
		if err != nil {
			continue
		}
		relPath, err := filepath.Rel(absBaseDir, absPath)
		if err != nil {
			continue
		}
		if relPath != ".." && !strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrPathNotAllowed, absPath)
}

// ValidateDirectory validates a directory path, creating it when asked.
func (v *FilePathValidator) ValidateDirectory(path string, create bool) (string, error) {
	validatedPath, err := v.ValidateAndSanitize(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(validatedPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if create {
			if err := os.MkdirAll(validatedPath, 0o755); err != nil {
				return "", fmt.Errorf("failed to create directory: %w", err)
			}
		}
	case err != nil:
		return "", fmt.Errorf("checking directory: %w", err)
	case !info.IsDir():
		return "", fmt.Errorf("path exists but is not a directory: %s", validatedPath)
	}
	return validatedPath, nil
}

// ValidateFile validates a file path. An existing directory is rejected.
func (v *FilePathValidator) ValidateFile(path string) (string, error) {
	validatedPath, err := v.ValidateAndSanitize(path)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(validatedPath); err == nil && info.IsDir() {
		return "", fmt.Errorf("path is a directory, not a file: %s", validatedPath)
	}
	return validatedPath, nil
}
