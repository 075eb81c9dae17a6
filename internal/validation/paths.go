package validation

import (
	"os"
	"path/filepath"
)

// PathHandler resolves the on-disk locations unwatched uses, falling back to
// defaults under ~/.unwatched when a path is not configured.
type PathHandler struct {
	validator *FilePathValidator
}

func NewSecurePathHandler() *PathHandler {
	return &PathHandler{validator: NewFilePathValidator()}
}

func NewPermissivePathHandler() *PathHandler {
	return &PathHandler{validator: NewPermissiveFilePathValidator()}
}

func dataPath(elem ...string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{homeDir, ".unwatched"}, elem...)...), nil
}

// DBPath returns a validated database path.
func (ph *PathHandler) DBPath(userPath string) (string, error) {
	if userPath == "" {
		p, err := dataPath("unwatched.db")
		if err != nil {
			return "", err
		}
		userPath = p
	}
	return ph.validator.ValidateFile(userPath)
}

// IndexPath returns a validated search index directory. Bleve creates the
// directory itself.
func (ph *PathHandler) IndexPath(userPath string) (string, error) {
	if userPath == "" {
		p, err := dataPath("index.bleve")
		if err != nil {
			return "", err
		}
		userPath = p
	}
	return ph.validator.ValidateDirectory(userPath, false)
}

// BackupDir returns a validated backup directory, creating it.
func (ph *PathHandler) BackupDir(userPath string) (string, error) {
	if userPath == "" {
		p, err := dataPath("backups")
		if err != nil {
			return "", err
		}
		userPath = p
	}
	return ph.validator.ValidateDirectory(userPath, true)
}

// ImportFile validates a subscription import file path.
func (ph *PathHandler) ImportFile(userPath string) (string, error) {
	return ph.validator.ValidateFile(userPath)
}
