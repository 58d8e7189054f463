package archive

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// TempProvider hands out the file a new container is built in.
type TempProvider interface {
	// Create returns a new, empty file opened for reading and writing.
	// The caller owns the file and removes it when done.
	Create() (*os.File, error)
}

// SystemTemp creates uniquely named files in Dir, or in os.TempDir() when Dir
// is empty. Files are created exclusively with mode 0600, so two invocations
// never share a temp file.
type SystemTemp struct {
	Dir string
}

// Create implements TempProvider.
func (t SystemTemp) Create() (*os.File, error) {
	dir := t.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	name := filepath.Join(dir, uuid.NewString()+".sb3")
	return os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
}

// Ensure SystemTemp implements TempProvider.
var _ TempProvider = SystemTemp{}
