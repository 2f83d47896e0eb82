package web

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mhollis/leadpipe/internal/detect"
	"github.com/mhollis/leadpipe/internal/table"
)

// fileRetention is how long a parsed file stays available for an import
// to be started against it.
const fileRetention = 15 * time.Minute

// uploadedFile is a parsed lead list waiting for an import run.
type uploadedFile struct {
	ID        string
	Name      string
	Table     *table.Table
	Detection detect.Result
	CreatedAt time.Time
}

// fileStore holds parsed files between the upload request and the
// import request. Entries expire on their own so abandoned uploads do
// not pin memory.
type fileStore struct {
	mu        sync.RWMutex
	files     map[string]*uploadedFile
	retention time.Duration
}

func newFileStore(retention time.Duration) *fileStore {
	return &fileStore{
		files:     make(map[string]*uploadedFile),
		retention: retention,
	}
}

// Put stores a parsed file and returns its ID.
func (fs *fileStore) Put(name string, t *table.Table, detection detect.Result) *uploadedFile {
	f := &uploadedFile{
		ID:        uuid.New().String(),
		Name:      name,
		Table:     t,
		Detection: detection,
		CreatedAt: time.Now(),
	}

	fs.mu.Lock()
	fs.files[f.ID] = f
	fs.mu.Unlock()

	time.AfterFunc(fs.retention, func() {
		fs.mu.Lock()
		delete(fs.files, f.ID)
		fs.mu.Unlock()
	})

	return f
}

// Get returns a stored file by ID.
func (fs *fileStore) Get(id string) (*uploadedFile, error) {
	fs.mu.RLock()
	f, ok := fs.files[id]
	fs.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("file not found: %s", id)
	}
	return f, nil
}
