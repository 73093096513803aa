package conversation

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Resources owns the audio handles of recorded utterances, keyed by message
// id. It replaces any ambient registry: a handle put here is released exactly
// once, on message removal or conversation teardown.
type Resources struct {
	mu      sync.Mutex
	handles map[string]io.Closer
}

func NewResources() *Resources {
	return &Resources{
		handles: make(map[string]io.Closer),
	}
}

// Put registers a handle under a message id. A handle already present under
// that id is released first.
func (r *Resources) Put(messageID string, handle io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.handles[messageID]; ok {
		_ = old.Close()
	}
	r.handles[messageID] = handle
}

// Release closes and forgets the handle for a message id. Unknown ids are a
// no-op.
func (r *Resources) Release(messageID string) error {
	r.mu.Lock()
	handle, ok := r.handles[messageID]
	delete(r.handles, messageID)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	if err := handle.Close(); err != nil {
		return fmt.Errorf("releasing audio for message %s: %w", messageID, err)
	}
	return nil
}

// ReleaseAll closes every held handle, aggregating failures.
func (r *Resources) ReleaseAll() error {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]io.Closer)
	r.mu.Unlock()

	var err error
	for id, handle := range handles {
		if closeErr := handle.Close(); closeErr != nil {
			err = multierror.Append(err, fmt.Errorf("releasing audio for message %s: %w", id, closeErr))
		}
	}
	return err
}

// Path returns the backing file of a message's audio when the handle is
// file-backed, as needed for playback.
func (r *Resources) Path(messageID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fh, ok := r.handles[messageID].(*fileHandle)
	if !ok {
		return "", false
	}
	return fh.path, true
}

// Len reports how many handles are currently held.
func (r *Resources) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// fileHandle is a temp-file-backed audio blob; Close deletes the file.
type fileHandle struct {
	path string
}

func NewFileHandle(path string) io.Closer {
	return &fileHandle{path: path}
}

func (h *fileHandle) Close() error {
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
