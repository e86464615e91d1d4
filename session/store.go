package session

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/careline/careline/errors"
)

// ErrPersistence reports that a checkpoint could not be durably written or
// read. Turns must not proceed past an ErrPersistence.
var ErrPersistence = stderrors.New("checkpoint persistence failed")

// Store persists conversation state keyed by thread id. Save must overwrite
// the record atomically; Load of an unknown thread returns a fresh empty
// state rather than failing.
type Store interface {
	Save(ctx context.Context, state *State) error
	Load(ctx context.Context, threadID string) (*State, error)
}

// FileStore keeps one JSON checkpoint file per thread under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the checkpoint directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "could not create checkpoint directory %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the state to a temp file and renames it over the checkpoint,
// so a crash mid-write never leaves a torn record behind.
func (fs *FileStore) Save(ctx context.Context, state *State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrapf(ErrPersistence, "failed to serialize thread %s: %v", state.ThreadID, err)
	}

	path := fs.path(state.ThreadID)
	tmp, err := os.CreateTemp(fs.dir, ".checkpoint-*")
	if err != nil {
		return errors.Wrapf(ErrPersistence, "failed to stage checkpoint for thread %s: %v", state.ThreadID, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(ErrPersistence, "failed to write checkpoint for thread %s: %v", state.ThreadID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(ErrPersistence, "failed to close checkpoint for thread %s: %v", state.ThreadID, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(ErrPersistence, "failed to commit checkpoint for thread %s: %v", state.ThreadID, err)
	}
	return nil
}

// Load reads the checkpoint for a thread. Unknown threads start fresh.
func (fs *FileStore) Load(ctx context.Context, threadID string) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fs.path(threadID))
	if os.IsNotExist(err) {
		return NewState(threadID), nil
	}
	if err != nil {
		return nil, errors.Wrapf(ErrPersistence, "could not read checkpoint for thread %s: %v", threadID, err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(ErrPersistence, "could not parse checkpoint for thread %s: %v", threadID, err)
	}
	return &s, nil
}

func (fs *FileStore) path(threadID string) string {
	// Thread ids are caller-supplied; keep them out of path syntax.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, threadID)
	return filepath.Join(fs.dir, safe+".json")
}

// MemoryStore is an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*State)}
}

func (ms *MemoryStore) Save(ctx context.Context, state *State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.records[state.ThreadID] = state.Clone()
	return nil
}

func (ms *MemoryStore) Load(ctx context.Context, threadID string) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if s, ok := ms.records[threadID]; ok {
		return s.Clone(), nil
	}
	return NewState(threadID), nil
}
