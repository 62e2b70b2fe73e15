package sessions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dohr-michael/parrot/internal/storage/dirstore"
)

// ErrSessionNotFound is returned when no session matches an id or key.
var ErrSessionNotFound = errors.New("session not found")

const messagesFile = "messages.jsonl"

// FileStore persists sessions as directories with meta.json + messages.jsonl.
type FileStore struct {
	ds *dirstore.DirStore
}

// NewFileStore creates a FileStore rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{ds: dirstore.New(baseDir, ErrSessionNotFound)}
}

func generateSessionID() string {
	u := uuid.New().String()
	return "sess_" + strings.ReplaceAll(u[:8], "-", "")
}

// Create initialises a new session directory with meta.json for the
// conversation identified by key.
func (fs *FileStore) Create(key string) (*Session, error) {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	now := time.Now()
	s := &Session{
		ID:        generateSessionID(),
		CreatedAt: now,
		UpdatedAt: now,
		Status:    SessionActive,
	}
	if key != "" {
		s.Metadata = map[string]string{MetaKey: key}
	}

	if err := fs.ds.EnsureDir(s.ID); err != nil {
		return nil, err
	}
	if err := fs.ds.WriteMeta(s.ID, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get reads session metadata by ID.
func (fs *FileStore) Get(id string) (*Session, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	return fs.readMeta(id)
}

// FindByKey returns the most recently updated active session opened for key.
func (fs *FileStore) FindByKey(key string) (*Session, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	all, err := fs.list()
	if err != nil {
		return nil, err
	}
	for _, s := range all {
		if s.Status == SessionActive && s.Key() == key {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: key %s", ErrSessionNotFound, key)
}

// List returns all sessions sorted by UpdatedAt descending.
func (fs *FileStore) List() ([]*Session, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	return fs.list()
}

func (fs *FileStore) list() ([]*Session, error) {
	ids, err := fs.ds.IDs()
	if err != nil {
		return nil, err
	}

	var sessions []*Session
	for _, id := range ids {
		s, err := fs.readMeta(id)
		if err != nil {
			continue // skip corrupted sessions
		}
		sessions = append(sessions, s)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// UpdateMeta atomically rewrites a session's meta.json.
func (fs *FileStore) UpdateMeta(s *Session) error {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	return fs.ds.WriteMeta(s.ID, s)
}

// Close marks a session as closed.
func (fs *FileStore) Close(id string) error {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	s, err := fs.readMeta(id)
	if err != nil {
		return err
	}

	s.Status = SessionClosed
	s.UpdatedAt = time.Now()
	return fs.ds.WriteMeta(id, s)
}

// AppendMessage appends a message to the session's JSONL file and updates meta.
func (fs *FileStore) AppendMessage(sessionID string, msg Message) error {
	fs.ds.Lock()
	defer fs.ds.Unlock()

	s, err := fs.readMeta(sessionID)
	if err != nil {
		return err
	}
	if err := fs.ds.AppendJSONL(sessionID, messagesFile, msg); err != nil {
		return err
	}

	s.MessageCount++
	s.UpdatedAt = time.Now()
	return fs.ds.WriteMeta(sessionID, s)
}

// LoadMessages reads all messages from a session's JSONL file.
func (fs *FileStore) LoadMessages(sessionID string) ([]Message, error) {
	fs.ds.RLock()
	defer fs.ds.RUnlock()

	return dirstore.LoadJSONL[Message](fs.ds, sessionID, messagesFile)
}

func (fs *FileStore) readMeta(id string) (*Session, error) {
	var s Session
	if err := fs.ds.ReadMeta(id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
