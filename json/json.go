// Package json persists conversations as JSON files, one file per
// conversation, using a versioned envelope format.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fwojciec/pulse"
)

// envelope is the v1 wire format for a persisted conversation.
type envelope struct {
	Version   int          `json:"version"`
	ID        string       `json:"id"`
	DatasetID string       `json:"dataset_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Messages  []messageDTO `json:"messages"`
}

// MarshalConversation serializes a Conversation to JSON in v1 envelope format.
func MarshalConversation(conv pulse.Conversation) ([]byte, error) {
	env := envelope{
		Version:   1,
		ID:        conv.ID,
		DatasetID: conv.DatasetID,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Messages:  make([]messageDTO, len(conv.Messages)),
	}
	for i, msg := range conv.Messages {
		dto, err := marshalMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		env.Messages[i] = dto
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalConversation deserializes a Conversation from JSON in v1 envelope
// format.
func UnmarshalConversation(data []byte) (pulse.Conversation, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return pulse.Conversation{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != 1 {
		return pulse.Conversation{}, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	msgs := make([]pulse.Message, len(env.Messages))
	for i, dto := range env.Messages {
		msg, err := unmarshalMessage(dto)
		if err != nil {
			return pulse.Conversation{}, fmt.Errorf("message %d: %w", i, err)
		}
		msgs[i] = msg
	}
	return pulse.Conversation{
		ID:        env.ID,
		DatasetID: env.DatasetID,
		CreatedAt: env.CreatedAt,
		UpdatedAt: env.UpdatedAt,
		Messages:  msgs,
	}, nil
}

// Interface compliance check.
var _ pulse.Store = (*Store)(nil)

// Store implements [pulse.Store] on top of a directory of JSON files, one
// per conversation. Writes go through a temp file and rename so a crashed
// save never corrupts an existing conversation.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Save writes the conversation to dir/<id>.json, creating parent
// directories as needed.
func (s *Store) Save(_ context.Context, conv pulse.Conversation) error {
	data, err := MarshalConversation(conv)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	path := s.path(conv.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load reads the conversation with the given id. A missing file maps to
// [pulse.ErrConversationNotFound].
func (s *Store) Load(_ context.Context, id string) (pulse.Conversation, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return pulse.Conversation{}, pulse.ErrConversationNotFound
		}
		return pulse.Conversation{}, fmt.Errorf("read file: %w", err)
	}
	return UnmarshalConversation(data)
}

// List returns the ids of all persisted conversations. A store directory
// that does not exist yet lists as empty.
func (s *Store) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}
