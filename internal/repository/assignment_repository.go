package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"aiko-go/internal/model"

	bolt "go.etcd.io/bbolt"
)

var assignmentBucket = []byte("persona_assignments")

// AssignmentStore 定义了会话人格分配的持久化操作。
type AssignmentStore interface {
	LoadAll(ctx context.Context) (map[model.ConversationKey]string, error)
	Save(ctx context.Context, key model.ConversationKey, persona string) error
	Delete(ctx context.Context, key model.ConversationKey) error
	Close() error
}

type boltAssignmentStore struct {
	db *bolt.DB
}

// NewBoltAssignmentStore 打开（或创建）一个 BoltDB 文件保存人格分配。
func NewBoltAssignmentStore(path string) (AssignmentStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create assignment dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open assignment db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(assignmentBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create assignment bucket: %w", err)
	}
	return &boltAssignmentStore{db: db}, nil
}

// LoadAll 读取全部分配。
func (s *boltAssignmentStore) LoadAll(_ context.Context) (map[model.ConversationKey]string, error) {
	out := make(map[model.ConversationKey]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(assignmentBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			out[model.ConversationKey(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}
	return out, nil
}

func (s *boltAssignmentStore) Save(_ context.Context, key model.ConversationKey, persona string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(assignmentBucket).Put([]byte(key), []byte(persona))
	})
}

func (s *boltAssignmentStore) Delete(_ context.Context, key model.ConversationKey) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(assignmentBucket).Delete([]byte(key))
	})
}

func (s *boltAssignmentStore) Close() error {
	return s.db.Close()
}

// memoryAssignmentStore 只保存在进程内存中，重启即丢失。
type memoryAssignmentStore struct {
	mu   sync.Mutex
	data map[model.ConversationKey]string
}

// NewMemoryAssignmentStore 创建一个不落盘的 AssignmentStore。
func NewMemoryAssignmentStore() AssignmentStore {
	return &memoryAssignmentStore{data: make(map[model.ConversationKey]string)}
}

func (s *memoryAssignmentStore) LoadAll(_ context.Context) (map[model.ConversationKey]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.ConversationKey]string, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, nil
}

func (s *memoryAssignmentStore) Save(_ context.Context, key model.ConversationKey, persona string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = persona
	return nil
}

func (s *memoryAssignmentStore) Delete(_ context.Context, key model.ConversationKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memoryAssignmentStore) Close() error { return nil }
