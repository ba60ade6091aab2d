// Package repository 提供了数据访问层的实现。
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"aiko-go/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/minio/minio-go/v7"
)

// Snapshot 是所有会话历史的整体映射。
type Snapshot map[model.ConversationKey][]model.Turn

// SnapshotStore 定义了会话快照的整体读写操作。
// WriteAll 必须整体覆盖之前的快照，不能追加。
type SnapshotStore interface {
	ReadAll(ctx context.Context) (Snapshot, error)
	WriteAll(ctx context.Context, snapshot Snapshot) error
	// Location 返回人类可读的快照位置，用于调试输出。
	Location() string
}

// encodeSnapshot 以带缩进、不转义 HTML 的 JSON 序列化快照，保证文件可读。
func encodeSnapshot(snapshot Snapshot) ([]byte, error) {
	if snapshot == nil {
		snapshot = Snapshot{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (Snapshot, error) {
	snapshot := Snapshot{}
	if len(bytes.TrimSpace(data)) == 0 {
		return snapshot, nil
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snapshot, nil
}

type fileSnapshotStore struct {
	path string
}

// NewFileSnapshotStore 创建一个基于本地 JSON 文件的 SnapshotStore。
func NewFileSnapshotStore(path string) SnapshotStore {
	return &fileSnapshotStore{path: path}
}

// ReadAll 读取快照文件，文件不存在时返回空快照。
func (s *fileSnapshotStore) ReadAll(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	return decodeSnapshot(data)
}

// WriteAll 先写临时文件再重命名，避免写到一半的快照覆盖旧文件。
func (s *fileSnapshotStore) WriteAll(_ context.Context, snapshot Snapshot) error {
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

func (s *fileSnapshotStore) Location() string {
	return s.path
}

type redisSnapshotStore struct {
	redisClient *redis.Client
	key         string
}

// NewRedisSnapshotStore 创建一个把整个快照保存在单个 Redis 键中的 SnapshotStore。
func NewRedisSnapshotStore(redisClient *redis.Client, key string) SnapshotStore {
	return &redisSnapshotStore{redisClient: redisClient, key: key}
}

// ReadAll 从 Redis 获取快照，键不存在时返回空快照。
func (r *redisSnapshotStore) ReadAll(ctx context.Context) (Snapshot, error) {
	jsonData, err := r.redisClient.Get(ctx, r.key).Result()
	if err == redis.Nil {
		return Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return decodeSnapshot([]byte(jsonData))
}

// WriteAll 覆盖 Redis 中的快照，不设置过期时间。
func (r *redisSnapshotStore) WriteAll(ctx context.Context, snapshot Snapshot) error {
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	if err := r.redisClient.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot: %w", err)
	}
	return nil
}

func (r *redisSnapshotStore) Location() string {
	return "redis://" + r.key
}

type minioSnapshotStore struct {
	client    *minio.Client
	bucket    string
	objectKey string
}

// NewMinIOSnapshotStore 创建一个把快照保存为 MinIO 单个对象的 SnapshotStore。
func NewMinIOSnapshotStore(client *minio.Client, bucket, objectKey string) SnapshotStore {
	return &minioSnapshotStore{client: client, bucket: bucket, objectKey: objectKey}
}

// ReadAll 下载快照对象，对象不存在时返回空快照。
func (m *minioSnapshotStore) ReadAll(ctx context.Context) (Snapshot, error) {
	object, err := m.client.GetObject(ctx, m.bucket, m.objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot object: %w", err)
	}
	defer object.Close()

	// GetObject 是惰性的，Stat 才会真正发出请求
	if _, err := object.Stat(); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return Snapshot{}, nil
		}
		return nil, fmt.Errorf("failed to stat snapshot object: %w", err)
	}
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(object); err != nil {
		return nil, fmt.Errorf("failed to read snapshot object: %w", err)
	}
	return decodeSnapshot(buf.Bytes())
}

// WriteAll 以 PutObject 整体覆盖快照对象。
func (m *minioSnapshotStore) WriteAll(ctx context.Context, snapshot Snapshot) error {
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	_, err = m.client.PutObject(ctx, m.bucket, m.objectKey, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to put snapshot object: %w", err)
	}
	return nil
}

func (m *minioSnapshotStore) Location() string {
	return fmt.Sprintf("minio://%s/%s", m.bucket, m.objectKey)
}
