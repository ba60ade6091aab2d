package service

import (
	"context"
	"sort"
	"sync"

	"aiko-go/internal/model"
	"aiko-go/internal/repository"
	"aiko-go/pkg/log"
)

// DefaultMaxTurns 是每个会话默认保留的消息条数（10 轮问答）。
const DefaultMaxTurns = 20

// ConversationService 维护所有会话的有界历史，每次修改后同步写入快照。
type ConversationService interface {
	// Append 追加一条消息，超出上限时从最旧的一端裁剪，返回前完成整库持久化。
	Append(ctx context.Context, key model.ConversationKey, turn model.Turn) error
	// Get 返回会话历史的副本，不存在时返回空切片。
	Get(key model.ConversationKey) []model.Turn
	// Load 在启动时读取快照；读取失败时记录日志并以空状态启动。
	Load(ctx context.Context) error
	// Flush 按需把整库写入快照。
	Flush(ctx context.Context) error
	// Clear 删除某个会话的全部历史并持久化。
	Clear(ctx context.Context, key model.ConversationKey) error
	// Stats 返回每个会话当前的消息条数。
	Stats() []ConversationStat
	// Location 返回快照位置。
	Location() string
}

// ConversationStat 是调试输出中的一行。
type ConversationStat struct {
	Key      model.ConversationKey `json:"key"`
	Messages int                   `json:"messages"`
}

type conversationService struct {
	// mu 在追加与落盘期间一直持有，保证其他 goroutine 看不到未持久化的中间状态
	mu       sync.Mutex
	store    repository.SnapshotStore
	maxTurns int
	history  map[model.ConversationKey][]model.Turn
}

// NewConversationService 创建一个新的 ConversationService，maxTurns<=0 时使用默认值。
func NewConversationService(store repository.SnapshotStore, maxTurns int) ConversationService {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &conversationService{
		store:    store,
		maxTurns: maxTurns,
		history:  make(map[model.ConversationKey][]model.Turn),
	}
}

// trimHistory 保留最后 max 条消息；已经在上限内时原样返回。
func trimHistory(turns []model.Turn, max int) []model.Turn {
	if len(turns) <= max {
		return turns
	}
	kept := make([]model.Turn, max)
	copy(kept, turns[len(turns)-max:])
	return kept
}

func (s *conversationService) Append(ctx context.Context, key model.ConversationKey, turn model.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[key] = trimHistory(append(s.history[key], turn), s.maxTurns)
	return s.flushLocked(ctx)
}

func (s *conversationService) Get(key model.ConversationKey) []model.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.history[key]
	out := make([]model.Turn, len(turns))
	copy(out, turns)
	return out
}

func (s *conversationService) Load(ctx context.Context) error {
	snapshot, err := s.store.ReadAll(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		log.Errorf("加载会话快照失败，以空状态启动: location=%s, err=%v", s.store.Location(), err)
		s.history = make(map[model.ConversationKey][]model.Turn)
		return nil
	}
	s.history = make(map[model.ConversationKey][]model.Turn, len(snapshot))
	for key, turns := range snapshot {
		// 配置的上限可能比写快照时更小
		s.history[key] = trimHistory(turns, s.maxTurns)
	}
	log.Infof("已加载 %d 个会话的历史记录: %s", len(s.history), s.store.Location())
	return nil
}

func (s *conversationService) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *conversationService) Clear(ctx context.Context, key model.ConversationKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.history[key]; !ok {
		return nil
	}
	delete(s.history, key)
	return s.flushLocked(ctx)
}

func (s *conversationService) Stats() []ConversationStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make([]ConversationStat, 0, len(s.history))
	for key, turns := range s.history {
		stats = append(stats, ConversationStat{Key: key, Messages: len(turns)})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Key < stats[j].Key })
	return stats
}

func (s *conversationService) Location() string {
	return s.store.Location()
}

// flushLocked 必须在持有 mu 时调用。
func (s *conversationService) flushLocked(ctx context.Context) error {
	snapshot := make(repository.Snapshot, len(s.history))
	for key, turns := range s.history {
		snapshot[key] = turns
	}
	if err := s.store.WriteAll(ctx, snapshot); err != nil {
		log.Errorf("写入会话快照失败: location=%s, err=%v", s.store.Location(), err)
		return &PersistenceError{Location: s.store.Location(), Err: err}
	}
	return nil
}
