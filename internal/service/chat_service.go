package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"aiko-go/internal/model"
	"aiko-go/pkg/llm"
	"aiko-go/pkg/log"

	"github.com/google/uuid"
)

const observerTimeout = 5 * time.Second

// Replier 把文本发回触发事件所在的位置。
type Replier interface {
	// Reply 以回复的形式发送一条消息，text 已保证不超过平台长度限制。
	Reply(ctx context.Context, ev *model.InboundEvent, text string) error
	// Typing 显示“正在输入”，失败时静默忽略。
	Typing(ctx context.Context, ev *model.InboundEvent)
}

// ExchangeObserver 在一次问答完成后收到通知，失败不影响回复。
type ExchangeObserver interface {
	OnExchange(ctx context.Context, exchange *model.Exchange) error
}

// ChatService 定义了入站消息的处理流程。
type ChatService interface {
	// HandleInboundMessage 处理一条消息：记录用户消息、调用 LLM、记录并发送回复，必要时朗读。
	HandleInboundMessage(ctx context.Context, ev *model.InboundEvent, replier Replier) error
}

type chatService struct {
	conversations ConversationService
	personas      PersonaService
	voice         VoiceService
	llmClient     llm.Client
	models        *ModelSelector
	chunkSize     int
	observers     []ExchangeObserver
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	conversations ConversationService,
	personas PersonaService,
	voice VoiceService,
	llmClient llm.Client,
	models *ModelSelector,
	chunkSize int,
	observers ...ExchangeObserver,
) ChatService {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &chatService{
		conversations: conversations,
		personas:      personas,
		voice:         voice,
		llmClient:     llmClient,
		models:        models,
		chunkSize:     chunkSize,
		observers:     observers,
	}
}

// StripBotMention 去掉消息中对机器人自身的提及。
func StripBotMention(content, botID string) string {
	if botID == "" {
		return strings.TrimSpace(content)
	}
	mentions := strings.NewReplacer("<@"+botID+">", "", "<@!"+botID+">", "")
	return strings.TrimSpace(mentions.Replace(content))
}

// shouldHandle 只处理子区和私信中非机器人发出的非空消息。
func shouldHandle(ev *model.InboundEvent) bool {
	if ev == nil || ev.FromBot {
		return false
	}
	if !ev.IsDM() && !ev.InThread() {
		return false
	}
	return strings.TrimSpace(ev.Content) != ""
}

func (s *chatService) HandleInboundMessage(ctx context.Context, ev *model.InboundEvent, replier Replier) error {
	if !shouldHandle(ev) {
		return nil
	}
	question := strings.TrimSpace(ev.Content)
	key := ResolveKey(ev)

	// 1. 先记录用户消息
	if err := s.conversations.Append(ctx, key, model.Turn{Role: model.RoleUser, Content: question}); err != nil {
		s.replyError(ctx, ev, replier, err)
		return err
	}

	// 2. 组装历史与人格提示
	persona, hasPersona := s.personas.Resolve(key)
	messages := s.composeMessages(s.conversations.Get(key), persona, hasPersona, ev.AuthorDisplayName)

	// 3. 调用 LLM
	replier.Typing(ctx, ev)
	modelID := s.models.Current()
	start := time.Now()
	answer, err := s.llmClient.Complete(ctx, modelID, messages)
	if err != nil {
		log.Errorf("调用 LLM 失败: key=%s, model=%s, err=%v", key, modelID, err)
		s.replyError(ctx, ev, replier, err)
		return &BackendError{Backend: "llm", Err: err}
	}
	latency := time.Since(start)

	// 4. 记录回复；持久化失败时仍然把已生成的回复发出去
	persistErr := s.conversations.Append(ctx, key, model.Turn{Role: model.RoleAssistant, Content: answer})
	if persistErr != nil {
		log.Errorf("保存助手回复失败: key=%s, err=%v", key, persistErr)
	}

	// 5. 分片发送
	for i, chunk := range SplitReply(answer, s.chunkSize) {
		if err := replier.Reply(ctx, ev, chunk); err != nil {
			log.Errorf("发送回复失败: key=%s, chunk=%d, err=%v", key, i, err)
			return errors.Join(err, persistErr)
		}
	}

	// 6. 有语音通道时异步朗读，不阻塞文字回复
	if s.voice != nil && s.voice.HasSink(key) {
		s.voice.Enqueue(key, answer)
	}

	s.notify(ctx, &model.Exchange{
		ExchangeID:      uuid.NewString(),
		ConversationKey: string(key),
		AuthorID:        ev.AuthorID,
		Persona:         persona.Name,
		Model:           modelID,
		Question:        question,
		Answer:          answer,
		LatencyMillis:   latency.Milliseconds(),
		CreatedAt:       time.Now(),
	})
	return persistErr
}

// composeMessages 人格提示放在历史之后，离最新消息最近。
func (s *chatService) composeMessages(history []model.Turn, persona model.Persona, hasPersona bool, displayName string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, t := range history {
		msgs = append(msgs, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	if hasPersona && persona.SystemPromptTemplate != "" {
		msgs = append(msgs, llm.Message{Role: string(model.RoleSystem), Content: persona.Render(displayName)})
	}
	return msgs
}

func (s *chatService) replyError(ctx context.Context, ev *model.InboundEvent, replier Replier, err error) {
	if rerr := replier.Reply(ctx, ev, "Error: "+err.Error()); rerr != nil {
		log.Errorf("发送错误提示失败: %v", rerr)
	}
}

func (s *chatService) notify(ctx context.Context, exchange *model.Exchange) {
	if len(s.observers) == 0 {
		return
	}
	// 使用独立的上下文，即使原始请求被取消也完成归档
	octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), observerTimeout)
	defer cancel()
	for _, o := range s.observers {
		if err := o.OnExchange(octx, exchange); err != nil {
			log.Warnf("问答通知失败: exchange=%s, err=%v", exchange.ExchangeID, err)
		}
	}
}
