package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aiko-go/internal/model"
	"aiko-go/pkg/log"
)

// ErrNoVoiceChannel 表示调用者当前不在任何语音频道中。
var ErrNoVoiceChannel = errors.New("user is not in a voice channel")

// IdentityRenamer 修改机器人在服务器中的昵称。
type IdentityRenamer interface {
	SetNickname(ctx context.Context, guildID, nick string) error
}

// Platform 是斜杠命令需要的平台操作，由网关实现。
type Platform interface {
	IdentityRenamer
	// CreateThread 在频道下创建子区并返回子区 ID。
	CreateThread(ctx context.Context, channelID, name string, private bool) (string, error)
	SendMessage(ctx context.Context, channelID, text string) error
	// JoinVoice 加入用户所在的语音频道，返回语音通道与频道名称。
	JoinVoice(ctx context.Context, guildID, userID string) (AudioSink, string, error)
}

// CommandReply 是命令执行后返回给调用者的提示。
type CommandReply struct {
	Text      string
	Ephemeral bool
}

func ephemeral(format string, args ...interface{}) CommandReply {
	return CommandReply{Text: fmt.Sprintf(format, args...), Ephemeral: true}
}

// ChatRequest 是 /chat 命令的参数。
type ChatRequest struct {
	Title      string
	Persona    string
	Visibility string
}

// CommandService 把斜杠命令映射为核心操作，前置条件不满足时返回提示而不是错误。
type CommandService struct {
	conversations ConversationService
	personas      PersonaService
	voice         VoiceService
	models        *ModelSelector
	admins        map[string]struct{}
}

// NewCommandService 创建一个新的 CommandService。
func NewCommandService(conversations ConversationService, personas PersonaService, voice VoiceService, models *ModelSelector, adminIDs []string) *CommandService {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &CommandService{
		conversations: conversations,
		personas:      personas,
		voice:         voice,
		models:        models,
		admins:        admins,
	}
}

// IsAdmin 报告用户是否在管理员名单中。
func (s *CommandService) IsAdmin(userID string) bool {
	_, ok := s.admins[userID]
	return ok
}

// PersonaNames 返回可选人格，用于命令选项。
func (s *CommandService) PersonaNames() []string {
	return s.personas.Names()
}

// ModelChoices 返回名称包含 current（不区分大小写）的可选模型。
func (s *CommandService) ModelChoices(current string) []string {
	current = strings.ToLower(current)
	var out []string
	for _, m := range s.models.Allowed() {
		if strings.Contains(strings.ToLower(m), current) {
			out = append(out, m)
		}
	}
	return out
}

// OpenChat 在当前文字频道下创建一个新子区，可选地为它设置人格。
func (s *CommandService) OpenChat(ctx context.Context, p Platform, inv *model.InboundEvent, req ChatRequest) CommandReply {
	if inv.IsDM() || inv.InThread() {
		return ephemeral("This command can only be used in a server text channel.")
	}

	name := strings.TrimSpace(req.Title)
	if name == "" {
		name = "Chat Thread - " + inv.AuthorDisplayName
	}
	private := req.Visibility == "private"

	threadID, err := p.CreateThread(ctx, inv.ChannelID, name, private)
	if err != nil {
		log.Errorf("创建子区失败: channel=%s, err=%v", inv.ChannelID, err)
		return ephemeral("Failed to create thread: %v", err)
	}

	key := ThreadKey(inv.GuildID, threadID)
	var welcome string
	if req.Persona != "" && s.personas.Assign(ctx, key, req.Persona) == nil {
		welcome = fmt.Sprintf("Personality set to **%s** for this chat!", req.Persona)
		if err := p.SetNickname(ctx, inv.GuildID, req.Persona); err != nil {
			welcome = fmt.Sprintf("Personality set to **%s** for this chat! (Could not change bot nickname: %v)", req.Persona, err)
		}
	} else {
		welcome = "💬 **No personality selected** - I'll respond as raw DeepSeek AI. Use `/personality` to add a personality if you want!"
	}
	if err := p.SendMessage(ctx, threadID, welcome); err != nil {
		log.Warnf("发送子区欢迎消息失败: thread=%s, err=%v", threadID, err)
	}

	visibility := "public"
	if private {
		visibility = "private"
	}
	return ephemeral("Thread created: <#%s> (%s)", threadID, visibility)
}

// SelectPersona 为当前会话设置人格，并尽量同步机器人昵称。
func (s *CommandService) SelectPersona(ctx context.Context, renamer IdentityRenamer, inv *model.InboundEvent, name string) CommandReply {
	key := ResolveKey(inv)
	if err := s.personas.Assign(ctx, key, name); err != nil {
		if errors.Is(err, ErrUnknownPersona) {
			return ephemeral("Unknown personality: **%s**. Available: %s", name, strings.Join(s.personas.Names(), ", "))
		}
		return ephemeral("Failed to set personality: %v", err)
	}
	if !inv.IsDM() {
		if err := renamer.SetNickname(ctx, inv.GuildID, name); err != nil {
			log.Warnf("修改机器人昵称失败: guild=%s, err=%v", inv.GuildID, err)
			return ephemeral("Personality set to: **%s** (Could not change bot nickname: %v)", name, err)
		}
	}
	return ephemeral("Personality set to: **%s**", name)
}

// StartCall 加入调用者所在的语音频道，之后该子区的回复会被朗读。
func (s *CommandService) StartCall(ctx context.Context, p Platform, inv *model.InboundEvent) CommandReply {
	if !inv.InThread() {
		return ephemeral("You can only use /call inside a thread.")
	}
	key := ResolveKey(inv)
	if s.voice.HasSink(key) {
		return ephemeral("I'm already in a voice channel for this thread.")
	}

	sink, channelName, err := p.JoinVoice(ctx, inv.GuildID, inv.AuthorID)
	if errors.Is(err, ErrNoVoiceChannel) {
		return ephemeral("You must be in a voice channel to start a call.")
	}
	if err != nil {
		log.Errorf("加入语音频道失败: key=%s, err=%v", key, err)
		return ephemeral("Failed to join voice channel: %v", err)
	}
	if err := s.voice.Start(key, sink); err != nil {
		_ = sink.Disconnect()
		return ephemeral("I'm already in a voice channel for this thread.")
	}
	return ephemeral("Joined voice channel: %s. I will speak my replies here!", channelName)
}

// StopCall 断开当前子区的语音通道。
func (s *CommandService) StopCall(_ context.Context, inv *model.InboundEvent) CommandReply {
	if !inv.InThread() {
		return ephemeral("You can only use /leave inside a thread.")
	}
	if err := s.voice.Stop(ResolveKey(inv)); err != nil {
		if errors.Is(err, ErrNotActive) {
			return ephemeral("I'm not in a voice channel for this thread.")
		}
		return ephemeral("Failed to leave voice channel: %v", err)
	}
	return ephemeral("Left the voice channel for this thread.")
}

// Clear 同时清除子区的历史、人格与语音通道。返回 true 时调用方应随后删除子区。
func (s *CommandService) Clear(ctx context.Context, inv *model.InboundEvent, threadName string) (CommandReply, bool) {
	if !inv.InThread() {
		return ephemeral("You can only use /clear inside a thread."), false
	}
	key := ResolveKey(inv)
	if err := s.voice.Stop(key); err != nil && !errors.Is(err, ErrNotActive) {
		log.Warnf("断开语音通道失败: key=%s, err=%v", key, err)
	}
	if err := ClearConversation(ctx, s.conversations, s.personas, key); err != nil {
		log.Errorf("清除会话失败: key=%s, err=%v", key, err)
		return ephemeral("Failed to clear conversation: %v", err), false
	}
	return ephemeral("Deleting this thread: %s", threadName), true
}

// ClearConversation 同时清除会话历史与人格分配。两者都会执行，任一持久化失败都会返回。
func ClearConversation(ctx context.Context, conversations ConversationService, personas PersonaService, key model.ConversationKey) error {
	return errors.Join(
		personas.Unassign(ctx, key),
		conversations.Clear(ctx, key),
	)
}

// SwitchModel 切换全局使用的模型，仅管理员可用。
func (s *CommandService) SwitchModel(inv *model.InboundEvent, modelID string) CommandReply {
	if !s.IsAdmin(inv.AuthorID) {
		return ephemeral("Only admins can switch models.")
	}
	if err := s.models.Set(modelID); err != nil {
		return ephemeral("Unknown model: **%s**. Available: %s", modelID, strings.Join(s.models.Allowed(), ", "))
	}
	log.Infof("模型已切换: %s (by %s)", modelID, inv.AuthorID)
	return CommandReply{Text: fmt.Sprintf("Switched to: **%s**", modelID)}
}

// Debug 列出每个会话的消息条数以及快照位置，仅管理员可用。
func (s *CommandService) Debug(inv *model.InboundEvent) CommandReply {
	if !s.IsAdmin(inv.AuthorID) {
		return ephemeral("Admin only!")
	}
	stats := s.conversations.Stats()
	if len(stats) == 0 {
		return CommandReply{Text: "No conversations stored yet."}
	}
	lines := make([]string, 0, len(stats)+1)
	for _, st := range stats {
		lines = append(lines, fmt.Sprintf("**%s**: %d messages", st.Key, st.Messages))
	}
	lines = append(lines, fmt.Sprintf("\nFull conversations saved in: `%s`", s.conversations.Location()))
	// 平台单条消息有长度限制，只保留第一段
	return CommandReply{Text: SplitReply(strings.Join(lines, "\n"), DefaultChunkSize)[0]}
}
