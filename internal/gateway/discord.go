// Package gateway 把 Discord 事件接入核心服务，并实现回复、子区与语音等平台操作。
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aiko-go/internal/config"
	"aiko-go/internal/model"
	"aiko-go/internal/service"
	"aiko-go/pkg/log"

	"github.com/bwmarrin/discordgo"
)

const (
	threadAutoArchiveMinutes = 60
	commandTimeout           = 30 * time.Second
)

// Gateway 持有 discordgo 会话，负责事件翻译与命令路由。
type Gateway struct {
	session    *discordgo.Session
	cfg        config.DiscordConfig
	ffmpegPath string

	chat       service.ChatService
	commands   *service.CommandService
	dispatcher *service.Dispatcher
}

// New 创建网关，但不建立连接。
func New(cfg config.DiscordConfig, voiceCfg config.VoiceConfig, chat service.ChatService, commands *service.CommandService, dispatcher *service.Dispatcher) (*Gateway, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord token is required")
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentDirectMessages |
		discordgo.IntentGuildVoiceStates |
		discordgo.IntentMessageContent
	// 事件按接收顺序同步交给处理函数，由 Dispatcher 负责按会话并发
	s.SyncEvents = true

	g := &Gateway{
		session:    s,
		cfg:        cfg,
		ffmpegPath: voiceCfg.FFmpegPath,
		chat:       chat,
		commands:   commands,
		dispatcher: dispatcher,
	}
	s.AddHandler(g.onReady)
	s.AddHandler(g.onMessageCreate)
	s.AddHandler(g.onInteractionCreate)
	return g, nil
}

// Run 建立连接并阻塞到 ctx 取消。
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	log.Info("Discord 网关已连接")

	<-ctx.Done()
	log.Info("正在关闭 Discord 网关，等待进行中的问答完成...")
	// 先停止接收并排空队列，进行中的回复仍需要会话连接
	g.dispatcher.Close()
	return g.session.Close()
}

func (g *Gateway) onReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Infof("Bot ready! 登录为 %s, 所在服务器 %d 个", r.User.Username, len(r.Guilds))
	g.syncCommands(s, r.User.ID)
}

// syncCommands 先按服务器同步（立即生效），再做一次全局同步。
func (g *Gateway) syncCommands(s *discordgo.Session, appID string) {
	cmds := buildCommands(g.commands.PersonaNames())
	for _, guildID := range g.cfg.GuildIDs {
		if _, err := s.ApplicationCommandBulkOverwrite(appID, guildID, cmds); err != nil {
			log.Errorf("[SYNC] 同步命令到服务器 %s 失败: %v", guildID, err)
			continue
		}
		log.Infof("[SYNC] 已同步命令到服务器 %s", guildID)
	}
	if _, err := s.ApplicationCommandBulkOverwrite(appID, "", cmds); err != nil {
		log.Errorf("[SYNC] 全局命令同步失败: %v", err)
		return
	}
	log.Info("[SYNC] 全局命令同步完成")
}

func (g *Gateway) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	botID := ""
	if s.State != nil && s.State.User != nil {
		botID = s.State.User.ID
	}
	ev := messageEvent(m.Message, g.isThread(m.ChannelID), botID)
	key := service.ResolveKey(ev)

	err := g.dispatcher.Submit(key, func(ctx context.Context) {
		if err := g.chat.HandleInboundMessage(ctx, ev, g); err != nil {
			log.Warnf("处理消息失败: key=%s, message=%s, err=%v", key, ev.MessageID, err)
		}
	})
	if err != nil {
		log.Warnf("丢弃消息: key=%s, err=%v", key, err)
	}
}

// isThread 优先查本地缓存，缓存未命中时请求接口。
func (g *Gateway) isThread(channelID string) bool {
	ch, err := g.session.State.Channel(channelID)
	if err != nil {
		ch, err = g.session.Channel(channelID)
		if err != nil {
			log.Warnf("查询频道失败: channel=%s, err=%v", channelID, err)
			return false
		}
	}
	return ch.IsThread()
}

func (g *Gateway) channelName(channelID string) string {
	if ch, err := g.session.State.Channel(channelID); err == nil {
		return ch.Name
	}
	if ch, err := g.session.Channel(channelID); err == nil {
		return ch.Name
	}
	return channelID
}

// Reply 实现 service.Replier。
func (g *Gateway) Reply(_ context.Context, ev *model.InboundEvent, text string) error {
	ref := &discordgo.MessageReference{MessageID: ev.MessageID, ChannelID: ev.ChannelID, GuildID: ev.GuildID}
	_, err := g.session.ChannelMessageSendReply(ev.ChannelID, text, ref)
	return err
}

// Typing 实现 service.Replier。
func (g *Gateway) Typing(_ context.Context, ev *model.InboundEvent) {
	if err := g.session.ChannelTyping(ev.ChannelID); err != nil {
		log.Debugf("发送输入状态失败: channel=%s, err=%v", ev.ChannelID, err)
	}
}

// SetNickname 实现 service.IdentityRenamer。
func (g *Gateway) SetNickname(_ context.Context, guildID, nick string) error {
	return g.session.GuildMemberNickname(guildID, "@me", nick)
}

// CreateThread 实现 service.Platform。
func (g *Gateway) CreateThread(_ context.Context, channelID, name string, private bool) (string, error) {
	threadType := discordgo.ChannelTypeGuildPublicThread
	if private {
		threadType = discordgo.ChannelTypeGuildPrivateThread
	}
	th, err := g.session.ThreadStartComplex(channelID, &discordgo.ThreadStart{
		Name:                name,
		AutoArchiveDuration: threadAutoArchiveMinutes,
		Type:                threadType,
		Invitable:           false,
	})
	if err != nil {
		return "", err
	}
	return th.ID, nil
}

// SendMessage 实现 service.Platform。
func (g *Gateway) SendMessage(_ context.Context, channelID, text string) error {
	_, err := g.session.ChannelMessageSend(channelID, text)
	return err
}

// JoinVoice 实现 service.Platform。
func (g *Gateway) JoinVoice(_ context.Context, guildID, userID string) (service.AudioSink, string, error) {
	vs, err := g.session.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return nil, "", service.ErrNoVoiceChannel
	}
	vc, err := g.session.ChannelVoiceJoin(guildID, vs.ChannelID, false, true)
	if err != nil {
		return nil, "", err
	}
	return newVoiceSink(vc, g.ffmpegPath), g.channelName(vs.ChannelID), nil
}

func (g *Gateway) deleteThread(threadID, reason string) error {
	_, err := g.session.ChannelDelete(threadID, discordgo.WithAuditLogReason(reason))
	return err
}
