package gateway

import (
	"aiko-go/internal/model"
	"aiko-go/internal/service"

	"github.com/bwmarrin/discordgo"
)

// displayName 依次使用服务器昵称、全局显示名与用户名。
func displayName(member *discordgo.Member, user *discordgo.User) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if user == nil && member != nil {
		user = member.User
	}
	if user == nil {
		return ""
	}
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}

// messageEvent 把平台消息转换为与 SDK 无关的入站事件。
func messageEvent(m *discordgo.Message, channelIsThread bool, botID string) *model.InboundEvent {
	ev := &model.InboundEvent{
		MessageID:       m.ID,
		ChannelID:       m.ChannelID,
		GuildID:         m.GuildID,
		ChannelIsThread: channelIsThread,
		Content:         service.StripBotMention(m.Content, botID),
	}
	if m.Thread != nil {
		ev.ThreadID = m.Thread.ID
	}
	if m.Author != nil {
		ev.AuthorID = m.Author.ID
		ev.FromBot = m.Author.Bot
	}
	ev.AuthorDisplayName = displayName(m.Member, m.Author)
	return ev
}

// interactionEvent 把斜杠命令调用转换为入站事件，用于计算会话键与权限。
func interactionEvent(i *discordgo.Interaction, channelIsThread bool) *model.InboundEvent {
	ev := &model.InboundEvent{
		MessageID:       i.ID,
		ChannelID:       i.ChannelID,
		GuildID:         i.GuildID,
		ChannelIsThread: channelIsThread,
	}
	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	if user != nil {
		ev.AuthorID = user.ID
		ev.FromBot = user.Bot
	}
	ev.AuthorDisplayName = displayName(i.Member, user)
	return ev
}
