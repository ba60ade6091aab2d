package service

import (
	"fmt"

	"aiko-go/internal/model"
)

const dmScope = "dm"

func guildScope(guildID string) string {
	if guildID == "" {
		return dmScope
	}
	return guildID
}

// ThreadKey 返回子区会话的键，供创建子区时直接计算。
func ThreadKey(guildID, threadID string) model.ConversationKey {
	return model.ConversationKey(fmt.Sprintf("%s_thread_%s", guildScope(guildID), threadID))
}

// ResolveKey 从入站事件推导会话键，按以下顺序取第一个命中：
// 显式子区引用、所在频道本身是子区、频道（带服务器或私信作用域）、哨兵 "unknown"。
// 无法识别时退化为共享哨兵键，不返回错误。
func ResolveKey(ev *model.InboundEvent) model.ConversationKey {
	if ev == nil {
		return model.UnknownKey
	}
	switch {
	case ev.ThreadID != "":
		return ThreadKey(ev.GuildID, ev.ThreadID)
	case ev.ChannelIsThread && ev.ChannelID != "":
		return ThreadKey(ev.GuildID, ev.ChannelID)
	case ev.ChannelID != "":
		return model.ConversationKey(fmt.Sprintf("%s_%s", guildScope(ev.GuildID), ev.ChannelID))
	default:
		return model.UnknownKey
	}
}
