package model

// InboundEvent 是网关投递给核心的一条入站消息或命令调用，与具体平台 SDK 无关。
type InboundEvent struct {
	MessageID         string
	AuthorID          string
	AuthorDisplayName string
	ChannelID         string
	// GuildID 为空表示私信
	GuildID string
	// ThreadID 是事件显式携带的子区引用
	ThreadID        string
	ChannelIsThread bool
	Content         string
	FromBot         bool
}

// IsDM 报告事件是否来自私信频道。
func (e *InboundEvent) IsDM() bool {
	return e.GuildID == ""
}

// InThread 报告事件是否发生在子区中。
func (e *InboundEvent) InThread() bool {
	return e.ThreadID != "" || e.ChannelIsThread
}
