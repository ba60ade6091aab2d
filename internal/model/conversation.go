// Package model 包含了应用的数据模型定义。
package model

import "time"

// Role 是一条消息在对话中的角色。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ConversationKey 唯一标识一个逻辑会话（服务器+子区、服务器+频道或私信频道）。
type ConversationKey string

// UnknownKey 是无法识别会话时共用的哨兵键。
const UnknownKey ConversationKey = "unknown"

// Turn 代表会话历史中的单条消息，创建后不再修改。
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Exchange 代表一次完成的问答交互，归档到 MySQL。
type Exchange struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ExchangeID      string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"exchangeId"`
	ConversationKey string    `gorm:"type:varchar(128);index;not null" json:"conversationKey"`
	AuthorID        string    `gorm:"type:varchar(64);not null" json:"authorId"`
	Persona         string    `gorm:"type:varchar(64)" json:"persona"`
	Model           string    `gorm:"type:varchar(64);not null" json:"model"`
	Question        string    `gorm:"type:text;not null" json:"question"`
	Answer          string    `gorm:"type:text;not null" json:"answer"`
	LatencyMillis   int64     `json:"latencyMillis"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Exchange) TableName() string {
	return "exchanges"
}
