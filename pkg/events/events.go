// Package events defines the payload published for every completed exchange.
package events

import (
	"aiko-go/internal/model"
)

// ExchangeEvent 是一次问答完成后对外发布的事件，发送到 Kafka 与管理端实时推送。
type ExchangeEvent struct {
	ExchangeID      string          `json:"exchange_id"`
	ConversationKey string          `json:"conversation_key"`
	AuthorID        string          `json:"author_id"`
	Persona         string          `json:"persona,omitempty"`
	Model           string          `json:"model"`
	Question        string          `json:"question"`
	Answer          string          `json:"answer"`
	LatencyMillis   int64           `json:"latency_ms"`
	Timestamp       model.LocalTime `json:"timestamp"`
}

// FromExchange 由归档记录构造事件。
func FromExchange(ex *model.Exchange) ExchangeEvent {
	return ExchangeEvent{
		ExchangeID:      ex.ExchangeID,
		ConversationKey: ex.ConversationKey,
		AuthorID:        ex.AuthorID,
		Persona:         ex.Persona,
		Model:           ex.Model,
		Question:        ex.Question,
		Answer:          ex.Answer,
		LatencyMillis:   ex.LatencyMillis,
		Timestamp:       model.LocalTime(ex.CreatedAt),
	}
}
