package repository

import (
	"context"

	"aiko-go/internal/model"

	"gorm.io/gorm"
)

// ExchangeRepository 接口定义了已完成问答的归档操作。
type ExchangeRepository interface {
	Create(ctx context.Context, exchange *model.Exchange) error
	FindByConversation(ctx context.Context, key model.ConversationKey, limit int) ([]model.Exchange, error)
	CountByConversation(ctx context.Context) (map[model.ConversationKey]int64, error)
}

// exchangeRepository 是 ExchangeRepository 接口的 GORM 实现。
type exchangeRepository struct {
	db *gorm.DB
}

// NewExchangeRepository 创建一个新的 ExchangeRepository 实例，并确保表结构存在。
func NewExchangeRepository(db *gorm.DB) (ExchangeRepository, error) {
	if err := db.AutoMigrate(&model.Exchange{}); err != nil {
		return nil, err
	}
	return &exchangeRepository{db: db}, nil
}

// Create 在数据库中创建一条归档记录。
func (r *exchangeRepository) Create(ctx context.Context, exchange *model.Exchange) error {
	return r.db.WithContext(ctx).Create(exchange).Error
}

// FindByConversation 按时间倒序返回某个会话最近的 limit 条归档，limit<=0 表示不限制。
func (r *exchangeRepository) FindByConversation(ctx context.Context, key model.ConversationKey, limit int) ([]model.Exchange, error) {
	var exchanges []model.Exchange
	q := r.db.WithContext(ctx).Where("conversation_key = ?", string(key)).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&exchanges).Error
	return exchanges, err
}

// CountByConversation 统计每个会话的归档条数。
func (r *exchangeRepository) CountByConversation(ctx context.Context) (map[model.ConversationKey]int64, error) {
	var rows []struct {
		ConversationKey string
		Total           int64
	}
	err := r.db.WithContext(ctx).Model(&model.Exchange{}).
		Select("conversation_key, COUNT(*) AS total").
		Group("conversation_key").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[model.ConversationKey]int64, len(rows))
	for _, row := range rows {
		out[model.ConversationKey(row.ConversationKey)] = row.Total
	}
	return out, nil
}
