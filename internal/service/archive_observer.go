package service

import (
	"context"
	"fmt"

	"aiko-go/internal/model"
	"aiko-go/internal/repository"
)

// ArchiveObserver 把完成的问答写入数据库归档。
type ArchiveObserver struct {
	repo repository.ExchangeRepository
}

// NewArchiveObserver 创建一个新的 ArchiveObserver。
func NewArchiveObserver(repo repository.ExchangeRepository) *ArchiveObserver {
	return &ArchiveObserver{repo: repo}
}

// OnExchange 实现 ExchangeObserver。
func (o *ArchiveObserver) OnExchange(ctx context.Context, exchange *model.Exchange) error {
	// 复制一份，避免写入主键影响其他观察者
	record := *exchange
	if err := o.repo.Create(ctx, &record); err != nil {
		return fmt.Errorf("failed to archive exchange %s: %w", exchange.ExchangeID, err)
	}
	return nil
}
