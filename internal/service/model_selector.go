package service

import (
	"fmt"
	"sync"
)

// ModelSelector 保存当前使用的 LLM 模型，可以在运行时由管理员切换。
type ModelSelector struct {
	mu      sync.RWMutex
	current string
	allowed []string
}

// NewModelSelector 创建选择器；allowed 为空时只允许默认模型。
func NewModelSelector(defaultModel string, allowed []string) *ModelSelector {
	if len(allowed) == 0 {
		allowed = []string{defaultModel}
	}
	return &ModelSelector{
		current: defaultModel,
		allowed: append([]string(nil), allowed...),
	}
}

// Current 返回当前模型。
func (m *ModelSelector) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Allowed 返回可切换的模型列表。
func (m *ModelSelector) Allowed() []string {
	return append([]string(nil), m.allowed...)
}

// Set 切换当前模型，不在允许列表中时返回 ErrUnknownModel。
func (m *ModelSelector) Set(model string) error {
	for _, a := range m.allowed {
		if a == model {
			m.mu.Lock()
			m.current = model
			m.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownModel, model)
}
