// Package service 包含了应用的业务逻辑层。
package service

import (
	"errors"
	"fmt"
)

// 前置条件不满足时返回的错误，调用方应把它们转成拒绝提示而不是崩溃。
var (
	ErrUnknownPersona = errors.New("unknown persona")
	ErrNotActive      = errors.New("no active voice session for this conversation")
	ErrAlreadyActive  = errors.New("voice session already active for this conversation")
	ErrNotThread      = errors.New("command is only available inside a thread")
	ErrNotAdmin       = errors.New("admin only")
	ErrUnknownModel   = errors.New("unknown model")
)

// BackendError 包装 LLM 或 TTS 调用失败。
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend failed: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// PersistenceError 表示会话快照写入失败，持久化保证已被破坏。
type PersistenceError struct {
	Location string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist conversations to %s: %v", e.Location, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
