// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"aiko-go/internal/model"
	"aiko-go/internal/service"
	"aiko-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与会话历史相关的管理 API 请求。
type ConversationHandler struct {
	conversations service.ConversationService
	personas      service.PersonaService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(conversations service.ConversationService, personas service.PersonaService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, personas: personas}
}

type conversationDetail struct {
	Key     model.ConversationKey `json:"key"`
	Persona string                `json:"persona,omitempty"`
	Turns   []model.Turn          `json:"turns"`
}

type assignPersonaRequest struct {
	Name string `json:"name" binding:"required"`
}

// ListConversations 返回每个会话的消息条数与快照位置。
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"location":      h.conversations.Location(),
			"conversations": h.conversations.Stats(),
		},
	})
}

// GetConversation 返回单个会话的完整历史与当前人格。
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	key := model.ConversationKey(c.Param("key"))
	detail := conversationDetail{Key: key, Turns: h.conversations.Get(key)}
	if p, ok := h.personas.Resolve(key); ok {
		detail.Persona = p.Name
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": detail})
}

// ClearConversation 同时清除会话历史与人格分配。
func (h *ConversationHandler) ClearConversation(c *gin.Context) {
	key := model.ConversationKey(c.Param("key"))
	if err := service.ClearConversation(c.Request.Context(), h.conversations, h.personas, key); err != nil {
		log.Errorf("ClearConversation: 清除会话失败, key=%s, err=%v", key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": err.Error(), "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}

// AssignPersona 为会话设置人格。
func (h *ConversationHandler) AssignPersona(c *gin.Context) {
	var req assignPersonaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}
	key := model.ConversationKey(c.Param("key"))
	if err := h.personas.Assign(c.Request.Context(), key, req.Name); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrUnknownPersona) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"code": status, "message": err.Error(), "data": gin.H{"available": h.personas.Names()}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"key": key, "persona": req.Name}})
}

// ListPersonas 返回已加载的人格名称。
func (h *ConversationHandler) ListPersonas(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": h.personas.Names()})
}
