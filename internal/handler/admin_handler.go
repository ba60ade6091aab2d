package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"aiko-go/internal/model"
	"aiko-go/internal/repository"
	"aiko-go/internal/service"
	"aiko-go/pkg/log"

	"github.com/gin-gonic/gin"
)

const defaultExchangeLimit = 50

// SnapshotLinker 为快照生成临时下载链接，仅对象存储后端可用。
type SnapshotLinker func(ctx context.Context) (string, error)

// AdminHandler 负责模型切换、问答归档查询与快照下载。
type AdminHandler struct {
	models    *service.ModelSelector
	exchanges repository.ExchangeRepository
	linker    SnapshotLinker
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。exchanges 与 linker 可以为 nil，对应功能返回 503。
func NewAdminHandler(models *service.ModelSelector, exchanges repository.ExchangeRepository, linker SnapshotLinker) *AdminHandler {
	return &AdminHandler{models: models, exchanges: exchanges, linker: linker}
}

type switchModelRequest struct {
	Model string `json:"model" binding:"required"`
}

type exchangeDTO struct {
	ExchangeID      string          `json:"exchangeId"`
	ConversationKey string          `json:"conversationKey"`
	AuthorID        string          `json:"authorId"`
	Persona         string          `json:"persona,omitempty"`
	Model           string          `json:"model"`
	Question        string          `json:"question"`
	Answer          string          `json:"answer"`
	LatencyMillis   int64           `json:"latencyMillis"`
	CreatedAt       model.LocalTime `json:"createdAt"`
}

// GetModel 返回当前模型与可选模型。
func (h *AdminHandler) GetModel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"current": h.models.Current(), "allowed": h.models.Allowed()},
	})
}

// SwitchModel 切换全局使用的模型。
func (h *AdminHandler) SwitchModel(c *gin.Context) {
	var req switchModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}
	if err := h.models.Set(req.Model); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrUnknownModel) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"code": status, "message": err.Error(), "data": gin.H{"allowed": h.models.Allowed()}})
		return
	}
	log.Infof("SwitchModel: 模型已切换为 %s", req.Model)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"current": req.Model}})
}

// ListExchanges 按时间倒序返回某个会话的归档问答。
func (h *AdminHandler) ListExchanges(c *gin.Context) {
	if h.exchanges == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": "问答归档未启用", "data": nil})
		return
	}
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "缺少 key 参数", "data": nil})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultExchangeLimit)))
	if err != nil || limit <= 0 {
		limit = defaultExchangeLimit
	}

	records, err := h.exchanges.FindByConversation(c.Request.Context(), model.ConversationKey(key), limit)
	if err != nil {
		log.Errorf("ListExchanges: 查询归档失败, key=%s, err=%v", key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "查询归档失败", "data": nil})
		return
	}
	out := make([]exchangeDTO, 0, len(records))
	for _, r := range records {
		out = append(out, exchangeDTO{
			ExchangeID:      r.ExchangeID,
			ConversationKey: r.ConversationKey,
			AuthorID:        r.AuthorID,
			Persona:         r.Persona,
			Model:           r.Model,
			Question:        r.Question,
			Answer:          r.Answer,
			LatencyMillis:   r.LatencyMillis,
			CreatedAt:       model.LocalTime(r.CreatedAt),
		})
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": out})
}

// ExchangeStats 返回每个会话的归档条数。
func (h *AdminHandler) ExchangeStats(c *gin.Context) {
	if h.exchanges == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": "问答归档未启用", "data": nil})
		return
	}
	counts, err := h.exchanges.CountByConversation(c.Request.Context())
	if err != nil {
		log.Errorf("ExchangeStats: 统计归档失败, err=%v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "统计归档失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": counts})
}

// SnapshotURL 返回快照对象的临时下载链接。
func (h *AdminHandler) SnapshotURL(c *gin.Context) {
	if h.linker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": "快照未存放在对象存储中", "data": nil})
		return
	}
	url, err := h.linker(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "生成下载链接失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"url": url}})
}
