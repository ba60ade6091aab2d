package handler

import (
	"context"
	"net/http"
	"time"

	"aiko-go/internal/model"
	"aiko-go/internal/service"
	"aiko-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const feedWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 管理端已通过 token 认证
	},
}

// FeedHandler 通过 WebSocket 推送实时完成的问答。
type FeedHandler struct {
	hub *service.FeedHub
}

// NewFeedHandler 创建一个新的 FeedHandler。
func NewFeedHandler(hub *service.FeedHub) *FeedHandler {
	return &FeedHandler{hub: hub}
}

// Handle 升级连接并持续推送事件，key 查询参数为空时推送全部会话。
func (h *FeedHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	key := model.ConversationKey(c.Query("key"))
	events, _ := h.hub.Subscribe(ctx, key)
	log.Infof("实时推送连接已建立, key=%q", key)

	// 读循环只用于感知客户端断开
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.Warnf("推送事件失败: %v", err)
				return
			}
		}
	}
}
