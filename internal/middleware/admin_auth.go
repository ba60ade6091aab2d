// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"

	"aiko-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// AdminAuthMiddleware 检查 token 的 subject 是否在管理员名单中。
// 此中间件必须在 AuthMiddleware 之后使用。
func AdminAuthMiddleware(adminIDs []string) gin.HandlerFunc {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return func(c *gin.Context) {
		value, exists := c.Get(ClaimsKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取认证信息", "data": nil})
			return
		}
		claims, ok := value.(*token.AdminClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "认证信息类型错误", "data": nil})
			return
		}
		if _, ok := admins[claims.Subject]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "权限不足，需要管理员权限", "data": nil})
			return
		}
		c.Next()
	}
}
