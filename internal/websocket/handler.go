package websocket

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"

	"github.com/progenxxx/hris-sub006/internal/auth"
	"github.com/progenxxx/hris-sub006/internal/workflow"
)

// HandlerOptions WebSocket 处理器配置
type HandlerOptions struct {
	Hub            *Hub
	Validator      *auth.TokenValidator
	Kinds          *workflow.Registry
	AllowedOrigins []string // 包含 "*" 或为空时不检查 Origin
}

// WebSocketHandler 订阅 /ws/:kind 的记录变更
// 浏览器无法设置 Authorization 头,token 通过查询参数传递
func WebSocketHandler(opts HandlerOptions) gin.HandlerFunc {
	upgrader := gorillaWS.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(opts.AllowedOrigins) == 0 || slices.Contains(opts.AllowedOrigins, "*") {
				return true
			}
			return slices.Contains(opts.AllowedOrigins, origin)
		},
	}

	return func(c *gin.Context) {
		kind := c.Param("kind")
		if opts.Kinds != nil {
			if _, ok := opts.Kinds.Get(kind); !ok {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "message": "unknown record kind", "detail": kind})
				return
			}
		}

		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "missing token"})
			return
		}
		claims, err := opts.Validator.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "invalid token", "detail": err.Error()})
			return
		}

		// 升级失败时 upgrader 已写入错误响应
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			opts.Hub.log.WithError(err).Debug("WebSocket upgrade failed")
			return
		}

		client := NewClient(uuid.New().String(), claims.Subject, kind, opts.Hub, conn)
		if !opts.Hub.join(client) {
			_ = conn.Close()
			return
		}

		go client.ReadPump()
		go client.WritePump()
	}
}
