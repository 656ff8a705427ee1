package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
)

var upgrader = gorillaWS.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler 订阅状态变更事件
// 路由带 :id 参数时只接收该批次的事件
func WebSocketHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade 失败时已写入 HTTP 错误响应
			hub.logger.WithError(err).Warn("failed to upgrade connection")
			return
		}

		client := NewClient(uuid.New().String(), c.Param("id"), hub, conn)
		if !hub.register(client) {
			conn.Close()
			return
		}

		go client.ReadPump()
		go client.WritePump()
	}
}
