package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	// 跨域交给 CORS 中间件统一处理
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Replayer 连接建立时补发终态事件：
// 如果该扫描已经结束，新来的订阅者也要立刻看到最后的 done/error。
type Replayer interface {
	ReplayEvent(ctx context.Context, scanID string) (any, bool)
}

// connSubscriber 包一层写锁：gorilla 的 conn 不允许并发写
type connSubscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *connSubscriber) Send(ev any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(ev)
}

// Serve websocket 入口：GET /api/ws?scanId=xxx
// 连接即 Attach；客户端断开（读循环报错）即 Detach。
// 订阅者可以在 orchestrator 启动前或结束后任意时刻接入。
func Serve(hub *Hub, replayer Replayer) gin.HandlerFunc {
	return func(c *gin.Context) {
		scanID := c.Query("scanId")
		if scanID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing scanId"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade 失败时 gorilla 已经写过响应
			return
		}

		sub := &connSubscriber{conn: conn}
		hub.Attach(scanID, sub)

		// 已终态的任务：接入时直接补发最后状态
		if ev, ok := replayer.ReplayEvent(c.Request.Context(), scanID); ok {
			_ = sub.Send(ev)
		}

		// 读循环只用来感知断开；收到的内容直接丢弃
		go func() {
			defer func() {
				hub.Detach(scanID, sub)
				conn.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
