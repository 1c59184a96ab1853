package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/rahulrsolguruz/chat-app-api/internal/auth"
	"github.com/rahulrsolguruz/chat-app-api/internal/config"
	"github.com/rahulrsolguruz/chat-app-api/internal/metrics"
	"github.com/rahulrsolguruz/chat-app-api/internal/models"
)

// Client 一个鉴权后的传输连接句柄；同一用户可同时持有多个。
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	userID   string
	username string
	role     string
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// sendEvent 非阻塞地向连接推送一个信封；发送缓冲打满视为慢消费者，
// 消息丢弃，由客户端重连后拉取历史补齐。
func (c *Client) sendEvent(evtType string, success bool, message string, data interface{}) {
	b, err := json.Marshal(Envelope{Type: evtType, Success: success, Message: message, Data: data})
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	default:
		log.Warn().Str("user_id", c.userID).Str("event", evtType).Msg("send buffer full, dropping event")
	}
}

// Serve 握手入口：先过 AuthGate（token 只在建连时校验一次），
// 再升级为 WebSocket 并进入读写泵。
func Serve(router *Router, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.Request)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := auth.ParseAccessToken(token, cfg.JWTSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		user, err := router.store.FindUser(claims.UserID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := &Client{
			conn:     conn,
			send:     make(chan []byte, 256),
			userID:   user.ID,
			username: user.Username,
			role:     user.Role,
		}
		if user.Role == models.RoleAdmin {
			if err := router.rooms.AddMember(AdminsRoom, user.ID, models.RoleAdmin); err != nil && !errors.Is(err, ErrAlreadyMember) {
				log.Warn().Err(err).Str("user_id", user.ID).Msg("join admins room")
			}
		}

		first := router.reg.Register(user.ID, client)
		metrics.WsConnections.Inc()
		if first {
			router.tracker.ConnectionOpened(user.ID)
		}
		log.Info().Str("user_id", user.ID).Str("username", user.Username).Bool("first", first).Msg("ws connected")

		go client.writePump()
		client.readPump(router)
	}
}

// readPump 每连接一个 goroutine，事件按接收顺序处理。
// defer 保证拆除动作无论如何都会执行：注销句柄、必要时翻转在线状态；
// 持久化的群成员关系与连接生命周期无关，不在这里动。
func (c *Client) readPump(router *Router) {
	defer func() {
		last := router.reg.Unregister(c.userID, c)
		metrics.WsConnections.Dec()
		if last {
			router.tracker.ConnectionClosed(c.userID)
		}
		_ = c.conn.Close()
		log.Info().Str("user_id", c.userID).Bool("last", last).Msg("ws disconnected")
	}()
	c.conn.SetReadLimit(1 << 20) // 1MB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		router.Dispatch(c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
