package internal

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   核心只認得 Channel（send/close/is-open/probe），如何把 WebSocket 接上去？
//
// 設計方案：
//   ✅ 每個連接兩個 goroutine：readPump 把文字訊框交給 Router，writePump 從緩衝佇列寫出
//   ✅ Send 非阻塞：佇列滿就回傳 false（慢客戶端不拖累整個房間）
//   ✅ Probe 用 WriteControl 發 ping 控制幀（gorilla 允許與其他寫入並發呼叫）
//   ✅ 活性判定交給 LivenessMonitor，這裡不設讀取期限

const (
	writeWait = 10 * time.Second
)

// Gateway WebSocket 接入層
type Gateway struct {
	router    *Router
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	readLimit int64
	queueSize int
	wg        sync.WaitGroup
}

// NewGateway 創建 WebSocket 接入層
func NewGateway(router *Router, cfg *Config, logger *slog.Logger) *Gateway {
	origins := cfg.Relay.AllowedOrigins
	return &Gateway{
		router: router,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    1024,
			WriteBufferSize:   1024,
			EnableCompression: false,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				return slices.Contains(origins, r.Header.Get("Origin"))
			},
		},
		readLimit: cfg.Relay.MaxMessageBytes,
		queueSize: cfg.Relay.SendQueueSize,
	}
}

// ServeWS 升級並接管一個 WebSocket 連接
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	ch := &wsChannel{
		ws:   ws,
		send: make(chan []byte, g.queueSize),
		done: make(chan struct{}),
	}
	conn := g.router.Accept(ch)

	// pong 回應即為活性確認
	ws.SetPongHandler(func(string) error {
		conn.Acknowledge()
		return nil
	})
	ws.SetReadLimit(g.readLimit)

	g.logger.Info("new connection",
		"conn_id", conn.ID(),
		"remote_addr", clientIP(r))

	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		ch.writePump(g.logger, conn.ID())
	}()
	go func() {
		defer g.wg.Done()
		g.readPump(conn, ch)
	}()
}

// Wait 等待所有連接的讀寫 goroutine 結束，逾時回傳 false
func (g *Gateway) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// readPump 讀取客戶端訊框，結束時走斷線清理
func (g *Gateway) readPump(conn *Connection, ch *wsChannel) {
	defer func() {
		g.router.Disconnect(conn)
		ch.Close()
	}()

	for {
		messageType, frame, err := ch.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn("websocket read error", "conn_id", conn.ID(), "error", err)
			}
			return
		}

		if messageType == websocket.TextMessage {
			g.router.Handle(conn, frame)
		}
	}
}

// wsChannel 以 gorilla/websocket 實作 Channel
type wsChannel struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// Send 放入寫入佇列；已關閉或佇列滿時回傳 false
func (c *wsChannel) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close 停止寫入並關閉底層連接；佇列中已排隊的訊框會先被寫出
func (c *wsChannel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	// writePump 寫完剩餘訊框後會關閉連接；給它一點時間，避免卡住呼叫端
	go func() {
		select {
		case <-c.done:
		case <-time.After(writeWait):
		}
		_ = c.ws.Close()
	}()
}

// IsOpen 是否仍可寫入
func (c *wsChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Probe 發送 ping 控制幀
func (c *wsChannel) Probe() bool {
	if !c.IsOpen() {
		return false
	}
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)) == nil
}

// writePump 把佇列中的訊框寫到連接上
func (c *wsChannel) writePump(logger *slog.Logger, connID string) {
	defer func() {
		close(c.done)
		_ = c.ws.Close()
	}()

	for frame := range c.send {
		if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			logger.Debug("set write deadline failed", "conn_id", connID, "error", err)
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			logger.Debug("websocket write failed", "conn_id", connID, "error", err)
			c.abort()
			return
		}
	}

	// 佇列已關閉：送出正常關閉幀
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// abort 寫入失敗時標記關閉並丟棄剩餘佇列
func (c *wsChannel) abort() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	for range c.send {
	}
}

// clientIP 優先使用反向代理提供的 X-Forwarded-For
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(ip)
	}
	return r.RemoteAddr
}
