package interaction

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const writeTimeout = 200 * time.Millisecond

// Feed 远程交互端点
//
// 客户端连接 /events，发送的每条消息都视为一次交互；
// 消息是 {"type": "..."} 形式的 JSON 时保留其类型，否则记为 remote。
// 服务端通过 Broadcast 向所有客户端推送状态。
type Feed struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	server  *http.Server

	handler  Handler
	upgrader websocket.Upgrader
	received atomic.Int64
	logger   zerolog.Logger
}

// NewFeed 创建 Feed；h 在连接的读 goroutine 上调用
func NewFeed(h Handler) *Feed {
	return &Feed{
		clients:  map[*websocket.Conn]bool{},
		handler:  h,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:   log.With().Str("component", "feed").Logger(),
	}
}

// Handler 返回带 /events 和 /health 路由的 http.Handler
func (f *Feed) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", f.HandleEvents)
	mux.HandleFunc("/health", f.HandleHealth)
	return mux
}

// Start 在 addr 上监听，返回实际监听地址
func (f *Feed) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	srv := &http.Server{Handler: f.Handler(), ReadHeaderTimeout: 5 * time.Second}
	f.mu.Lock()
	f.server = srv
	f.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.logger.Error().Err(err).Msg("feed server stopped")
		}
	}()
	f.logger.Info().Str("addr", ln.Addr().String()).Msg("interaction feed listening")
	return ln.Addr().String(), nil
}

// HandleEvents 升级为 websocket 并读取交互消息
func (f *Feed) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Debug().Err(err).Msg("upgrade")
		return
	}
	f.mu.Lock()
	f.clients[conn] = true
	f.writeLocked(conn, map[string]any{"type": "hello"})
	f.mu.Unlock()

	go func() {
		defer func() {
			f.mu.Lock()
			delete(f.clients, conn)
			f.mu.Unlock()
			conn.Close()
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f.received.Add(1)
			if f.handler != nil {
				f.handler(parseEvent(data))
			}
		}
	}()
}

func parseEvent(data []byte) Event {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil || ev.Kind == "" {
		ev.Kind = KindRemote
	}
	ev.Source = "remote"
	return ev
}

// HandleHealth 返回连接数和收到的消息数
func (f *Feed) HandleHealth(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	n := len(f.clients)
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"clients":  n,
		"received": f.received.Load(),
	})
}

// Broadcast 向所有客户端发送 JSON
func (f *Feed) Broadcast(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		f.writeLocked(c, v)
	}
}

func (f *Feed) writeLocked(c *websocket.Conn, v any) {
	c.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.WriteJSON(v); err != nil {
		f.logger.Debug().Err(err).Msg("write")
	}
}

// Close 关闭服务和所有连接
func (f *Feed) Close() error {
	f.mu.Lock()
	srv := f.server
	for c := range f.clients {
		c.Close()
	}
	f.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
