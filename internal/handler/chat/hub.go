package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/tagbot/backend/internal/model/chat"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
)

// ErrNotConnected 用户当前没有活跃连接
var ErrNotConnected = errors.New("user is not connected")

// Inbox 接收解码后的用户消息
type Inbox interface {
	Deliver(msg chat.Message) error
	ApplyLanguageHint(userID, hint string)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// AudioMessage 已上传音频的引用
type AudioMessage struct {
	FileName string `json:"fileName"`
	Handle   string `json:"handle"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

// ChoiceMessage 按钮选择
type ChoiceMessage struct {
	Token string `json:"token"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	UserID    string      `json:"userId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type client struct {
	userID   string
	username string
	conn     *websocket.Conn
	writeMu  sync.Mutex
}

func (c *client) send(msg outgoingMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

// Hub 维护每个用户的WebSocket连接，同时充当机器人的消息通道
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[string]*client
	inbox   Inbox
}

// NewHub 创建连接中心
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger,
		clients: make(map[string]*client),
	}
}

// Attach 绑定消息接收方；Hub 与机器人互相依赖，因此在构造后绑定
func (h *Hub) Attach(inbox Inbox) {
	h.mu.Lock()
	h.inbox = inbox
	h.mu.Unlock()
}

// RegisterRoutes 注册WebSocket路由
func (h *Hub) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{userID}", h.handleWebSocket)
}

// Connected 判断用户是否在线
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// SendPrompt 发送纯文本提示
func (h *Hub) SendPrompt(_ context.Context, userID, text string) error {
	return h.sendTo(userID, "prompt", map[string]any{"text": text})
}

// SendChoice 发送带按钮的问题
func (h *Hub) SendChoice(_ context.Context, userID, text string, options []chat.Option) error {
	return h.sendTo(userID, "choice", map[string]any{
		"text":    text,
		"options": options,
	})
}

// SendArtifact 以base64发送处理完成的音频文件
func (h *Hub) SendArtifact(ctx context.Context, userID, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !h.Connected(userID) {
		return ErrNotConnected
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}

	h.logger.Debug("sending artifact", zap.String("user", userID), zap.String("file", filepath.Base(path)), zap.Int("bytes", len(data)))
	return h.sendTo(userID, "artifact", map[string]any{
		"fileName":  filepath.Base(path),
		"format":    strings.TrimPrefix(filepath.Ext(path), "."),
		"audioData": base64.StdEncoding.EncodeToString(data),
	})
}

func (h *Hub) sendTo(userID, msgType string, data map[string]any) error {
	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}

	msg := outgoingMessage{
		Type:      msgType,
		UserID:    userID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := c.send(msg); err != nil {
		return fmt.Errorf("write %s: %w", msgType, err)
	}
	return nil
}

// handleWebSocket 处理WebSocket连接
func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "userID is required", http.StatusBadRequest)
		return
	}

	h.mu.RLock()
	inbox := h.inbox
	h.mu.RUnlock()
	if inbox == nil {
		http.Error(w, "bot unavailable", http.StatusServiceUnavailable)
		return
	}

	hint := r.URL.Query().Get("lang")
	if hint == "" {
		hint = r.Header.Get("Accept-Language")
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user", userID), zap.Error(err))
		return
	}

	c := &client{
		userID:   userID,
		username: strings.TrimSpace(r.URL.Query().Get("username")),
		conn:     conn,
	}
	h.register(c)
	defer h.unregister(c)

	inbox.ApplyLanguageHint(userID, hint)
	h.logger.Info("websocket connected", zap.String("user", userID), zap.String("username", c.username))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, c)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.String("user", userID), zap.Error(err))
			}
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		h.handleMessage(inbox, c, &msg)
	}
}

func (h *Hub) handleMessage(inbox Inbox, c *client, raw *inboundMessage) {
	msg, err := decodeMessage(raw)
	if err != nil {
		h.sendError(c, err.Error())
		return
	}

	msg.UserID = c.userID
	msg.Username = c.username
	msg.ReceivedAt = time.Now()

	if err := inbox.Deliver(msg); err != nil {
		h.logger.Warn("failed to queue message", zap.String("user", c.userID), zap.Error(err))
		h.sendError(c, "bot unavailable")
	}
}

// decodeMessage 将线上的消息格式转换为领域消息
func decodeMessage(raw *inboundMessage) (chat.Message, error) {
	switch raw.Type {
	case "audio":
		var audio AudioMessage
		if err := json.Unmarshal(raw.Data, &audio); err != nil || audio.Handle == "" {
			return chat.Message{}, errors.New("invalid audio payload")
		}
		return chat.Message{Kind: chat.KindAudio, Audio: chat.AudioRef{FileName: audio.FileName, Handle: audio.Handle}}, nil
	case "text":
		var text TextMessage
		if err := json.Unmarshal(raw.Data, &text); err != nil {
			return chat.Message{}, errors.New("invalid text payload")
		}
		return chat.Message{Kind: chat.KindText, Text: text.Text}, nil
	case "choice":
		var choice ChoiceMessage
		if err := json.Unmarshal(raw.Data, &choice); err != nil || choice.Token == "" {
			return chat.Message{}, errors.New("invalid choice payload")
		}
		return chat.Message{Kind: chat.KindChoice, Choice: choice.Token}, nil
	default:
		return chat.Message{}, fmt.Errorf("unsupported message type: %s", raw.Type)
	}
}

// register 新连接会替换同一用户的旧连接
func (h *Hub) register(c *client) {
	h.mu.Lock()
	old := h.clients[c.userID]
	h.clients[c.userID] = c
	h.mu.Unlock()

	if old != nil {
		h.logger.Info("websocket replaced", zap.String("user", c.userID))
		_ = old.conn.Close()
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if h.clients[c.userID] == c {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
	h.logger.Info("websocket disconnected", zap.String("user", c.userID))
}

func (h *Hub) sendError(c *client, message string) {
	msg := outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := c.send(msg); err != nil {
		h.logger.Warn("write error failed", zap.String("user", c.userID), zap.Error(err))
	}
}

// pingLoop 定期发送ping消息
func (h *Hub) pingLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
