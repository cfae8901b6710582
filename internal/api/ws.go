package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/collabspace/internal/middleware"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/lalith-99/collabspace/internal/realtime"
	"github.com/lalith-99/collabspace/internal/service/chat"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxReadBytes = 512
	backlogLimit = 200
)

type subscriber interface {
	Subscribe(userID uuid.UUID, opts realtime.SubscribeOptions) (*realtime.Subscription, error)
}

type messageLister interface {
	ListMessages(ctx context.Context, chatID, viewerID uuid.UUID, afterID int64, limit int) ([]models.Message, error)
}

// WSHandler streams realtime events to one user over a WebSocket.
type WSHandler struct {
	bus      subscriber
	messages messageLister
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWSHandler(bus subscriber, messages messageLister, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		bus:      bus,
		messages: messages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// backlogFrame is the first frame when chat_id is given: everything after
// `after` in that chat, merged with anything pushed while it was loading.
type backlogFrame struct {
	Type     string           `json:"type"`
	ChatID   uuid.UUID        `json:"chat_id"`
	Messages []models.Message `json:"messages"`
}

// Serve handles GET /v1/ws?chat_id=&after=
//
// The subscription is opened before the backlog is read so nothing sent in
// between is lost. Pushes for messages already in the backlog, whether they
// arrive before or after it is sent, are dropped by message id.
func (h *WSHandler) Serve(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var chatID uuid.UUID
	if raw := c.Query("chat_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat_id"})
			return
		}
		chatID = id
	}
	after, ok := intQuery(c, "after", 0)
	if !ok {
		return
	}

	sub, err := h.bus.Subscribe(userID, realtime.SubscribeOptions{ViewingChat: chatID})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime unavailable"})
		return
	}
	defer sub.Close()

	var first *backlogFrame
	var pending []realtime.Event
	var seen backlogMark
	if chatID != uuid.Nil {
		fetched, err := h.messages.ListMessages(c.Request.Context(), chatID, userID, after, backlogLimit)
		if err != nil {
			writeError(c, h.logger, err, "failed to load backlog")
			return
		}
		var pushed []models.Message
		pending, pushed = drain(sub, chatID)
		first = &backlogFrame{Type: "backlog", ChatID: chatID, Messages: chat.MergeMessages(fetched, pushed)}
		seen = markBacklog(chatID, after, first.Messages)
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the client.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go readPump(conn, done)

	if first != nil {
		if err := writeJSON(conn, first); err != nil {
			return
		}
	}
	for _, ev := range pending {
		if err := writeJSON(conn, ev); err != nil {
			return
		}
	}
	h.writePump(conn, sub, seen, done)
}

// backlogMark is the highest message id the client already holds: the
// `after` cursor or the newest backlog message. Message ids only grow, so a
// push at or below it has been delivered.
type backlogMark struct {
	chatID uuid.UUID
	maxID  int64
}

func markBacklog(chatID uuid.UUID, after int64, msgs []models.Message) backlogMark {
	m := backlogMark{chatID: chatID, maxID: after}
	for _, msg := range msgs {
		if msg.ID > m.maxID {
			m.maxID = msg.ID
		}
	}
	return m
}

func (m backlogMark) delivered(ev realtime.Event) bool {
	return m.chatID != uuid.Nil &&
		ev.Type == realtime.EventMessageCreated &&
		ev.Message != nil &&
		ev.Message.ChatID == m.chatID &&
		ev.Message.ID <= m.maxID
}

// drain takes whatever is already buffered. Messages for chatID are returned
// separately so they can be merged into the backlog.
func drain(sub *realtime.Subscription, chatID uuid.UUID) ([]realtime.Event, []models.Message) {
	var other []realtime.Event
	var msgs []models.Message
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return other, msgs
			}
			if ev.Type == realtime.EventMessageCreated && ev.Message != nil && ev.Message.ChatID == chatID {
				msgs = append(msgs, *ev.Message)
				continue
			}
			other = append(other, ev)
		default:
			return other, msgs
		}
	}
}

// readPump only services control frames. Client frames are ignored.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxReadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHandler) writePump(conn *websocket.Conn, sub *realtime.Subscription, seen backlogMark, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.Events():
			if !ok {
				// Dropped as a slow consumer, or the user signed out.
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription closed"))
				return
			}
			if seen.delivered(ev) {
				continue
			}
			if err := writeJSON(conn, ev); err != nil {
				h.logger.Debug("websocket write failed", zap.String("user_id", sub.UserID().String()), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
