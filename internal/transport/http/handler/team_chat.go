package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"datasteward/internal/app"
	"datasteward/internal/realtime"
	"datasteward/internal/transport/http/response"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 8 << 10
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type TeamChatHandler struct {
	teamChat *app.TeamChatService
	profiles ProfileLookup
	broker   realtime.Broker
}

type inboundFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Content string `json:"content"`
}

func NewTeamChatHandler(teamChat *app.TeamChatService, profiles ProfileLookup, broker realtime.Broker) *TeamChatHandler {
	return &TeamChatHandler{teamChat: teamChat, profiles: profiles, broker: broker}
}

func (h *TeamChatHandler) Channels(c *gin.Context) {
	response.OK(c, h.teamChat.Channels())
}

// Connect upgrades to a WebSocket carrying one team chat session. The socket
// closes when the user signs out anywhere.
func (h *TeamChatHandler) Connect(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	profile, err := h.profiles.CurrentUser(userID)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found")
		return
	}

	channelID := c.DefaultQuery("channel", "general")
	if _, ok := h.teamChat.Channel(channelID); !ok {
		response.Error(c, http.StatusNotFound, response.CodeChannelNotFound, app.ErrChannelNotFound.Error())
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed, user=%d: %v", userID, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newWSClient(conn)
	go client.writePump()

	session := h.teamChat.NewSession(profile, client.push)
	defer session.Close()

	unsubscribeAuth, err := h.broker.Subscribe(ctx, app.AuthTopic(userID), func(ev realtime.Event) {
		if ev.Kind == app.EventKindAuth {
			client.push(app.TeamChatEvent{Type: app.TeamChatEventSignedOut})
		}
	})
	if err != nil {
		log.Printf("subscribe auth events failed, user=%d: %v", userID, err)
	} else {
		defer unsubscribeAuth()
	}

	if err := session.Join(ctx, channelID); err != nil {
		client.push(app.TeamChatEvent{Type: app.TeamChatEventError, Error: err.Error()})
	}

	client.readPump(func(frame inboundFrame) {
		switch frame.Type {
		case "join":
			if err := session.Join(ctx, frame.Channel); err != nil {
				client.push(app.TeamChatEvent{Type: app.TeamChatEventError, Channel: frame.Channel, Error: err.Error()})
			}
		case "send":
			if _, err := session.Send(ctx, frame.Content); err != nil {
				client.push(app.TeamChatEvent{Type: app.TeamChatEventError, Error: err.Error()})
			}
		default:
			client.push(app.TeamChatEvent{Type: app.TeamChatEventError, Error: "unknown frame type"})
		}
	})
	client.stop()
}

// wsClient owns the connection's single writer goroutine.
type wsClient struct {
	conn *websocket.Conn
	send chan app.TeamChatEvent
	done chan struct{}
	once sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan app.TeamChatEvent, sendBufferSize),
		done: make(chan struct{}),
	}
}

// push queues an event without blocking; a client that stops reading loses
// events rather than stalling the session.
func (w *wsClient) push(ev app.TeamChatEvent) {
	select {
	case <-w.done:
		return
	default:
	}
	select {
	case w.send <- ev:
	case <-w.done:
	default:
		log.Printf("websocket send buffer full, dropping %s event", ev.Type)
	}
}

func (w *wsClient) stop() {
	w.once.Do(func() { close(w.done) })
}

func (w *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = w.conn.Close()
	}()

	for {
		select {
		case <-w.done:
			_ = w.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case ev := <-w.send:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteJSON(ev); err != nil {
				w.stop()
				return
			}
			if ev.Type == app.TeamChatEventSignedOut {
				_ = w.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "signed out"), time.Now().Add(writeWait))
				w.stop()
				return
			}
		case <-ticker.C:
			if err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				w.stop()
				return
			}
		}
	}
}

func (w *wsClient) readPump(handle func(inboundFrame)) {
	w.conn.SetReadLimit(maxInboundSize)
	_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket read failed: %v", err)
			}
			return
		}
		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			w.push(app.TeamChatEvent{Type: app.TeamChatEventError, Error: "malformed frame"})
			continue
		}
		handle(frame)
	}
}
