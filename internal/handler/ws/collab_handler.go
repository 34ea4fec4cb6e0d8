// Package ws implements the realtime collaboration hub. Each connected
// editor holds one session per open document; accepted block versions and
// membership events fan out through Redis pub/sub so every collab-service
// instance reaches its own clients.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	blockservice "securedocs-backend/internal/service/block"
	"securedocs-backend/pkg/constants"
	"securedocs-backend/pkg/logger"
	"securedocs-backend/pkg/metrics"
	"securedocs-backend/pkg/response"
)

const (
	pongWait   = constants.WebSocketPingInterval
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
)

// Event types
const (
	EventTypeBlockVersion = "block_version"
	EventTypeBlockDeleted = "block_deleted"
	EventTypeUserJoined   = "user_joined"
	EventTypeUserLeft     = "user_left"
	EventTypeCursor       = "cursor"
	EventTypeKeyRotated   = "key_rotated"
)

// Event is a realtime message on a document channel. Payload carries the
// type-specific body; for block events it is the version itself, still
// encrypted.
type Event struct {
	Type       string          `json:"type"`
	DocumentID uuid.UUID       `json:"document_id"`
	UserID     uuid.UUID       `json:"user_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// PresenceTracker is the slice of presence storage the hub needs
type PresenceTracker interface {
	SetActive(ctx context.Context, documentID, userID uuid.UUID) error
	SetInactive(ctx context.Context, documentID, userID uuid.UUID) error
	Refresh(ctx context.Context, documentID, userID uuid.UUID) error
	GetActiveUsers(ctx context.Context, documentID uuid.UUID) ([]uuid.UUID, error)
}

// session is one user's connection to one document. A user reconnecting
// replaces their previous session; the registry is keyed by user id so a
// document never holds two live sessions for the same editor.
type session struct {
	hub        *CollabHub
	conn       *websocket.Conn
	send       chan []byte
	userID     uuid.UUID
	documentID uuid.UUID
}

// CollabHub manages document sessions
type CollabHub struct {
	documents  map[uuid.UUID]map[uuid.UUID]*session
	redis      *redis.Client
	membership blockservice.DocumentReader
	presence   PresenceTracker
	metrics    *metrics.Metrics
	mu         sync.RWMutex

	register   chan *session
	unregister chan *session
	broadcast  chan *Event
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin is enforced by the CORS middleware upstream
	},
}

// NewCollabHub creates and starts a new collaboration hub
func NewCollabHub(redisClient *redis.Client, documents blockservice.DocumentReader, presence PresenceTracker, m *metrics.Metrics) *CollabHub {
	hub := &CollabHub{
		documents:  make(map[uuid.UUID]map[uuid.UUID]*session),
		redis:      redisClient,
		membership: documents,
		presence:   presence,
		metrics:    m,
		register:   make(chan *session),
		unregister: make(chan *session),
		broadcast:  make(chan *Event, 256),
	}

	go hub.run()

	return hub
}

func (h *CollabHub) run() {
	for {
		select {
		case s := <-h.register:
			h.mu.Lock()
			sessions, ok := h.documents[s.documentID]
			if !ok {
				sessions = make(map[uuid.UUID]*session)
				h.documents[s.documentID] = sessions
				go h.subscribeToDocument(s.documentID)
			}
			if previous, exists := sessions[s.userID]; exists {
				close(previous.send)
			}
			sessions[s.userID] = s
			h.mu.Unlock()

			h.broadcast <- &Event{
				Type:       EventTypeUserJoined,
				DocumentID: s.documentID,
				UserID:     s.userID,
				Timestamp:  time.Now().UTC(),
			}

		case s := <-h.unregister:
			h.mu.Lock()
			if sessions, ok := h.documents[s.documentID]; ok {
				if current, exists := sessions[s.userID]; exists && current == s {
					delete(sessions, s.userID)
					close(s.send)
					if len(sessions) == 0 {
						delete(h.documents, s.documentID)
					}
				}
			}
			h.mu.Unlock()

			h.broadcast <- &Event{
				Type:       EventTypeUserLeft,
				DocumentID: s.documentID,
				UserID:     s.userID,
				Timestamp:  time.Now().UTC(),
			}

		case event := <-h.broadcast:
			h.mu.RLock()
			if sessions, ok := h.documents[event.DocumentID]; ok {
				payload, err := json.Marshal(event)
				if err != nil {
					h.mu.RUnlock()
					continue
				}
				for userID, s := range sessions {
					select {
					case s.send <- payload:
					default:
						// Slow consumer; drop the session
						close(s.send)
						delete(sessions, userID)
					}
				}
			}
			h.mu.RUnlock()
			h.metrics.RecordWebSocketMessage("out", event.Type)
		}
	}
}

// subscribeToDocument bridges the document's Redis channel into the hub.
// Runs until the subscription fails; the next registration resubscribes.
func (h *CollabHub) subscribeToDocument(documentID uuid.UUID) {
	ctx := context.Background()
	channel := fmt.Sprintf("document:%s", documentID)

	pubsub := h.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var versionEvent blockservice.VersionEvent
		if err := json.Unmarshal([]byte(msg.Payload), &versionEvent); err != nil {
			logger.Warn("unparseable pubsub message", zap.String("channel", channel))
			continue
		}

		var payload json.RawMessage
		if versionEvent.Version != nil {
			payload, _ = json.Marshal(versionEvent.Version)
		} else {
			payload, _ = json.Marshal(gin.H{"block_id": versionEvent.BlockID})
		}

		h.broadcast <- &Event{
			Type:       versionEvent.Type,
			DocumentID: versionEvent.DocumentID,
			Payload:    payload,
			Timestamp:  time.Now().UTC(),
		}
	}
}

// ServeWS upgrades an authenticated member's connection and registers their
// session
// GET /v1/ws?document_id=...
func (h *CollabHub) ServeWS(c *gin.Context) {
	documentID, err := uuid.Parse(c.Query("document_id"))
	if err != nil {
		response.ValidationError(c, "Invalid document_id")
		return
	}

	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return
	}

	member, err := h.membership.GetMember(c.Request.Context(), documentID, userID)
	if err != nil || member == nil {
		response.Forbidden(c, "User is not a member of this document")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s := &session{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, 256),
		userID:     userID,
		documentID: documentID,
	}

	if err := h.presence.SetActive(context.Background(), documentID, userID); err != nil {
		logger.Warn("failed to set presence", zap.Error(err))
	}
	h.metrics.WebSocketConnected()

	h.register <- s

	go s.writePump()
	go s.readPump()
}

// Presence lists the members currently active on a document
// GET /v1/documents/:document_id/presence
func (h *CollabHub) Presence(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("document_id"))
	if err != nil {
		response.ValidationError(c, "Invalid document_id")
		return
	}

	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return
	}

	member, err := h.membership.GetMember(c.Request.Context(), documentID, userID)
	if err != nil || member == nil {
		response.Forbidden(c, "User is not a member of this document")
		return
	}

	active, err := h.presence.GetActiveUsers(c.Request.Context(), documentID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"active_users": active})
}

func (s *session) readPump() {
	defer func() {
		s.hub.unregister <- s
		s.conn.Close()
		s.hub.metrics.WebSocketDisconnected()
		if err := s.hub.presence.SetInactive(context.Background(), s.documentID, s.userID); err != nil {
			logger.Warn("failed to clear presence", zap.Error(err))
		}
	}()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := s.hub.presence.Refresh(context.Background(), s.documentID, s.userID); err != nil {
			logger.Warn("failed to refresh presence", zap.Error(err))
		}
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", zap.Error(err))
			}
			break
		}

		var event Event
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}

		// Clients may only send ephemeral events; block versions go through
		// the HTTP submission path where continuity is enforced
		if event.Type != EventTypeCursor {
			continue
		}

		event.UserID = s.userID
		event.DocumentID = s.documentID
		event.Timestamp = time.Now().UTC()

		s.hub.metrics.RecordWebSocketMessage("in", event.Type)
		s.hub.broadcast <- &event
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := s.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
