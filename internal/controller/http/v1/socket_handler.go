package v1

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"franklin/internal/domain/entity"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = pongWait * 9 / 10
	sendBuffer  = 32
	maxReadSize = 4096
)

// Subscriber attaches handlers to a job's progress events.
type Subscriber interface {
	Subscribe(jobID string, handler func(entity.ProgressEvent)) func()
}

// ControlMessage is sent by the client to start or stop watching a job.
type ControlMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
	// RequestID is accepted as an alias of JobID.
	RequestID string `json:"requestId,omitempty"`
}

// SocketMessage is pushed to the client. Progress fields are inlined.
type SocketMessage struct {
	Event string `json:"event"`
	entity.ProgressEvent
}

func UpdateEvent(jobID string) string {
	return "process:" + jobID + ":update"
}

type SocketHandler struct {
	events   Subscriber
	upgrader websocket.Upgrader
	logger   *log.Logger
}

func NewSocketHandler(events Subscriber, logger *log.Logger) *SocketHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &SocketHandler{
		events: events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *SocketHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Printf("websocket upgrade: %v", err)
		return
	}

	s := &socketSession{
		conn:   conn,
		events: h.events,
		logger: h.logger,
		send:   make(chan SocketMessage, sendBuffer),
		done:   make(chan struct{}),
		subs:   make(map[string]func()),
	}
	go s.writePump()
	s.readLoop()
}

type socketSession struct {
	conn   *websocket.Conn
	events Subscriber
	logger *log.Logger
	send   chan SocketMessage
	done   chan struct{}

	mu   sync.Mutex
	subs map[string]func()
}

func (s *socketSession) readLoop() {
	defer s.close()

	s.conn.SetReadLimit(maxReadSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Printf("websocket read: %v", err)
			}
			return
		}

		var msg ControlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.push(SocketMessage{Event: "error", ProgressEvent: entity.ProgressEvent{Message: "malformed message"}})
			continue
		}
		jobID := msg.JobID
		if jobID == "" {
			jobID = msg.RequestID
		}
		if jobID == "" {
			s.push(SocketMessage{Event: "error", ProgressEvent: entity.ProgressEvent{Message: "jobId is required"}})
			continue
		}

		switch msg.Type {
		case "join":
			s.join(jobID)
		case "leave":
			s.leave(jobID)
		default:
			s.push(SocketMessage{Event: "error", ProgressEvent: entity.ProgressEvent{JobID: jobID, Message: "unknown message type " + msg.Type}})
		}
	}
}

func (s *socketSession) join(jobID string) {
	s.mu.Lock()
	if _, ok := s.subs[jobID]; !ok {
		event := UpdateEvent(jobID)
		s.subs[jobID] = s.events.Subscribe(jobID, func(ev entity.ProgressEvent) {
			s.push(SocketMessage{Event: event, ProgressEvent: ev})
		})
	}
	s.mu.Unlock()
	s.push(SocketMessage{Event: "joined", ProgressEvent: entity.ProgressEvent{JobID: jobID}})
}

func (s *socketSession) leave(jobID string) {
	s.mu.Lock()
	if unsub, ok := s.subs[jobID]; ok {
		unsub()
		delete(s.subs, jobID)
	}
	s.mu.Unlock()
	s.push(SocketMessage{Event: "left", ProgressEvent: entity.ProgressEvent{JobID: jobID}})
}

// push queues msg for the writer, dropping it if the client is too slow.
func (s *socketSession) push(msg SocketMessage) {
	select {
	case <-s.done:
	case s.send <- msg:
	default:
		s.logger.Printf("websocket client too slow, dropped %s", msg.Event)
	}
}

func (s *socketSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *socketSession) close() {
	s.mu.Lock()
	for id, unsub := range s.subs {
		unsub()
		delete(s.subs, id)
	}
	s.mu.Unlock()
	close(s.done)
}
