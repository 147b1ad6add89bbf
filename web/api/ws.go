package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/verigrid/questad/internal/events"
	"github.com/verigrid/questad/internal/protocol"
)

const (
	pingInterval = 30 * time.Second
	pongTimeout  = 90 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient is one connected dashboard. Un-scoped license and system events
// reach every client; job events reach only clients subscribed to that job.
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex // protects conn writes

	mu   sync.Mutex
	subs map[string]*events.Subscription // jobID -> broker subscription
}

func (c *wsClient) writeMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsClient) closeSubs() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		sub.Close()
	}
	c.subs = nil
}

func (s *Server) wsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[api] websocket upgrade failed: %v", err)
			return
		}
		go s.handleWSConnection(conn)
	}
}

func (s *Server) handleWSConnection(conn *websocket.Conn) {
	client := &wsClient{
		conn: conn,
		subs: make(map[string]*events.Subscription),
	}
	defer func() {
		client.closeSubs()
		conn.Close()
	}()

	// Un-scoped broadcasts go to every connection for its lifetime.
	broadcast := s.broker.Subscribe("", events.KindLicenseStatus, events.KindSystemStatus)
	defer broadcast.Close()
	go s.forwardEvents(client, broadcast)

	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ticker.C:
				client.writeMu.Lock()
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				client.writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[api] websocket read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		var env protocol.EnvelopeRaw
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("[api] invalid websocket message: %v", err)
			continue
		}

		switch env.Type {
		case protocol.TypeSubscribeJob:
			var sub protocol.SubscribeMessage
			if err := json.Unmarshal(env.Payload, &sub); err != nil || sub.JobID == "" {
				log.Printf("[api] invalid subscribe payload")
				continue
			}
			s.subscribeJob(client, sub.JobID)

		case protocol.TypeUnsubscribeJob:
			var sub protocol.SubscribeMessage
			if err := json.Unmarshal(env.Payload, &sub); err != nil || sub.JobID == "" {
				log.Printf("[api] invalid unsubscribe payload")
				continue
			}
			s.unsubscribeJob(client, sub.JobID)

		default:
			log.Printf("[api] unknown websocket message type %q", env.Type)
		}
	}
}

func (s *Server) subscribeJob(client *wsClient, jobID string) {
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.subs == nil {
		return // connection already torn down
	}
	if _, ok := client.subs[jobID]; ok {
		return
	}
	sub := s.broker.Subscribe(jobID,
		events.KindJobStatus, events.KindJobProgress, events.KindJobLogs)
	client.subs[jobID] = sub
	go s.forwardEvents(client, sub)
}

func (s *Server) unsubscribeJob(client *wsClient, jobID string) {
	client.mu.Lock()
	defer client.mu.Unlock()
	if sub, ok := client.subs[jobID]; ok {
		sub.Close()
		delete(client.subs, jobID)
	}
}

// forwardEvents pumps one broker subscription onto the wire until the
// subscription closes or the connection dies.
func (s *Server) forwardEvents(client *wsClient, sub *events.Subscription) {
	for ev := range sub.C {
		data, err := protocol.MarshalEnvelope(string(ev.Kind), ev.Payload)
		if err != nil {
			log.Printf("[api] marshaling %s event: %v", ev.Kind, err)
			continue
		}
		if err := client.writeMessage(data); err != nil {
			sub.Close()
			return
		}
	}
}
