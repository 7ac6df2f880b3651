package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"routesolver/internal/events"
)

// Solve events over WebSocket, framed like graphql-transport-ws:
// connection_init/connection_ack, subscribe/next/complete, ping/pong.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// subscribePayload optionally narrows a subscription to some event types,
// e.g. {"types":["solve.completed"]}.
type subscribePayload struct {
	Types []string `json:"types"`
}

func (p subscribePayload) matches(typ string) bool {
	if len(p.Types) == 0 {
		return true
	}
	for _, t := range p.Types {
		if strings.EqualFold(t, typ) {
			return true
		}
	}
	return false
}

// SolveEventsWSHandler handles /v1/solves/ws
func (s *Server) SolveEventsWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	subs := map[string]chan events.Event{}
	done := make(chan struct{})
	defer close(done)

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(60 * time.Second)) })

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if err := write(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			if msg.ID == "" {
				_ = write(wsMessage{Type: "error", Payload: json.RawMessage(`{"message":"id required"}`)})
				continue
			}
			if _, dup := subs[msg.ID]; dup {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: json.RawMessage(`{"message":"subscription id already in use"}`)})
				continue
			}
			var pl subscribePayload
			if len(msg.Payload) > 0 {
				if err := json.Unmarshal(msg.Payload, &pl); err != nil {
					_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: json.RawMessage(`{"message":"invalid payload"}`)})
					continue
				}
			}
			ch := s.Broker.Subscribe(events.TopicSolves)
			subs[msg.ID] = ch
			go func(id string, c chan events.Event, pl subscribePayload) {
				for evt := range c {
					if !pl.matches(evt.Type) {
						continue
					}
					payload, _ := json.Marshal(map[string]any{"data": map[string]any{"solveEvents": evt}})
					if err := write(wsMessage{Type: "next", ID: id, Payload: payload}); err != nil {
						return
					}
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch, pl)
		case "complete":
			if ch, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(events.TopicSolves, ch)
				delete(subs, msg.ID)
			}
		}
	}
	for id, ch := range subs {
		s.Broker.Unsubscribe(events.TopicSolves, ch)
		delete(subs, id)
	}
}
