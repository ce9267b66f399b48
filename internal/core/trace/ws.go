package trace

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// upgrader matches the teacher's permissive local-dashboard CheckOrigin
// (leanlp-BTC-coinjoin/internal/api/websocket.go); this server is meant
// to run alongside the CLI on localhost, not face the public internet.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeHTTP upgrades the connection, replays the persisted history,
// then streams live trace events until the client disconnects.
func (r *Recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("trace: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch, history, err := r.Subscribe()
	if err != nil {
		log.Printf("trace: subscribe failed: %v", err)
		return
	}
	defer r.Unsubscribe(ch)

	for _, evt := range history {
		if err := writeJSON(conn, evt); err != nil {
			return
		}
	}

	// Drain client-initiated messages only to notice disconnects; the
	// trace stream is one-directional (server -> client).
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := writeJSON(conn, evt); err != nil {
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}
