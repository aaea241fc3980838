package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"solarsim/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// telemetryFrame is one streamed update covering the whole fleet.
type telemetryFrame struct {
	Type      string                      `json:"type"`
	Timestamp time.Time                   `json:"timestamp"`
	Plants    map[string]model.PlantState `json:"plants"`
}

// telemetryStreamHandler upgrades the connection and pushes the full fleet
// state on a fixed cadence until the client goes away. Reads are drained in a
// separate goroutine so close frames and pings are handled while we write.
func (s *Server) telemetryStreamHandler(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(s.currentFrame()); err != nil {
		return
	}

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.currentFrame()); err != nil {
				return
			}
		}
	}
}

func (s *Server) currentFrame() telemetryFrame {
	states := s.store.All()
	plants := make(map[string]model.PlantState, len(states))
	for _, st := range states {
		plants[st.PlantID] = st
	}
	return telemetryFrame{
		Type:      "telemetry",
		Timestamp: time.Now().UTC(),
		Plants:    plants,
	}
}
