package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"gorow/internal/stroke"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type liveMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// LiveStream pushes every stroke to the client as a sample message followed
// by the running stats of the session. A session message is sent whenever
// a new session starts.
func (this *RequestHandler) LiveStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		this.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := this.Broadcaster.Subscribe()
	defer this.Broadcaster.Unsubscribe(sub)
	this.Logger.Debug("live client connected", "subscription", sub.ID)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var live stroke.Accumulator
	lastSession := ""
	for {
		select {
		case <-closed:
			return
		case p, ok := <-sub.C:
			if !ok {
				this.Logger.Warn("live client too slow, dropped", "subscription", sub.ID)
				return
			}

			var messages []liveMessage
			if s := this.Manager.Active(); s != nil && s.ID() != lastSession {
				lastSession = s.ID()
				live.Reset()
				messages = append(messages, liveMessage{Type: "session", Data: newActiveSession(s)})
			}
			live.Add(p)
			messages = append(messages,
				liveMessage{Type: "sample", Data: p},
				liveMessage{Type: "stats", Data: live.Stats()})

			for _, m := range messages {
				if err := conn.WriteJSON(m); err != nil {
					return
				}
			}
		}
	}
}
