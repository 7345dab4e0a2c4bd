package config

import (
	"net/http"
	"os"
	"slices"

	"github.com/gorilla/websocket"
)

type WebSocket struct {
	Upgrader websocket.Upgrader
}

func NewWebSocket() (*WebSocket, error) {
	readBuffer, writeBuffer := 1024, 4096
	if err := lookupInt("WS_READ_BUFFER", &readBuffer); err != nil {
		return nil, err
	}
	if err := lookupInt("WS_WRITE_BUFFER", &writeBuffer); err != nil {
		return nil, err
	}

	origins := splitList(os.Getenv("WS_ALLOWED_ORIGINS"))

	upgrader := websocket.Upgrader{
		ReadBufferSize:  readBuffer,
		WriteBufferSize: writeBuffer,
		CheckOrigin: func(r *http.Request) bool {
			if len(origins) == 0 {
				return true
			}
			return slices.Contains(origins, r.Header.Get("Origin"))
		},
	}

	ws := &WebSocket{
		Upgrader: upgrader,
	}

	return ws, nil
}
