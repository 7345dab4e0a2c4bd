package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vancomm/minesweeper-arena/internal/board"
	"github.com/vancomm/minesweeper-arena/internal/mines"
)

// ClientMessage is one of Join, PlayGame or Play.
type ClientMessage interface {
	clientMessage() string
}

type Join struct {
	Name string `json:"name,omitempty"`
	// Token resumes a previously assigned player id.
	Token    string `json:"token,omitempty"`
	Spectate bool   `json:"spectate,omitempty"`
}

// PlayGame promotes a spectator to a player.
type PlayGame struct{}

type Play struct {
	Action mines.Action `json:"action"`
	Point  board.Point  `json:"point"`
}

func (Join) clientMessage() string     { return "Join" }
func (PlayGame) clientMessage() string { return "PlayGame" }
func (Play) clientMessage() string     { return "Play" }

type clientEnvelope struct {
	Kind string          `json:"client_message"`
	Data json.RawMessage `json:"data,omitempty"`
}

type playWire struct {
	Action *mines.Action `json:"action"`
	Point  *board.Point  `json:"point"`
}

func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, decodeError("invalid json", err)
	}

	switch env.Kind {
	case "Join":
		var join Join
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &join); err != nil {
				return nil, decodeError("invalid Join", err)
			}
		}
		return join, nil
	case "PlayGame":
		return PlayGame{}, nil
	case "Play":
		var wire playWire
		if err := json.Unmarshal(env.Data, &wire); err != nil {
			return nil, decodeError("invalid Play", err)
		}
		if wire.Action == nil {
			return nil, decodeError("Play is missing action", nil)
		}
		if wire.Point == nil {
			return nil, decodeError("Play is missing point", nil)
		}
		return Play{Action: *wire.Action, Point: *wire.Point}, nil
	case "":
		return nil, decodeError("missing client_message", nil)
	}
	return nil, decodeError(fmt.Sprintf("unknown client_message %q", env.Kind), nil)
}

func EncodeClientMessage(m ClientMessage) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(clientEnvelope{Kind: m.clientMessage(), Data: data})
}
