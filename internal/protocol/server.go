package protocol

import (
	"encoding/json"
	"fmt"
)

// ServerMessage is anything the server pushes to a connection.
type ServerMessage interface {
	MessageKind() string
}

type PlayerID struct {
	ID    int    `json:"id"`
	Token string `json:"token"`
}

type GameStarted struct {
	StartedAt int64 `json:"started_at"`
}

type PlayOutcome struct {
	Outcome
}

type Player struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Score        int    `json:"score"`
	Connected    bool   `json:"connected"`
	VictoryClick bool   `json:"victory_click,omitempty"`
}

type PlayerUpdate struct {
	Player
}

type PlayersState []Player

type GameState struct {
	Board
}

type TopScore int

// SyncTimer carries the elapsed game time in seconds.
type SyncTimer int64

type Error struct {
	Message string `json:"message"`
}

func (PlayerID) MessageKind() string     { return "PlayerId" }
func (GameStarted) MessageKind() string  { return "GameStarted" }
func (PlayOutcome) MessageKind() string  { return "PlayOutcome" }
func (PlayerUpdate) MessageKind() string { return "PlayerUpdate" }
func (PlayersState) MessageKind() string { return "PlayersState" }
func (GameState) MessageKind() string    { return "GameState" }
func (TopScore) MessageKind() string     { return "TopScore" }
func (SyncTimer) MessageKind() string    { return "SyncTimer" }
func (Error) MessageKind() string        { return "Error" }

func NewError(err error) Error {
	return Error{Message: err.Error()}
}

type serverEnvelope struct {
	Kind string          `json:"game_message"`
	Data json.RawMessage `json:"data"`
}

// Encode renders m once so the same bytes can be fanned out to every viewer.
func Encode(m ServerMessage) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("unable to encode %s: %w", m.MessageKind(), err)
	}
	return json.Marshal(serverEnvelope{Kind: m.MessageKind(), Data: data})
}

func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var env serverEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, decodeError("invalid json", err)
	}

	var m ServerMessage
	switch env.Kind {
	case "PlayerId":
		m = &PlayerID{}
	case "GameStarted":
		m = &GameStarted{}
	case "PlayOutcome":
		m = &PlayOutcome{}
	case "PlayerUpdate":
		m = &PlayerUpdate{}
	case "PlayersState":
		m = &PlayersState{}
	case "GameState":
		m = &GameState{}
	case "TopScore":
		m = new(TopScore)
	case "SyncTimer":
		m = new(SyncTimer)
	case "Error":
		m = &Error{}
	default:
		return nil, decodeError(fmt.Sprintf("unknown game_message %q", env.Kind), nil)
	}
	if err := json.Unmarshal(env.Data, m); err != nil {
		return nil, decodeError("invalid "+env.Kind, err)
	}
	return deref(m), nil
}

func deref(m ServerMessage) ServerMessage {
	switch v := m.(type) {
	case *PlayerID:
		return *v
	case *GameStarted:
		return *v
	case *PlayOutcome:
		return *v
	case *PlayerUpdate:
		return *v
	case *PlayersState:
		return *v
	case *GameState:
		return *v
	case *TopScore:
		return *v
	case *SyncTimer:
		return *v
	case *Error:
		return *v
	}
	return m
}
