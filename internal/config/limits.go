package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// PlayerCap is the most players a game can hold. The compact cell encoding
// keeps the revealing player in 4 bits.
const PlayerCap = 16

type Limits struct {
	MaxRows    int
	MaxCols    int
	MaxPlayers int
	MaxGames   int

	CompletedGameTTL time.Duration
	IdleGameTTL      time.Duration
	SyncInterval     time.Duration
	EvictInterval    time.Duration

	OutboxSize        int
	CompactMinCells   int
	CompactMinViewers int

	MessageRate  float64
	MessageBurst int
}

func DefaultLimits() Limits {
	return Limits{
		MaxRows:           100,
		MaxCols:           100,
		MaxPlayers:        8,
		MaxGames:          1000,
		CompletedGameTTL:  30 * time.Minute,
		IdleGameTTL:       time.Hour,
		SyncInterval:      time.Second,
		EvictInterval:     time.Minute,
		OutboxSize:        128,
		CompactMinCells:   256,
		CompactMinViewers: 8,
		MessageRate:       20,
		MessageBurst:      40,
	}
}

func NewLimits() (*Limits, error) {
	l := DefaultLimits()

	ints := []struct {
		env string
		dst *int
	}{
		{"MAX_ROWS", &l.MaxRows},
		{"MAX_COLS", &l.MaxCols},
		{"MAX_PLAYERS", &l.MaxPlayers},
		{"MAX_GAMES", &l.MaxGames},
		{"OUTBOX_SIZE", &l.OutboxSize},
		{"COMPACT_MIN_CELLS", &l.CompactMinCells},
		{"COMPACT_MIN_VIEWERS", &l.CompactMinViewers},
		{"MESSAGE_BURST", &l.MessageBurst},
	}
	for _, v := range ints {
		if err := lookupInt(v.env, v.dst); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"COMPLETED_GAME_TTL", &l.CompletedGameTTL},
		{"IDLE_GAME_TTL", &l.IdleGameTTL},
		{"SYNC_INTERVAL", &l.SyncInterval},
		{"EVICT_INTERVAL", &l.EvictInterval},
	}
	for _, v := range durations {
		if err := lookupDuration(v.env, v.dst); err != nil {
			return nil, err
		}
	}

	if rate, ok := os.LookupEnv("MESSAGE_RATE"); ok {
		r, err := strconv.ParseFloat(rate, 64)
		if err != nil {
			return nil, fmt.Errorf("unable to parse MESSAGE_RATE: %w", err)
		}
		l.MessageRate = r
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

func (l Limits) Validate() error {
	if l.MaxRows < 1 || l.MaxCols < 1 {
		return fmt.Errorf("MAX_ROWS and MAX_COLS must be positive")
	}
	if l.MaxPlayers < 1 || l.MaxPlayers > PlayerCap {
		return fmt.Errorf("MAX_PLAYERS must be in [1, %d], got %d", PlayerCap, l.MaxPlayers)
	}
	if l.MaxGames < 1 {
		return fmt.Errorf("MAX_GAMES must be positive")
	}
	if l.OutboxSize < 1 {
		return fmt.Errorf("OUTBOX_SIZE must be positive")
	}
	if l.SyncInterval <= 0 || l.EvictInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL and EVICT_INTERVAL must be positive")
	}
	if l.MessageRate <= 0 || l.MessageBurst < 1 {
		return fmt.Errorf("MESSAGE_RATE and MESSAGE_BURST must be positive")
	}
	return nil
}

func lookupInt(env string, dst *int) error {
	s, ok := os.LookupEnv(env)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("unable to convert %s to int: %w", env, err)
	}
	*dst = v
	return nil
}

func lookupDuration(env string, dst *time.Duration) error {
	s, ok := os.LookupEnv(env)
	if !ok {
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("unable to parse %s: %w", env, err)
	}
	*dst = v
	return nil
}
