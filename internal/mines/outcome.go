package mines

import (
	"fmt"

	"github.com/vancomm/minesweeper-arena/internal/board"
)

type Action uint8

const (
	ActionReveal Action = iota
	ActionFlag
	ActionChord
)

func (a Action) String() string {
	switch a {
	case ActionReveal:
		return "reveal"
	case ActionFlag:
		return "flag"
	case ActionChord:
		return "chord"
	}
	return "unknown"
}

type OutcomeKind uint8

const (
	NoChange OutcomeKind = iota
	Success
	Failure
	Victory
)

func (k OutcomeKind) String() string {
	switch k {
	case NoChange:
		return "NoChange"
	case Success:
		return "Success"
	case Failure:
		return "Failure"
	case Victory:
		return "Victory"
	}
	return "Unknown"
}

func (k OutcomeKind) IsTerminal() bool {
	return k == Failure || k == Victory
}

// Delta is a cell that changed during one action.
type Delta struct {
	Point board.Point
	Cell  PlayerCell
}

type Outcome struct {
	Kind   OutcomeKind
	Player int
	// Cells changed by this action, cascade included. For Failure this is the
	// exploded mine only.
	Cells []Delta
	// Mine is the detonated point of a Failure.
	Mine board.Point
	// Final is the fully shown board of a terminal outcome.
	Final *board.Board[PlayerCell]
}

// Revealed counts the safe cells this outcome revealed. Scores are credited
// from it.
func (o Outcome) Revealed() int {
	if o.Kind == Failure {
		return 0
	}
	n := 0
	for _, d := range o.Cells {
		if d.Cell.Kind == CellRevealed && !d.Cell.Mine {
			n++
		}
	}
	return n
}

// Move is one accepted action as recorded in the game log.
type Move struct {
	Seq      int         `json:"seq"`
	Player   int         `json:"player"`
	Action   Action      `json:"action"`
	Point    board.Point `json:"point"`
	Result   OutcomeKind `json:"result"`
	Revealed int         `json:"revealed"`
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	v, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ParseAction accepts both the single-letter and the spelled out form.
func ParseAction(s string) (Action, error) {
	switch s {
	case "r", "reveal", "Reveal":
		return ActionReveal, nil
	case "f", "flag", "Flag":
		return ActionFlag, nil
	case "c", "chord", "Chord":
		return ActionChord, nil
	}
	return 0, fmt.Errorf("%w %q", ErrInvalidAction, s)
}

func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *OutcomeKind) UnmarshalText(text []byte) error {
	for _, v := range []OutcomeKind{NoChange, Success, Failure, Victory} {
		if v.String() == string(text) {
			*k = v
			return nil
		}
	}
	return fmt.Errorf("unknown outcome kind %q", text)
}
