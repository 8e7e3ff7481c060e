package conquest

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOperation = errors.New("invalid operation")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrStaleVersion     = errors.New("stale snapshot version")
	ErrPersistence      = errors.New("persistence failure")
	ErrSyncTimeout      = errors.New("sync timeout")
	ErrCorruptSnapshot  = errors.New("corrupt snapshot")
	ErrGameOver         = errors.New("game over")
)

// ValidationError describes why an intent or mutation was rejected.
// State is never modified when one is returned.
type ValidationError struct {
	Op      string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Op, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidOperation }

func invalid(op, format string, args ...any) error {
	return &ValidationError{Op: op, Message: fmt.Sprintf(format, args...)}
}

// GameOverError is returned once a single player remains.
type GameOverError struct {
	Winner string
}

func (e *GameOverError) Error() string {
	return "game over: " + e.Winner + " wins"
}

func (e *GameOverError) Unwrap() error { return ErrGameOver }
