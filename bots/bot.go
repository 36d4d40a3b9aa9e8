// bot.go
package bots

import (
	"context"
	"errors"

	"chesslives/rules"
)

var (
	ErrNoMoveAvailable    = errors.New("bots: no move available")
	ErrIllegalMoveApplied = errors.New("bots: rules engine rejected an enumerated move")
	ErrInvalidProfile     = errors.New("bots: invalid difficulty profile")
)

// ChessBot is implemented by every opponent the hosts can play against.
type ChessBot interface {
	BestMove(ctx context.Context, pos rules.Position) (rules.Move, error)
	Name() string
}

// PositionEvaluator scores a position from Black's point of view.
type PositionEvaluator interface {
	Evaluate(pos rules.Position) int
}
