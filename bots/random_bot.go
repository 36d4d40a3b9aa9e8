package bots

import (
	"context"
	"math/rand"

	"chesslives/rules"
)

// RandomBot plays a uniformly random legal move.
type RandomBot struct {
	rng *rand.Rand
}

func NewRandomBot(rng *rand.Rand) *RandomBot {
	if rng == nil {
		rng = newRand()
	}
	return &RandomBot{rng: rng}
}

func (b *RandomBot) BestMove(ctx context.Context, pos rules.Position) (rules.Move, error) {
	if err := ctx.Err(); err != nil {
		return rules.Move{}, err
	}
	return b.pick(pos.LegalMoves())
}

func (b *RandomBot) pick(moves []rules.Move) (rules.Move, error) {
	if len(moves) == 0 {
		return rules.Move{}, ErrNoMoveAvailable
	}
	return moves[b.rng.Intn(len(moves))], nil
}

func (b *RandomBot) Name() string {
	return "Random Bot"
}
