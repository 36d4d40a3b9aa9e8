package bots

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"time"

	"github.com/notnil/chess"

	"chesslives/rules"
)

const infinity = 1 << 30

// MinimaxBot plays Black with a fixed-depth alpha-beta search. Before
// searching it rolls once against Profile.Randomness and, on a hit, plays a
// random legal move instead.
//
// The bot draws from its rng, so one bot must not run two searches at once.
type MinimaxBot struct {
	Profile   Profile
	Evaluator PositionEvaluator
	// Verbose logs one line per completed search.
	Verbose bool

	rng    *rand.Rand
	random *RandomBot
}

// SearchResult describes one completed search. Random moves carry no score.
type SearchResult struct {
	Move   rules.Move
	Score  int
	Nodes  int
	Random bool
}

// NewMinimaxBot builds a bot for profile. A nil rng is seeded from the clock.
func NewMinimaxBot(profile Profile, rng *rand.Rand) *MinimaxBot {
	if rng == nil {
		rng = newRand()
	}
	return &MinimaxBot{
		Profile:   profile,
		Evaluator: DefaultEvaluator{},
		rng:       rng,
		random:    NewRandomBot(rng),
	}
}

func newRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// SelectMove is the stateless form of MinimaxBot.BestMove.
func SelectMove(ctx context.Context, pos rules.Position, profile Profile, rng *rand.Rand) (rules.Move, error) {
	return NewMinimaxBot(profile, rng).BestMove(ctx, pos)
}

func (b *MinimaxBot) Name() string {
	return fmt.Sprintf("Minimax Bot (%s, depth %d)", b.Profile.Name, b.Profile.SearchDepth)
}

func (b *MinimaxBot) BestMove(ctx context.Context, pos rules.Position) (rules.Move, error) {
	res, err := b.Search(ctx, pos)
	if err != nil {
		return rules.Move{}, err
	}
	return res.Move, nil
}

// Search picks a move for the side to move and reports how it got there.
func (b *MinimaxBot) Search(ctx context.Context, pos rules.Position) (SearchResult, error) {
	if err := b.Profile.Validate(); err != nil {
		return SearchResult{}, err
	}
	moves := pos.LegalMoves()
	if len(moves) == 0 {
		return SearchResult{}, ErrNoMoveAvailable
	}

	if b.rng.Float64() < b.Profile.Randomness {
		move, err := b.random.pick(moves)
		if err != nil {
			return SearchResult{}, err
		}
		if b.Verbose {
			log.Printf("[bot] %s: random move %s", b.Profile.Name, move)
		}
		return SearchResult{Move: move, Random: true}, nil
	}

	start := time.Now()
	s := &search{eval: b.Evaluator}
	res := SearchResult{Move: moves[0], Score: -infinity}
	for _, move := range moves {
		if err := ctx.Err(); err != nil {
			return SearchResult{}, err
		}
		child, err := apply(pos, move)
		if err != nil {
			return SearchResult{}, err
		}
		score, err := s.minimax(child, b.Profile.SearchDepth-1, -infinity, infinity, false)
		if err != nil {
			return SearchResult{}, err
		}
		if score > res.Score {
			res.Move, res.Score = move, score
		}
	}
	res.Nodes = s.nodes

	if b.Verbose {
		log.Printf("[bot] %s: depth=%d move=%s score=%d nodes=%d took=%s",
			b.Profile.Name, b.Profile.SearchDepth, res.Move, res.Score, res.Nodes, time.Since(start).Round(time.Millisecond))
	}
	return res, nil
}

func apply(pos rules.Position, move rules.Move) (rules.Position, error) {
	child, err := pos.Apply(move)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIllegalMoveApplied, move, err)
	}
	return child, nil
}

// search holds the per-call state of one tree walk.
type search struct {
	eval  PositionEvaluator
	nodes int
}

func (s *search) minimax(pos rules.Position, depth int, alpha, beta int, maximizing bool) (int, error) {
	s.nodes++
	if depth <= 0 || rules.IsTerminal(pos) {
		return s.eval.Evaluate(pos), nil
	}

	if maximizing {
		best := -infinity
		for _, move := range capturesFirst(pos) {
			child, err := apply(pos, move)
			if err != nil {
				return 0, err
			}
			score, err := s.minimax(child, depth-1, alpha, beta, false)
			if err != nil {
				return 0, err
			}
			best = max(best, score)
			alpha = max(alpha, score)
			if beta <= alpha {
				break
			}
		}
		return best, nil
	}

	best := infinity
	for _, move := range capturesFirst(pos) {
		child, err := apply(pos, move)
		if err != nil {
			return 0, err
		}
		score, err := s.minimax(child, depth-1, alpha, beta, true)
		if err != nil {
			return 0, err
		}
		best = min(best, score)
		beta = min(beta, score)
		if beta <= alpha {
			break
		}
	}
	return best, nil
}

// capturesFirst orders the moves below the root so the most valuable
// victims are tried first. Scores are unchanged; only cutoffs come sooner.
// The root keeps generation order so ties resolve the same way.
func capturesFirst(pos rules.Position) []rules.Move {
	legal := pos.LegalMoves()
	gains := make([]int, len(legal))
	order := make([]int, len(legal))
	for i, m := range legal {
		order[i] = i
		if victim := pos.PieceAt(m.To); victim != chess.NoPiece {
			gains[i] = PieceValue(victim.Type())
		}
		if m.Promo != chess.NoPieceType {
			gains[i] += PieceValue(m.Promo)
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return gains[order[a]] > gains[order[b]] })
	moves := make([]rules.Move, len(legal))
	for i, idx := range order {
		moves[i] = legal[idx]
	}
	return moves
}
