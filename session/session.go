// Package session hosts one human-versus-bot game: the human plays White,
// the bot plays Black after a cancellable "thinking" delay.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/notnil/chess"

	"chesslives/bots"
	"chesslives/meta"
	"chesslives/rules"
)

var (
	ErrNotYourTurn    = errors.New("session: not the player's turn")
	ErrGameOver       = errors.New("session: game is over")
	ErrClosed         = errors.New("session: closed")
	ErrNothingToUndo  = errors.New("session: nothing to undo")
	ErrNothingToRedo  = errors.New("session: nothing to redo")
	ErrBotUnavailable = errors.New("session: bot could not move")
)

type Status string

const (
	StatusPlaying   Status = "playing"
	StatusCheckmate Status = "checkmate"
	StatusStalemate Status = "stalemate"
	StatusDraw      Status = "draw"
)

type Options struct {
	ID         string
	Backend    rules.Backend
	FEN        string
	Difficulty bots.Difficulty
	// DelayScale multiplies the profile's thinking delay; 0 skips it.
	DelayScale float64
	Rand       *rand.Rand
	// Bot replaces the difficulty-driven minimax bot when set.
	Bot bots.ChessBot
	// Verbose logs every bot search.
	Verbose   bool
	OnUpdate  func(Snapshot)
	OnGameEnd func(Snapshot, meta.Result)
}

type Snapshot struct {
	ID         string          `json:"id"`
	FEN        string          `json:"fen"`
	Turn       string          `json:"turn"`
	Ply        int             `json:"ply"`
	LastMove   string          `json:"last_move,omitempty"`
	Moves      []string        `json:"moves"`
	Status     Status          `json:"status"`
	Result     meta.Result     `json:"result,omitempty"`
	InCheck    bool            `json:"in_check"`
	Thinking   bool            `json:"thinking"`
	CanUndo    bool            `json:"can_undo"`
	CanRedo    bool            `json:"can_redo"`
	Difficulty bots.Difficulty `json:"difficulty"`
	LegalMoves []string        `json:"legal_moves"`
	Error      string          `json:"error,omitempty"`
}

type entry struct {
	pos  rules.Position
	move string
}

type Session struct {
	mu         sync.Mutex
	opts       Options
	rng        *rand.Rand
	history    []entry
	index      int
	difficulty bots.Difficulty
	bot        bots.ChessBot
	thinking   bool
	gen        uint64
	cancel     context.CancelFunc
	done       chan struct{}
	result     meta.Result
	lastErr    error
	closed     bool
}

func New(opts Options) (*Session, error) {
	fen := opts.FEN
	if fen == "" {
		fen = rules.StartFEN
	}
	pos, err := rules.FromFEN(opts.Backend, fen)
	if err != nil {
		return nil, err
	}
	if opts.Difficulty == "" {
		opts.Difficulty = bots.Novice
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s := &Session{
		opts:       opts,
		rng:        opts.Rand,
		history:    []entry{{pos: pos}},
		difficulty: opts.Difficulty,
	}
	s.bot = s.newBot()

	s.mu.Lock()
	s.scheduleBot()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap, "")
	return s, nil
}

func (s *Session) newBot() bots.ChessBot {
	if s.opts.Bot != nil {
		return s.opts.Bot
	}
	bot := bots.NewMinimaxBot(bots.ProfileFor(s.difficulty), s.rng)
	bot.Verbose = s.opts.Verbose
	return bot
}

func (s *Session) ID() string { return s.opts.ID }

func (s *Session) current() rules.Position { return s.history[s.index].pos }

// Position returns the current position. Positions are immutable.
func (s *Session) Position() rules.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) Difficulty() bots.Difficulty {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.difficulty
}

// SetDifficulty takes effect from the bot's next turn.
func (s *Session) SetDifficulty(d bots.Difficulty) {
	s.mu.Lock()
	s.difficulty = d
	s.bot = s.newBot()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap, "")
}

// PlayerMove plays White's move given in UCI form and schedules the reply.
func (s *Session) PlayerMove(uci string) (Snapshot, error) {
	s.mu.Lock()
	if err := s.playableLocked(); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	pos := s.current()
	if pos.Turn() != chess.White || s.thinking {
		s.mu.Unlock()
		return Snapshot{}, ErrNotYourTurn
	}
	move, err := rules.ParseMove(pos, uci)
	if err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	child, err := pos.Apply(move)
	if err != nil {
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: %v", bots.ErrIllegalMoveApplied, err)
	}
	s.push(child, move.String())
	result := s.settleLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(snap, result)
	return snap, nil
}

func (s *Session) playableLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.result != "" {
		return ErrGameOver
	}
	return nil
}

func (s *Session) push(pos rules.Position, move string) {
	s.history = append(s.history[:s.index+1], entry{pos: pos, move: move})
	s.index++
}

// settleLocked records a finished game or hands the turn to the bot.
func (s *Session) settleLocked() meta.Result {
	pos := s.current()
	switch {
	case pos.Checkmate():
		if pos.Turn() == chess.Black {
			s.result = meta.Win
		} else {
			s.result = meta.Lose
		}
	case pos.Draw():
		s.result = meta.Draw
	default:
		s.scheduleBot()
		return ""
	}
	log.Printf("[session] %s: game over (%s) after %d plies", s.opts.ID, s.result, s.index)
	return s.result
}

// scheduleBot starts the bot's turn if Black is to move. The previous
// worker is awaited before searching so only one search runs at a time.
func (s *Session) scheduleBot() {
	pos := s.current()
	if s.closed || pos.Turn() != chess.Black || rules.IsTerminal(pos) {
		return
	}
	s.gen++
	ctx, cancel := context.WithCancel(context.Background())
	prev := s.done
	done := make(chan struct{})
	s.cancel, s.done, s.thinking = cancel, done, true
	s.lastErr = nil

	delay := time.Duration(float64(bots.ProfileFor(s.difficulty).ThinkingDelay) * s.opts.DelayScale)
	go s.think(ctx, s.gen, pos, s.bot, delay, prev, done)
}

func (s *Session) think(ctx context.Context, gen uint64, pos rules.Position, bot bots.ChessBot, delay time.Duration, prev, done chan struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	if ctx.Err() != nil {
		return
	}

	move, err := bot.BestMove(ctx, pos)

	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		return
	}
	s.thinking, s.cancel = false, nil
	var result meta.Result
	if err == nil {
		var child rules.Position
		if child, err = pos.Apply(move); err == nil {
			s.push(child, move.String())
			result = s.settleLocked()
		}
	}
	if err != nil {
		s.lastErr = fmt.Errorf("%w: %v", ErrBotUnavailable, err)
		log.Printf("[session] %s: bot failed: %v", s.opts.ID, err)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(snap, result)
}

// stopLocked discards any pending bot turn.
func (s *Session) stopLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.thinking = false
}

// Wait blocks until the pending bot turn, if any, has finished.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Undo steps back to White's previous turn, discarding a pending bot move.
func (s *Session) Undo() (Snapshot, error) {
	s.mu.Lock()
	if err := s.playableLocked(); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	target := s.undoTarget()
	if target < 0 {
		s.mu.Unlock()
		return Snapshot{}, ErrNothingToUndo
	}
	s.stopLocked()
	s.index = target
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(snap, "")
	return snap, nil
}

// undoTarget is the latest earlier ply with White to move, or -1.
func (s *Session) undoTarget() int {
	for i := s.index - 1; i >= 0; i-- {
		if s.history[i].pos.Turn() == chess.White {
			return i
		}
	}
	return -1
}

// Redo replays the player move and the bot reply that were undone.
func (s *Session) Redo() (Snapshot, error) {
	s.mu.Lock()
	if err := s.playableLocked(); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	if s.thinking || s.index+2 >= len(s.history) {
		s.mu.Unlock()
		return Snapshot{}, ErrNothingToRedo
	}
	s.index += 2
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(snap, "")
	return snap, nil
}

// Reset starts over from the initial position of the session.
func (s *Session) Reset() Snapshot {
	s.mu.Lock()
	s.stopLocked()
	s.history = s.history[:1]
	s.index = 0
	s.result = ""
	s.lastErr = nil
	s.scheduleBot()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(snap, "")
	return snap
}

// Close discards any pending bot turn; the session rejects further moves.
func (s *Session) Close() {
	s.mu.Lock()
	s.stopLocked()
	s.closed = true
	s.mu.Unlock()
}

func (s *Session) snapshotLocked() Snapshot {
	pos := s.current()
	snap := Snapshot{
		ID:         s.opts.ID,
		FEN:        pos.FEN(),
		Turn:       "w",
		Ply:        s.index,
		LastMove:   s.history[s.index].move,
		Status:     statusOf(pos),
		Result:     s.result,
		InCheck:    pos.InCheck(),
		Thinking:   s.thinking,
		Difficulty: s.difficulty,
		Moves:      make([]string, 0, s.index),
		LegalMoves: []string{},
	}
	for _, e := range s.history[1 : s.index+1] {
		snap.Moves = append(snap.Moves, e.move)
	}
	if pos.Turn() == chess.Black {
		snap.Turn = "b"
	}
	if s.result == "" {
		snap.CanUndo = s.undoTarget() >= 0
		snap.CanRedo = !s.thinking && s.index+2 < len(s.history)
		if pos.Turn() == chess.White {
			for _, m := range pos.LegalMoves() {
				snap.LegalMoves = append(snap.LegalMoves, m.String())
			}
		}
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}
	return snap
}

func statusOf(pos rules.Position) Status {
	switch {
	case pos.Checkmate():
		return StatusCheckmate
	case pos.Stalemate():
		return StatusStalemate
	case pos.Draw():
		return StatusDraw
	}
	return StatusPlaying
}

func (s *Session) emit(snap Snapshot, result meta.Result) {
	if s.opts.OnUpdate != nil {
		s.opts.OnUpdate(snap)
	}
	if result != "" && s.opts.OnGameEnd != nil {
		s.opts.OnGameEnd(snap, result)
	}
}
