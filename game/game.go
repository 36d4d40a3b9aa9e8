// Package game is the desktop host: an ebiten window with the board, a HUD
// for the meta-game and keyboard shortcuts.
package game

import (
	"context"
	"fmt"
	"image/color"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/notnil/chess"

	"chesslives/bots"
	"chesslives/meta"
	"chesslives/session"
)

const (
	DefaultPlayer = "local"

	squareSize   = 80
	hudHeight    = 100
	boardSize    = squareSize * 8
	ScreenWidth  = boardSize
	ScreenHeight = boardSize + hudHeight

	// ledger refresh for life regeneration, in ticks
	refreshTicks = 60
)

var (
	lightSquare    = color.RGBA{240, 217, 181, 255}
	darkSquare     = color.RGBA{181, 136, 99, 255}
	selectedSquare = color.RGBA{246, 246, 105, 255}
	lastMoveSquare = color.RGBA{205, 210, 106, 255}
	targetDot      = color.RGBA{60, 60, 60, 120}
	whitePiece     = color.RGBA{250, 250, 250, 255}
	blackPiece     = color.RGBA{35, 35, 35, 255}
	hudBackground  = color.RGBA{40, 44, 52, 255}
)

var difficultyKeys = map[ebiten.Key]bots.Difficulty{
	ebiten.Key1: bots.Novice,
	ebiten.Key2: bots.Intermediate,
	ebiten.Key3: bots.Advanced,
	ebiten.Key4: bots.Grandmaster,
}

// Game implements ebiten.Game.
type Game struct {
	ledger *meta.Ledger
	player string
	base   session.Options

	mu      sync.Mutex
	sess    *session.Session
	snap    session.Snapshot
	state   meta.State
	message string

	selected     chess.Square
	dragging     bool
	dragX, dragY int
	tick         int
}

// New loads the player's meta state. base supplies the rules backend,
// delay scale and random source of every game started from the window.
func New(ctx context.Context, ledger *meta.Ledger, player string, base session.Options) (*Game, error) {
	if player == "" {
		player = DefaultPlayer
	}
	st, err := ledger.Get(ctx, player)
	if err != nil {
		return nil, err
	}
	return &Game{
		ledger:   ledger,
		player:   player,
		base:     base,
		state:    st,
		selected: chess.NoSquare,
	}, nil
}

// Close discards the running game, if any.
func (g *Game) Close() {
	g.mu.Lock()
	sess := g.sess
	g.sess = nil
	g.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

func (g *Game) current() (*session.Session, session.Snapshot, meta.State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sess, g.snap, g.state
}

func (g *Game) setState(st meta.State, msg string) {
	g.mu.Lock()
	g.state = st
	if msg != "" {
		g.message = msg
	}
	g.mu.Unlock()
}

func (g *Game) report(err error) {
	if err == nil {
		return
	}
	g.mu.Lock()
	g.message = err.Error()
	g.mu.Unlock()
}

func (g *Game) startGame() error {
	st, err := g.ledger.Update(context.Background(), g.player, func(st *meta.State, _ time.Time) error {
		return st.StartGame()
	})
	if err != nil {
		g.setState(st, "")
		return err
	}
	g.Close()

	opts := g.base
	opts.ID = g.player
	opts.Difficulty = st.Difficulty
	opts.OnUpdate = g.onUpdate
	opts.OnGameEnd = g.onGameEnd
	sess, err := session.New(opts)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.sess = sess
	g.snap = sess.Snapshot()
	g.state = st
	g.message = ""
	g.mu.Unlock()
	g.selected, g.dragging = chess.NoSquare, false
	return nil
}

func (g *Game) onUpdate(snap session.Snapshot) {
	g.mu.Lock()
	g.snap = snap
	g.mu.Unlock()
}

func (g *Game) onGameEnd(_ session.Snapshot, r meta.Result) {
	var points int
	st, err := g.ledger.Update(context.Background(), g.player, func(st *meta.State, now time.Time) error {
		points = st.RecordResult(r, now)
		return nil
	})
	if err != nil {
		log.Printf("[game] record %s: %v", r, err)
		return
	}
	msg := fmt.Sprintf("Draw. +%d points", points)
	switch r {
	case meta.Win:
		msg = fmt.Sprintf("Checkmate, you win! +%d points", points)
	case meta.Lose:
		msg = "Checkmate, you lost a life."
	}
	g.setState(st, msg+" Press N for a new game.")
}

func (g *Game) setDifficulty(d bots.Difficulty) error {
	st, err := g.ledger.Update(context.Background(), g.player, func(st *meta.State, _ time.Time) error {
		st.SetDifficulty(d)
		return nil
	})
	if err != nil {
		return err
	}
	sess, _, _ := g.current()
	if sess != nil {
		sess.SetDifficulty(d)
	}
	g.setState(st, fmt.Sprintf("Difficulty: %s (x%d)", d, meta.ScoreMultiplier(d)))
	return nil
}

func (g *Game) watchAd() error {
	st, err := g.ledger.Update(context.Background(), g.player, func(st *meta.State, now time.Time) error {
		return st.WatchAd(now)
	})
	if err != nil {
		return err
	}
	g.setState(st, "Thanks for watching! +1 life")
	return nil
}

func (g *Game) refreshMeta() {
	_, _, st := g.current()
	if st.Lives >= st.MaxLives {
		return
	}
	st, err := g.ledger.Get(context.Background(), g.player)
	if err != nil {
		log.Printf("[game] refresh: %v", err)
		return
	}
	g.setState(st, "")
}

func (g *Game) playMove(from, to chess.Square) error {
	sess, _, _ := g.current()
	if sess == nil {
		return nil
	}
	_, err := sess.PlayerMove(from.String() + to.String())
	return err
}

func (g *Game) Update() error {
	g.tick++
	if g.tick%refreshTicks == 0 {
		g.refreshMeta()
	}

	for key, d := range difficultyKeys {
		if inpututil.IsKeyJustPressed(key) {
			g.report(g.setDifficulty(d))
		}
	}
	sess, snap, st := g.current()
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyN),
		inpututil.IsKeyJustPressed(ebiten.KeyEnter) && st.Phase != meta.PhasePlaying:
		g.report(g.startGame())
		return nil
	case inpututil.IsKeyJustPressed(ebiten.KeyA):
		g.report(g.watchAd())
	case inpututil.IsKeyJustPressed(ebiten.KeyU) && sess != nil:
		_, err := sess.Undo()
		g.report(err)
		g.selected = chess.NoSquare
	case inpututil.IsKeyJustPressed(ebiten.KeyR) && sess != nil:
		_, err := sess.Redo()
		g.report(err)
		g.selected = chess.NoSquare
	}

	if sess == nil || snap.Result != "" || snap.Thinking || snap.Turn != "w" {
		g.dragging = false
		return nil
	}
	g.handleMouse(sess)
	return nil
}

func squareAt(x, y int) (chess.Square, bool) {
	y -= hudHeight
	if x < 0 || x >= boardSize || y < 0 || y >= boardSize {
		return chess.NoSquare, false
	}
	return chess.NewSquare(chess.File(x/squareSize), chess.Rank(7-y/squareSize)), true
}

// handleMouse supports both drag-and-drop and click-then-click moves.
func (g *Game) handleMouse(sess *session.Session) {
	x, y := ebiten.CursorPosition()
	if g.dragging {
		g.dragX, g.dragY = x, y
	}

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		sq, ok := squareAt(x, y)
		if !ok {
			return
		}
		piece := sess.Position().PieceAt(sq)
		if piece != chess.NoPiece && piece.Color() == chess.White {
			g.selected = sq
			g.dragging = true
			g.dragX, g.dragY = x, y
			return
		}
		if g.selected != chess.NoSquare {
			g.report(g.playMove(g.selected, sq))
			g.selected = chess.NoSquare
		}
		return
	}

	if inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft) && g.dragging {
		g.dragging = false
		target, ok := squareAt(x, y)
		if !ok || target == g.selected {
			return
		}
		g.report(g.playMove(g.selected, target))
		g.selected = chess.NoSquare
	}
}

func (g *Game) Draw(screen *ebiten.Image) {
	sess, snap, st := g.current()
	g.drawHUD(screen, snap, st)
	g.drawBoard(screen, sess, snap)

	if sess == nil {
		msg := "Press ENTER to play"
		if st.Lives == 0 {
			msg = "No lives left. Press A to watch an ad"
		}
		ebitenutil.DebugPrintAt(screen, msg, boardSize/2-len(msg)*3, hudHeight+boardSize/2)
	}
}

func (g *Game) drawHUD(screen *ebiten.Image, snap session.Snapshot, st meta.State) {
	vector.DrawFilledRect(screen, 0, 0, ScreenWidth, hudHeight, hudBackground, false)

	lives := strings.Repeat("O", st.Lives) + strings.Repeat(".", st.MaxLives-st.Lives)
	line := fmt.Sprintf("Lives [%s]  Score %d  Difficulty %s (x%d)",
		lives, st.Score, st.Difficulty, meta.ScoreMultiplier(st.Difficulty))
	if next := st.NextLifeAt(); !next.IsZero() {
		line += fmt.Sprintf("  next life in %s", time.Until(next).Round(time.Second))
	}
	ebitenutil.DebugPrintAt(screen, line, 10, 8)

	status := "Your move"
	switch {
	case snap.FEN == "":
		status = "Menu"
	case snap.Status != session.StatusPlaying:
		status = "Game over: " + string(snap.Status)
	case snap.Thinking:
		status = "Bot is thinking..."
	case snap.Turn != "w":
		status = "Bot to move"
	case snap.InCheck:
		status = "Check! Your move"
	}
	ebitenutil.DebugPrintAt(screen, status, 10, 30)

	g.mu.Lock()
	msg := g.message
	g.mu.Unlock()
	ebitenutil.DebugPrintAt(screen, msg, 10, 52)
	ebitenutil.DebugPrintAt(screen, "1-4 difficulty  U undo  R redo  N new game  A watch ad", 10, 76)
}

func (g *Game) drawBoard(screen *ebiten.Image, sess *session.Session, snap session.Snapshot) {
	highlight := map[chess.Square]color.Color{}
	if from, to, ok := squaresOf(snap.LastMove); ok {
		highlight[from], highlight[to] = lastMoveSquare, lastMoveSquare
	}
	if g.selected != chess.NoSquare {
		highlight[g.selected] = selectedSquare
	}

	for rank := 7; rank >= 0; rank-- {
		for file := 0; file < 8; file++ {
			sq := chess.NewSquare(chess.File(file), chess.Rank(rank))
			x, y := float32(file*squareSize), float32(hudHeight+(7-rank)*squareSize)
			var clr color.Color = lightSquare
			if (file+rank)%2 == 0 {
				clr = darkSquare
			}
			if h, ok := highlight[sq]; ok {
				clr = h
			}
			vector.DrawFilledRect(screen, x, y, squareSize, squareSize, clr, false)
		}
	}
	if sess == nil {
		return
	}

	for _, m := range snap.LegalMoves {
		from, to, ok := squaresOf(m)
		if ok && from == g.selected {
			cx, cy := squareCenter(to)
			vector.DrawFilledCircle(screen, cx, cy, squareSize/8, targetDot, true)
		}
	}

	pos := sess.Position()
	for sq := chess.A1; sq <= chess.H8; sq++ {
		piece := pos.PieceAt(sq)
		if piece == chess.NoPiece || (g.dragging && sq == g.selected) {
			continue
		}
		cx, cy := squareCenter(sq)
		drawPiece(screen, piece, cx, cy)
	}
	if g.dragging {
		if piece := pos.PieceAt(g.selected); piece != chess.NoPiece {
			drawPiece(screen, piece, float32(g.dragX), float32(g.dragY))
		}
	}
}

func squareCenter(sq chess.Square) (float32, float32) {
	x := int(sq.File())*squareSize + squareSize/2
	y := hudHeight + (7-int(sq.Rank()))*squareSize + squareSize/2
	return float32(x), float32(y)
}

// drawPiece draws a disc in the piece's colour with its letter on top.
func drawPiece(screen *ebiten.Image, piece chess.Piece, cx, cy float32) {
	fill, rim := whitePiece, blackPiece
	letter := strings.ToUpper(piece.Type().String())
	if piece.Color() == chess.Black {
		fill, rim = blackPiece, whitePiece
		letter = strings.ToLower(letter)
	}
	vector.DrawFilledCircle(screen, cx, cy, squareSize*0.38, rim, true)
	vector.DrawFilledCircle(screen, cx, cy, squareSize*0.35, fill, true)
	ebitenutil.DebugPrintAt(screen, letter, int(cx)-3, int(cy)-8)
}

func squaresOf(uci string) (chess.Square, chess.Square, bool) {
	if len(uci) < 4 {
		return chess.NoSquare, chess.NoSquare, false
	}
	from, ok1 := parseSquare(uci[0:2])
	to, ok2 := parseSquare(uci[2:4])
	return from, to, ok1 && ok2
}

func parseSquare(s string) (chess.Square, bool) {
	if s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return chess.NoSquare, false
	}
	return chess.NewSquare(chess.File(s[0]-'a'), chess.Rank(s[1]-'1')), true
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return ScreenWidth, ScreenHeight
}
