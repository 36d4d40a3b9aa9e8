package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"chesslives/bots"
)

var (
	ErrBadPlayer     = errors.New("meta: invalid player id")
	ErrUnknownPlayer = errors.New("meta: unknown player")
)

var playerPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func validPlayer(player string) error {
	if !playerPattern.MatchString(player) {
		return fmt.Errorf("%w: %q", ErrBadPlayer, player)
	}
	return nil
}

// Store is the load/save boundary for meta state. Loading a player that was
// never saved returns ErrUnknownPlayer.
type Store interface {
	Load(ctx context.Context, player string) (State, error)
	Save(ctx context.Context, player string, s State) error
}

// FileStore keeps one JSON document per player in Dir.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("meta: create store dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (f *FileStore) path(player string) string {
	return filepath.Join(f.Dir, player+".json")
}

func (f *FileStore) Load(ctx context.Context, player string) (State, error) {
	if err := validPlayer(player); err != nil {
		return State{}, err
	}
	data, err := os.ReadFile(f.path(player))
	if errors.Is(err, os.ErrNotExist) {
		return State{}, fmt.Errorf("%w: %s", ErrUnknownPlayer, player)
	}
	if err != nil {
		return State{}, fmt.Errorf("meta: read %s: %w", player, err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("meta: decode %s: %w", player, err)
	}
	return s, nil
}

// Save writes through a temp file so a crash never leaves half a document.
func (f *FileStore) Save(ctx context.Context, player string, s State) error {
	if err := validPlayer(player); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("meta: encode %s: %w", player, err)
	}
	tmp, err := os.CreateTemp(f.Dir, player+".*.tmp")
	if err != nil {
		return fmt.Errorf("meta: save %s: %w", player, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("meta: save %s: %w", player, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("meta: save %s: %w", player, err)
	}
	if err := os.Rename(tmp.Name(), f.path(player)); err != nil {
		return fmt.Errorf("meta: save %s: %w", player, err)
	}
	return nil
}

// Ledger serialises read-modify-write cycles against a Store and applies
// life regeneration whenever a state is read. Players the store has never
// seen start from NewState at the ledger's starting difficulty.
type Ledger struct {
	mu    sync.Mutex
	store Store
	start bots.Difficulty
	now   func() time.Time
}

// NewLedger wraps store. An empty start means novice.
func NewLedger(store Store, start bots.Difficulty) *Ledger {
	if start == "" {
		start = bots.Novice
	}
	return &Ledger{store: store, start: start, now: time.Now}
}

func (l *Ledger) load(ctx context.Context, player string) (State, error) {
	s, err := l.store.Load(ctx, player)
	if errors.Is(err, ErrUnknownPlayer) {
		s = NewState()
		s.Difficulty = l.start
		return s, nil
	}
	return s, err
}

func (l *Ledger) Get(ctx context.Context, player string) (State, error) {
	return l.Update(ctx, player, nil)
}

// Update loads the player's state, regenerates lives, runs fn and saves.
// Nothing is saved when fn fails.
func (l *Ledger) Update(ctx context.Context, player string, fn func(s *State, now time.Time) error) (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := l.load(ctx, player)
	if err != nil {
		return State{}, err
	}
	now := l.now()
	dirty := s.RegenerateLives(now)
	if fn != nil {
		if err := fn(&s, now); err != nil {
			return s, err
		}
		dirty = true
	}
	if dirty {
		if err := l.store.Save(ctx, player, s); err != nil {
			return State{}, err
		}
		log.Printf("[meta] %s: lives=%d score=%d phase=%s", player, s.Lives, s.Score, s.Phase)
	}
	return s, nil
}

// Open returns the store named by kind ("file" or "postgres") and a func
// releasing it.
func Open(ctx context.Context, kind, dir, dsn string) (Store, func() error, error) {
	switch kind {
	case "", "file":
		fs, err := NewFileStore(dir)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() error { return nil }, nil
	case "postgres":
		ps, err := OpenPostgres(ctx, dsn, "")
		if err != nil {
			return nil, nil, err
		}
		return ps, ps.Close, nil
	}
	return nil, nil, fmt.Errorf("meta: unknown store %q", kind)
}
