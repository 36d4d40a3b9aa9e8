package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"chesslives/session"
)

var ErrGameNotFound = errors.New("server: game not found")

type game struct {
	id        string
	player    string
	sess      *session.Session
	createdAt time.Time
}

// Manager indexes live sessions by ID. A game is only visible to the
// player who created it.
type Manager struct {
	mu    sync.RWMutex
	games map[string]*game
}

func NewManager() *Manager {
	return &Manager{games: make(map[string]*game)}
}

// NewID returns a fresh game ID.
func (m *Manager) NewID() string {
	return uuid.NewString()
}

func (m *Manager) add(g *game) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[g.id] = g
}

func (m *Manager) get(id, player string) (*game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok || g.player != player {
		return nil, ErrGameNotFound
	}
	return g, nil
}

func (m *Manager) remove(id, player string) (*game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok || g.player != player {
		return nil, ErrGameNotFound
	}
	delete(m.games, id)
	return g, nil
}

func (m *Manager) forPlayer(player string) []*game {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*game
	for _, g := range m.games {
		if g.player == player {
			out = append(out, g)
		}
	}
	return out
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.games)
}

// closeAll closes and forgets every session.
func (m *Manager) closeAll() []*game {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*game, 0, len(m.games))
	for id, g := range m.games {
		g.sess.Close()
		out = append(out, g)
		delete(m.games, id)
	}
	return out
}
