package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/config"
	"pdf-rag/internal/helper"
)

var ErrSessionNotFound = errors.New("session not found")

// Manager owns the sessions served by one process.
type Manager struct {
	cfg       *config.Config
	providers Providers
	newStore  StoreFactory

	mu       sync.RWMutex
	sessions map[string]*RAG
}

func NewManager(cfg *config.Config, providers Providers, newStore StoreFactory) *Manager {
	return &Manager{
		cfg:       cfg,
		providers: providers,
		newStore:  newStore,
		sessions:  make(map[string]*RAG),
	}
}

func (m *Manager) Create(ctx context.Context) (*RAG, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	store, err := m.newStore(ctx, "session-"+id)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	r := NewRAG(id, m.cfg, m.providers, store)

	m.mu.Lock()
	m.sessions[id] = r
	m.mu.Unlock()

	log.Info().Str("session", id).Msg("Session created")
	return r, nil
}

func (m *Manager) Get(id string) (*RAG, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return r, nil
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	r, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	log.Info().Str("session", id).Msg("Session deleted")
	return r.Close()
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close ends every session.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*RAG)
	m.mu.Unlock()

	var errs []error
	for _, r := range sessions {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
