package symbols

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/divergence-scanner/pkg/config"
	"github.com/sirupsen/logrus"
)

// Store lists the active symbols of an exchange
type Store interface {
	GetActiveSymbols(ctx context.Context, exchange string) ([]string, error)
}

// Manager resolves the instrument list a scan iterates over. The list comes
// either from configuration or from a Store, reloaded every refreshInterval.
type Manager struct {
	static   []string
	store    Store
	exchange string
	logger   *logrus.Entry

	mu              sync.RWMutex
	symbols         []string
	lastRefresh     time.Time
	refreshInterval time.Duration
	now             func() time.Time
}

// NewStaticManager creates a manager over a fixed list
func NewStaticManager(symbols []string, logger *logrus.Logger) *Manager {
	normalized := config.NormalizeSymbols(symbols)
	return &Manager{
		static:  normalized,
		symbols: normalized,
		logger:  logger.WithField("component", "symbols-manager"),
		now:     time.Now,
	}
}

// NewStoreManager creates a manager backed by a Store
func NewStoreManager(store Store, exchange string, logger *logrus.Logger) *Manager {
	return &Manager{
		store:           store,
		exchange:        exchange,
		logger:          logger.WithField("component", "symbols-manager"),
		refreshInterval: 5 * time.Minute,
		now:             time.Now,
	}
}

// SetRefreshInterval changes how long a loaded list is reused
func (m *Manager) SetRefreshInterval(d time.Duration) {
	m.mu.Lock()
	m.refreshInterval = d
	m.mu.Unlock()
}

// Load reads the list from the store
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	loaded, err := m.store.GetActiveSymbols(ctx, m.exchange)
	if err != nil {
		return fmt.Errorf("failed to get symbols from store: %w", err)
	}

	normalized := config.NormalizeSymbols(loaded)
	if len(normalized) == 0 {
		return fmt.Errorf("no active symbols for exchange %s", m.exchange)
	}

	m.mu.Lock()
	m.symbols = normalized
	m.lastRefresh = m.now()
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"exchange": m.exchange,
		"active":   len(normalized),
	}).Info("Symbols loaded")

	return nil
}

// Resolve returns the current list, reloading it first when stale. A failed
// reload keeps serving the previous list.
func (m *Manager) Resolve(ctx context.Context) ([]string, error) {
	if m.store == nil {
		return m.Symbols(), nil
	}

	m.mu.RLock()
	stale := len(m.symbols) == 0 || m.now().Sub(m.lastRefresh) > m.refreshInterval
	m.mu.RUnlock()

	if stale {
		if err := m.Load(ctx); err != nil {
			current := m.Symbols()
			if len(current) == 0 {
				return nil, err
			}
			m.logger.WithError(err).Warn("Symbol reload failed, keeping previous list")
			return current, nil
		}
	}

	return m.Symbols(), nil
}

// Symbols returns a copy of the current list
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, len(m.symbols))
	copy(out, m.symbols)
	return out
}

// Count returns the number of symbols currently loaded
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.symbols)
}
