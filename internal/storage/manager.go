package storage

import (
	"fmt"

	"github.com/rjcarver/benchfolio/internal/common"
	"github.com/rjcarver/benchfolio/internal/interfaces"
)

// Manager aggregates the storage backends behind the StorageManager interface.
type Manager struct {
	store      *Store
	prices     interfaces.PriceStorage
	portfolios interfaces.PortfolioStorage
	logger     *common.Logger
}

// NewManager opens the BadgerHold store and wires the typed storages.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	store, err := NewStore(logger, config.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	return &Manager{
		store:      store,
		prices:     NewPriceStorage(store, logger),
		portfolios: NewPortfolioStorage(store, logger),
		logger:     logger,
	}, nil
}

// NewManagerWithStore wires typed storages over an existing store.
// Used by tests that manage the store lifecycle themselves.
func NewManagerWithStore(logger *common.Logger, store *Store) *Manager {
	return &Manager{
		store:      store,
		prices:     NewPriceStorage(store, logger),
		portfolios: NewPortfolioStorage(store, logger),
		logger:     logger,
	}
}

// PriceStorage returns the price storage backend.
func (m *Manager) PriceStorage() interfaces.PriceStorage {
	return m.prices
}

// PortfolioStorage returns the portfolio storage backend.
func (m *Manager) PortfolioStorage() interfaces.PortfolioStorage {
	return m.portfolios
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

// Ensure Manager implements StorageManager
var _ interfaces.StorageManager = (*Manager)(nil)
