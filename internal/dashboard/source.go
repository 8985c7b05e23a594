package dashboard

import (
	"context"
	"fmt"

	"trade-dashboard/internal/analytics"
	"trade-dashboard/internal/database"
)

// TradeSet is one user's ledger and the capital their ROI is measured against
type TradeSet struct {
	Trades  []analytics.TradeRecord
	Capital float64
}

// TradeSource loads trade sets. LoadTradeSet returns database.ErrNotFound
// when the user has neither a profile nor trades.
type TradeSource interface {
	LoadTradeSet(ctx context.Context, userID string) (TradeSet, error)
	LoadAllTrades(ctx context.Context) ([]analytics.TradeRecord, error)
}

// ledgerStore is the slice of the repository the source reads
type ledgerStore interface {
	GetProfile(ctx context.Context, userID string) (*database.Profile, error)
	ListTradesByUser(ctx context.Context, userID string) ([]analytics.TradeRecord, error)
	ListAllTrades(ctx context.Context) ([]analytics.TradeRecord, error)
}

// RepositorySource reads trade sets from PostgreSQL
type RepositorySource struct {
	store ledgerStore
}

// NewRepositorySource wraps the repository as a TradeSource
func NewRepositorySource(store ledgerStore) *RepositorySource {
	return &RepositorySource{store: store}
}

func (s *RepositorySource) LoadTradeSet(ctx context.Context, userID string) (TradeSet, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return TradeSet{}, fmt.Errorf("failed to load profile: %w", err)
	}
	trades, err := s.store.ListTradesByUser(ctx, userID)
	if err != nil {
		return TradeSet{}, fmt.Errorf("failed to load trades: %w", err)
	}
	if profile == nil {
		if len(trades) == 0 {
			return TradeSet{}, database.ErrNotFound
		}
		return TradeSet{Trades: trades}, nil
	}
	return TradeSet{Trades: trades, Capital: profile.Capital}, nil
}

func (s *RepositorySource) LoadAllTrades(ctx context.Context) ([]analytics.TradeRecord, error) {
	return s.store.ListAllTrades(ctx)
}
