// Package dashboard loads trade sets and turns them into the views the
// overview cards, charts and history tables display.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trade-dashboard/internal/analytics"
	"trade-dashboard/internal/cache"
	"trade-dashboard/internal/database"
	"trade-dashboard/internal/events"
)

// Config holds the baselines and default views
type Config struct {
	// ROIBaseline divides each monthly bucket unless ROIUseUserCapital is set
	ROIBaseline       float64
	ROIUseUserCapital bool
	AdminCapital      float64
	ClientDefaultView analytics.DefaultView
	AdminDefaultView  analytics.DefaultView
}

// View is everything the overview surfaces need for one trade set
type View struct {
	Metrics    analytics.MetricsSummary   `json:"metrics"`
	Stats      analytics.PerformanceStats `json:"stats"`
	MonthlyPL  []analytics.MonthlyBucket  `json:"monthly_pl"`
	MonthlyROI []analytics.MonthlyBucket  `json:"monthly_roi"`
	LoadFailed bool                       `json:"load_failed"`
	ComputedAt time.Time                  `json:"computed_at"`
}

// HistoryQuery selects rows of a history table
type HistoryQuery struct {
	Start  *time.Time
	End    *time.Time
	Today  bool
	Month  bool
	Client string
}

// History is a filtered trade table
type History struct {
	analytics.FilterResult
	LoadFailed bool `json:"load_failed"`
}

// Service computes dashboard views
type Service struct {
	source    TradeSource
	snapshots *cache.Snapshots
	bus       *events.EventBus
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time

	// Snapshot generations. A view is only cached if no invalidation of its
	// key happened while it was being computed.
	genMu    sync.Mutex
	userGen  map[string]uint64
	adminGen uint64
}

// NewService creates a dashboard service. snapshots and bus may be nil.
func NewService(source TradeSource, snapshots *cache.Snapshots, bus *events.EventBus, cfg Config, logger zerolog.Logger) *Service {
	if cfg.ClientDefaultView == "" {
		cfg.ClientDefaultView = analytics.ViewAll
	}
	if cfg.AdminDefaultView == "" {
		cfg.AdminDefaultView = analytics.ViewAll
	}
	return &Service{
		source:    source,
		snapshots: snapshots,
		bus:       bus,
		cfg:       cfg,
		logger:    logger.With().Str("component", "dashboard").Logger(),
		now:       time.Now,
		userGen:   make(map[string]uint64),
	}
}

// generation returns the snapshot generations of a user view and the admin overview
func (s *Service) generation(userID string) (uint64, uint64) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.userGen[userID], s.adminGen
}

// invalidate bumps the generations before dropping the snapshots, so a view
// computed from the old trade set can no longer be stored.
func (s *Service) invalidate(ctx context.Context, userID string) {
	s.genMu.Lock()
	s.userGen[userID]++
	s.adminGen++
	s.genMu.Unlock()
	s.snapshots.InvalidateUser(ctx, userID)
}

// storeIfCurrent caches view under key unless the generation moved since
// the load began. A move racing with the write is undone by a delete.
func (s *Service) storeIfCurrent(ctx context.Context, key string, view View, current func() bool) {
	if s.snapshots == nil || !current() {
		return
	}
	s.snapshots.Store(ctx, key, view)
	if !current() {
		s.snapshots.Delete(ctx, key)
	}
}

// Subscribe wires cache invalidation and live metric pushes to the bus
func (s *Service) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventTradesChanged, s.onUserDataChanged)
	bus.Subscribe(events.EventProfileUpdated, s.onUserDataChanged)
}

func (s *Service) onUserDataChanged(ev events.Event) {
	if ev.UserID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.invalidate(ctx, ev.UserID)
	view := s.Overview(ctx, ev.UserID)
	if !view.LoadFailed {
		s.bus.PublishMetricsUpdated(ev.UserID, view.Metrics)
	}
}

func (s *Service) roiBaseline(capital float64) float64 {
	if s.cfg.ROIUseUserCapital {
		return capital
	}
	return s.cfg.ROIBaseline
}

// Compute builds a view from an already loaded set
func (s *Service) Compute(set TradeSet) View {
	return View{
		Metrics:    analytics.Summarize(set.Trades, set.Capital),
		Stats:      analytics.Stats(set.Trades),
		MonthlyPL:  analytics.MonthlyPL(set.Trades),
		MonthlyROI: analytics.MonthlyROI(set.Trades, s.roiBaseline(set.Capital)),
		ComputedAt: s.now().UTC(),
	}
}

// loadSet treats a missing set as empty. Any other failure is logged and
// reported through the second return value.
func (s *Service) loadSet(ctx context.Context, userID string) (TradeSet, bool) {
	set, err := s.source.LoadTradeSet(ctx, userID)
	if err == nil {
		return set, true
	}
	if errors.Is(err, database.ErrNotFound) {
		s.logger.Debug().Str("user_id", userID).Msg("No trade set, showing empty dashboard")
		return TradeSet{}, true
	}
	s.logger.Warn().Err(err).Str("user_id", userID).Msg("Trade source unavailable")
	return TradeSet{}, false
}

// Overview returns a user's dashboard view. It never fails: an unreachable
// source yields the empty view with LoadFailed set.
func (s *Service) Overview(ctx context.Context, userID string) View {
	key := cache.UserViewKey(userID)
	var cached View
	if s.snapshots.Load(ctx, key, &cached) {
		return cached
	}

	gen, _ := s.generation(userID)
	set, ok := s.loadSet(ctx, userID)
	view := s.Compute(set)
	if !ok {
		view.LoadFailed = true
		return view
	}
	s.storeIfCurrent(ctx, key, view, func() bool {
		now, _ := s.generation(userID)
		return now == gen
	})
	return view
}

// AdminOverview aggregates every client's trades against the admin capital
func (s *Service) AdminOverview(ctx context.Context) View {
	key := cache.AdminOverviewKey()
	var cached View
	if s.snapshots.Load(ctx, key, &cached) {
		return cached
	}

	_, gen := s.generation("")
	trades, err := s.source.LoadAllTrades(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Trade source unavailable for admin overview")
		view := s.Compute(TradeSet{Capital: s.cfg.AdminCapital})
		view.LoadFailed = true
		return view
	}
	view := s.Compute(TradeSet{Trades: trades, Capital: s.cfg.AdminCapital})
	s.storeIfCurrent(ctx, key, view, func() bool {
		_, now := s.generation("")
		return now == gen
	})
	return view
}

// History filters a user's own trades. The client filter is ignored here.
func (s *Service) History(ctx context.Context, userID string, q HistoryQuery) History {
	set, ok := s.loadSet(ctx, userID)
	f := analytics.Filter{
		Range:       analytics.DateRange{Start: q.Start, End: q.End},
		Today:       q.Today,
		Month:       q.Month,
		DefaultView: s.cfg.ClientDefaultView,
	}
	return History{FilterResult: f.Apply(set.Trades, s.now()), LoadFailed: !ok}
}

// AdminHistory filters the trades of every client
func (s *Service) AdminHistory(ctx context.Context, q HistoryQuery) History {
	trades, err := s.source.LoadAllTrades(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Trade source unavailable for admin history")
		trades = nil
	}
	f := analytics.Filter{
		Range:       analytics.DateRange{Start: q.Start, End: q.End},
		ClientName:  q.Client,
		Today:       q.Today,
		Month:       q.Month,
		DefaultView: s.cfg.AdminDefaultView,
	}
	return History{FilterResult: f.Apply(trades, s.now()), LoadFailed: err != nil}
}

// PLChart renders the monthly P/L chart of a user.
// analytics.ErrNoChartData means there is nothing to draw.
func (s *Service) PLChart(ctx context.Context, userID string) ([]byte, error) {
	return analytics.RenderPLChart(s.Overview(ctx, userID).MonthlyPL)
}

// ROIChart renders the monthly ROI chart of a user
func (s *Service) ROIChart(ctx context.Context, userID string) ([]byte, error) {
	return analytics.RenderROIChart(s.Overview(ctx, userID).MonthlyROI)
}
