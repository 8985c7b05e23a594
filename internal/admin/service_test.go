package admin

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-dashboard/internal/analytics"
	"trade-dashboard/internal/auth"
	"trade-dashboard/internal/database"
	"trade-dashboard/internal/events"
)

const (
	ashaID = "6f1c2d1e-3b1a-4c55-9a52-0d7f8c1e2a01"
	vikID  = "6f1c2d1e-3b1a-4c55-9a52-0d7f8c1e2a02"
)

func tradeID(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}

type memStore struct {
	mu        sync.Mutex
	users     map[string]*database.User
	profiles  map[string]*database.Profile
	trades    map[string][]analytics.TradeRecord
	sources   map[string]analytics.Source
	suspended map[string]bool
	seq       int
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[string]*database.User{},
		profiles:  map[string]*database.Profile{},
		trades:    map[string][]analytics.TradeRecord{},
		sources:   map[string]analytics.Source{},
		suspended: map[string]bool{},
	}
}

func (m *memStore) addUser(id, email string) {
	m.users[id] = &database.User{ID: id, Email: email}
	m.profiles[id] = &database.Profile{UserID: id, KYCStatus: database.KYCPending}
}

// checkUUID fails like Postgres does when a UUID column is compared to
// malformed text
func checkUUID(ids ...string) error {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("invalid input syntax for type uuid: %q (SQLSTATE 22P02)", id)
		}
	}
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*database.User, error) {
	if err := checkUUID(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id], nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*database.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetProfile(_ context.Context, id string) (*database.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) UpdateProfile(_ context.Context, p *database.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.UserID]; !ok {
		return database.ErrNotFound
	}
	cp := *p
	m.profiles[p.UserID] = &cp
	return nil
}

func (m *memStore) ListClients(context.Context) ([]*database.ClientSummary, error) {
	return nil, nil
}

func (m *memStore) InsertTrades(_ context.Context, userID string, source analytics.Source, trades []analytics.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range trades {
		m.seq++
		trades[i].ID = tradeID(m.seq)
		trades[i].UserID = userID
	}
	m.trades[userID] = append(m.trades[userID], trades...)
	m.sources[userID] = source
	return nil
}

func (m *memStore) UpdateTrade(_ context.Context, userID string, t *analytics.TradeRecord) error {
	if err := checkUUID(userID, t.ID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.trades[userID] {
		if existing.ID == t.ID {
			t.UserID = userID
			m.trades[userID][i] = *t
			return nil
		}
	}
	return database.ErrNotFound
}

func (m *memStore) DeleteTrade(_ context.Context, userID, id string) error {
	if err := checkUUID(userID, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.trades[userID] {
		if existing.ID == id {
			m.trades[userID] = append(m.trades[userID][:i], m.trades[userID][i+1:]...)
			return nil
		}
	}
	return database.ErrNotFound
}

func (m *memStore) SetUserSuspended(_ context.Context, id string, suspended bool) error {
	if err := checkUUID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return database.ErrNotFound
	}
	m.suspended[id] = suspended
	return nil
}

type fakeAccounts struct {
	created    []auth.NewAccount
	loggedOut  []string
	failCreate error
}

func (f *fakeAccounts) CreateAccount(_ context.Context, acct auth.NewAccount) (*database.User, error) {
	if f.failCreate != nil {
		return nil, f.failCreate
	}
	f.created = append(f.created, acct)
	return &database.User{ID: "new-user", Email: strings.ToLower(acct.Email)}, nil
}

func (f *fakeAccounts) LogoutAll(_ context.Context, userID string) error {
	f.loggedOut = append(f.loggedOut, userID)
	return nil
}

func ptr(v float64) *float64 { return &v }

// ============================================================================
// TEST: Accounts
// ============================================================================

func TestCreateUser(t *testing.T) {
	accounts := &fakeAccounts{}
	bus := events.NewEventBus()
	created := make(chan events.Event, 1)
	bus.Subscribe(events.EventUserCreated, func(e events.Event) { created <- e })
	svc := NewService(newMemStore(), accounts, bus, zerolog.Nop())

	u, err := svc.CreateUser(context.Background(), CreateUserRequest{
		Email: "Asha@Example.com", Password: "Sup3r-secret", ClientName: " Asha Rao ", City: "Pune", Capital: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, "new-user", u.ID)
	require.Len(t, accounts.created, 1)
	assert.Equal(t, "Asha Rao", accounts.created[0].Profile.ClientName)
	assert.Equal(t, 5000.0, accounts.created[0].Profile.Capital)
	assert.False(t, accounts.created[0].IsAdmin)

	select {
	case ev := <-created:
		assert.Equal(t, "asha@example.com", ev.Data["email"])
	case <-time.After(time.Second):
		t.Fatal("no USER_CREATED event")
	}

	_, err = svc.CreateUser(context.Background(), CreateUserRequest{Email: "x@example.com", Capital: -1})
	var verr ValidationError
	assert.ErrorAs(t, err, &verr)

	accounts.failCreate = auth.ErrEmailExists
	_, err = svc.CreateUser(context.Background(), CreateUserRequest{Email: "asha@example.com"})
	assert.ErrorIs(t, err, auth.ErrEmailExists)
}

func TestSetSuspended(t *testing.T) {
	store := newMemStore()
	store.addUser(ashaID, "a@example.com")
	accounts := &fakeAccounts{}
	svc := NewService(store, accounts, nil, zerolog.Nop())

	require.NoError(t, svc.SetSuspended(context.Background(), ashaID, true))
	assert.True(t, store.suspended[ashaID])
	assert.Equal(t, []string{ashaID}, accounts.loggedOut)

	require.NoError(t, svc.SetSuspended(context.Background(), ashaID, false))
	assert.Len(t, accounts.loggedOut, 1)

	assert.ErrorIs(t, svc.SetSuspended(context.Background(), "ghost", true), database.ErrNotFound)
}

// ============================================================================
// TEST: Imports
// ============================================================================

func TestImportProfiles(t *testing.T) {
	store := newMemStore()
	store.addUser(ashaID, "asha@example.com")
	store.addUser(vikID, "vikram@example.com")
	store.profiles[vikID].City = "Surat"
	svc := NewService(store, &fakeAccounts{}, nil, zerolog.Nop())

	report, err := svc.ImportProfiles(context.Background(), []analytics.RawTrade{
		{"userId": ashaID, "clientName": "Asha Rao", "capital": "7500"},
		{"emailId": "VIKRAM@example.com", "mobileNumber": "98200", "city": ""},
		{"emailId": "nobody@example.com", "clientName": "Ghost"},
		{"userId": ashaID, "capital": "lots"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Updated)
	require.Len(t, report.Skipped, 2)
	assert.Equal(t, 3, report.Skipped[0].Row)
	assert.Equal(t, 4, report.Skipped[1].Row)

	assert.Equal(t, "Asha Rao", store.profiles[ashaID].ClientName)
	assert.Equal(t, 7500.0, store.profiles[ashaID].Capital)
	assert.Equal(t, "98200", store.profiles[vikID].MobileNumber)
	assert.Equal(t, "Surat", store.profiles[vikID].City, "blank cells keep existing values")
}

func TestImportTrades(t *testing.T) {
	store := newMemStore()
	store.addUser(ashaID, "asha@example.com")
	store.addUser(vikID, "vikram@example.com")
	bus := events.NewEventBus()
	changed := make(chan events.Event, 4)
	bus.Subscribe(events.EventTradesChanged, func(e events.Event) { changed <- e })
	svc := NewService(store, &fakeAccounts{}, bus, zerolog.Nop())

	report, err := svc.ImportTrades(context.Background(), analytics.SourceConsolidated, ashaID, []analytics.RawTrade{
		{"tradeDate": "2025-01-05", "segment": "XAUUSD", "profit": 100},
		{"tradeDate": "garbage", "segment": "EURUSD", "profit": "12.5"},
		{"uid": vikID, "tradeDate": "2025-02-10", "profit": -50},
		{"uid": "ghost", "tradeDate": "2025-02-11", "profit": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Inserted)
	assert.Equal(t, 1, report.Undated)
	assert.Equal(t, map[string]int{ashaID: 2, vikID: 1}, report.PerUser)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, 4, report.Skipped[0].Row)

	require.Len(t, store.trades[ashaID], 2)
	assert.Equal(t, "XAUUSD", store.trades[ashaID][0].Segment)
	assert.Equal(t, "garbage", store.trades[ashaID][1].RawDate)
	assert.Equal(t, analytics.SourceConsolidated, store.sources[ashaID])

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-changed:
			got[ev.UserID] = true
		case <-time.After(time.Second):
			t.Fatal("missing TRADES_CHANGED event")
		}
	}
	assert.Equal(t, map[string]bool{ashaID: true, vikID: true}, got)

	report, err = svc.ImportTrades(context.Background(), analytics.SourceLedger, "", []analytics.RawTrade{{"date": "2025-01-01", "profit": 1}})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Inserted)
	assert.Len(t, report.Skipped, 1)
}

func TestImportTrades_ResolvesOwner(t *testing.T) {
	store := newMemStore()
	store.addUser(ashaID, "asha@example.com")
	store.addUser(vikID, "vikram@example.com")
	svc := NewService(store, &fakeAccounts{}, nil, zerolog.Nop())

	tests := []struct {
		name     string
		source   analytics.Source
		fallback string
		row      analytics.RawTrade
		owner    string
		skipped  string
	}{
		{
			name:   "email only",
			source: analytics.SourceConsolidated,
			row:    analytics.RawTrade{"email": "asha@example.com", "date": "2025-01-05", "symbol": "X", "profit": 10},
			owner:  ashaID,
		},
		{
			name:   "emailId in another case",
			source: analytics.SourceConsolidated,
			row:    analytics.RawTrade{"emailId": "Vikram@Example.com", "tradeDate": "2025-01-06", "profit": 5},
			owner:  vikID,
		},
		{
			name:     "email beats the default user",
			source:   analytics.SourceConsolidated,
			fallback: ashaID,
			row:      analytics.RawTrade{"email": "vikram@example.com", "tradeDate": "2025-01-07", "profit": 1},
			owner:    vikID,
		},
		{
			name:   "malformed uid falls back to email",
			source: analytics.SourceConsolidated,
			row:    analytics.RawTrade{"uid": "not-a-uuid", "email": "asha@example.com", "tradeDate": "2025-01-08", "profit": 2},
			owner:  ashaID,
		},
		{
			name:    "malformed uid alone",
			source:  analytics.SourceConsolidated,
			row:     analytics.RawTrade{"userId": "12345", "tradeDate": "2025-01-09", "profit": 3},
			skipped: "unknown user 12345",
		},
		{
			name:    "unknown email",
			source:  analytics.SourceConsolidated,
			row:     analytics.RawTrade{"email": "nobody@example.com", "tradeDate": "2025-01-10", "profit": 4},
			skipped: "unknown user nobody@example.com",
		},
		{
			name:     "malformed default user",
			source:   analytics.SourceLedger,
			fallback: "ghost",
			row:      analytics.RawTrade{"date": "2025-01-11", "profit": 5},
			skipped:  "unknown user ghost",
		},
		{
			name:     "ledger rows ignore email",
			source:   analytics.SourceLedger,
			fallback: vikID,
			row:      analytics.RawTrade{"email": "asha@example.com", "date": "2025-01-12", "profit": 6},
			owner:    vikID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := svc.ImportTrades(context.Background(), tt.source, tt.fallback, []analytics.RawTrade{tt.row})
			require.NoError(t, err)
			if tt.skipped != "" {
				assert.Equal(t, 0, report.Inserted)
				assert.Equal(t, []SkippedRow{{Row: 1, Reason: tt.skipped}}, report.Skipped)
				return
			}
			assert.Equal(t, 1, report.Inserted)
			assert.Empty(t, report.Skipped)
			assert.Equal(t, map[string]int{tt.owner: 1}, report.PerUser)
		})
	}
}

func TestImportProfiles_MalformedUserID(t *testing.T) {
	store := newMemStore()
	store.addUser(ashaID, "asha@example.com")
	svc := NewService(store, &fakeAccounts{}, nil, zerolog.Nop())

	report, err := svc.ImportProfiles(context.Background(), []analytics.RawTrade{
		{"userId": "bad-id", "emailId": "asha@example.com", "city": "Pune"},
		{"userId": "bad-id", "city": "Goa"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, []SkippedRow{{Row: 2, Reason: "no matching user"}}, report.Skipped)
	assert.Equal(t, "Pune", store.profiles[ashaID].City)
}

func TestAddManualTrade(t *testing.T) {
	store := newMemStore()
	store.addUser(ashaID, "asha@example.com")
	svc := NewService(store, &fakeAccounts{}, nil, zerolog.Nop())
	ctx := context.Background()

	rec, err := svc.AddManualTrade(ctx, ManualTradeRequest{
		UID: ashaID, Date: "2025-03-04", Symbol: "XAUUSD", TradeType: "sell",
		Quantity: 3, Entry: ptr(2010.10), Exit: ptr(2000.05),
	})
	require.NoError(t, err)
	assert.Equal(t, tradeID(1), rec.ID)
	assert.Equal(t, -30.15, rec.Profit, "profit is (exit - entry) * quantity for either direction")
	assert.Equal(t, analytics.TradeSell, rec.TradeType)
	assert.Equal(t, "2025-03-04", rec.DateString())
	assert.Equal(t, analytics.SourceManual, store.sources[ashaID])

	tests := []struct {
		name  string
		req   ManualTradeRequest
		field string
	}{
		{"missing uid", ManualTradeRequest{Date: "2025-03-04", Symbol: "X", TradeType: "BUY", Quantity: 1, Entry: ptr(1), Exit: ptr(2)}, "uid"},
		{"bad date", ManualTradeRequest{UID: ashaID, Date: "yesterday", Symbol: "X", TradeType: "BUY", Quantity: 1, Entry: ptr(1), Exit: ptr(2)}, "date"},
		{"zero quantity", ManualTradeRequest{UID: ashaID, Date: "2025-03-04", Symbol: "X", TradeType: "BUY", Entry: ptr(1), Exit: ptr(2)}, "quantity"},
		{"missing exit", ManualTradeRequest{UID: ashaID, Date: "2025-03-04", Symbol: "X", TradeType: "BUY", Quantity: 1, Entry: ptr(1)}, "exit"},
		{"bad type", ManualTradeRequest{UID: ashaID, Date: "2025-03-04", Symbol: "X", TradeType: "HOLD", Quantity: 1, Entry: ptr(1), Exit: ptr(2)}, "tradeType"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddManualTrade(ctx, tt.req)
			var verr ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	_, err = svc.AddManualTrade(ctx, ManualTradeRequest{
		UID: "ghost", Date: "2025-03-04", Symbol: "X", TradeType: "BUY", Quantity: 1, Entry: ptr(1), Exit: ptr(2),
	})
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestUpdateTrade(t *testing.T) {
	store := newMemStore()
	store.addUser(ashaID, "asha@example.com")
	store.addUser(vikID, "vikram@example.com")
	bus := events.NewEventBus()
	changed := make(chan events.Event, 4)
	bus.Subscribe(events.EventTradesChanged, func(e events.Event) { changed <- e })
	svc := NewService(store, &fakeAccounts{}, bus, zerolog.Nop())
	ctx := context.Background()

	rec, err := svc.AddManualTrade(ctx, ManualTradeRequest{
		UID: ashaID, Date: "2025-03-04", Symbol: "XAUUSD", TradeType: "BUY", Quantity: 1, Entry: ptr(10), Exit: ptr(12),
	})
	require.NoError(t, err)
	<-changed

	edited, err := svc.UpdateTrade(ctx, ashaID, rec.ID, ManualTradeRequest{
		UID: vikID, Date: "2025-03-05", Symbol: "EURUSD", TradeType: "sell", Quantity: 2, Entry: ptr(10), Exit: ptr(7.5),
	})
	require.NoError(t, err)
	assert.Equal(t, rec.ID, edited.ID)
	assert.Equal(t, ashaID, edited.UserID, "the path owner wins over the form uid")
	assert.Equal(t, -5.0, edited.Profit)
	assert.Equal(t, "2025-03-05", edited.DateString())

	require.Len(t, store.trades[ashaID], 1)
	assert.Equal(t, "EURUSD", store.trades[ashaID][0].Segment)
	assert.Empty(t, store.trades[vikID])

	select {
	case ev := <-changed:
		assert.Equal(t, ashaID, ev.UserID)
		assert.Equal(t, 0, ev.Data["added"])
	case <-time.After(time.Second):
		t.Fatal("missing TRADES_CHANGED event")
	}

	valid := ManualTradeRequest{Date: "2025-03-05", Symbol: "X", TradeType: "BUY", Quantity: 1, Entry: ptr(1), Exit: ptr(2)}
	tests := []struct {
		name    string
		userID  string
		tradeID string
		req     ManualTradeRequest
		want    error
	}{
		{"other user's trade", vikID, rec.ID, valid, database.ErrNotFound},
		{"missing trade", ashaID, tradeID(99), valid, database.ErrNotFound},
		{"malformed trade id", ashaID, "t1", valid, database.ErrNotFound},
		{"malformed user id", "ghost", rec.ID, valid, ErrUnknownUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateTrade(ctx, tt.userID, tt.tradeID, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err = svc.UpdateTrade(ctx, ashaID, rec.ID, ManualTradeRequest{Date: "2025-03-05", Symbol: "X", TradeType: "BUY"})
	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "quantity", verr.Field)
}

func TestDeleteTrade(t *testing.T) {
	store := newMemStore()
	store.addUser(ashaID, "asha@example.com")
	bus := events.NewEventBus()
	changed := make(chan events.Event, 4)
	bus.Subscribe(events.EventTradesChanged, func(e events.Event) { changed <- e })
	svc := NewService(store, &fakeAccounts{}, bus, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.ImportTrades(ctx, analytics.SourceLedger, ashaID, []analytics.RawTrade{
		{"date": "2025-01-05", "profit": 10},
		{"date": "2025-01-06", "profit": 20},
	})
	require.NoError(t, err)
	<-changed

	require.NoError(t, svc.DeleteTrade(ctx, ashaID, tradeID(1)))
	require.Len(t, store.trades[ashaID], 1)
	assert.Equal(t, tradeID(2), store.trades[ashaID][0].ID)

	select {
	case ev := <-changed:
		assert.Equal(t, ashaID, ev.UserID)
		assert.Equal(t, -1, ev.Data["added"])
	case <-time.After(time.Second):
		t.Fatal("missing TRADES_CHANGED event")
	}

	assert.ErrorIs(t, svc.DeleteTrade(ctx, ashaID, tradeID(1)), database.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteTrade(ctx, ashaID, "t2"), database.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteTrade(ctx, "ghost", tradeID(2)), database.ErrNotFound)
	assert.Len(t, store.trades[ashaID], 1)
}
