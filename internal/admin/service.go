// Package admin implements back-office provisioning: accounts, bulk profile
// updates and trade ledger imports.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trade-dashboard/internal/analytics"
	"trade-dashboard/internal/auth"
	"trade-dashboard/internal/database"
	"trade-dashboard/internal/events"
)

// ValidationError rejects a malformed admin request
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ErrUnknownUser is returned when a referenced user does not exist
var ErrUnknownUser = errors.New("unknown user")

// Store is the persistence the admin service needs
type Store interface {
	GetUserByID(ctx context.Context, userID string) (*database.User, error)
	GetUserByEmail(ctx context.Context, email string) (*database.User, error)
	GetProfile(ctx context.Context, userID string) (*database.Profile, error)
	UpdateProfile(ctx context.Context, p *database.Profile) error
	ListClients(ctx context.Context) ([]*database.ClientSummary, error)
	InsertTrades(ctx context.Context, userID string, source analytics.Source, trades []analytics.TradeRecord) error
	UpdateTrade(ctx context.Context, userID string, t *analytics.TradeRecord) error
	DeleteTrade(ctx context.Context, userID, tradeID string) error
	SetUserSuspended(ctx context.Context, userID string, suspended bool) error
}

// Accounts creates login accounts
type Accounts interface {
	CreateAccount(ctx context.Context, acct auth.NewAccount) (*database.User, error)
	LogoutAll(ctx context.Context, userID string) error
}

// Service handles admin operations
type Service struct {
	store    Store
	accounts Accounts
	bus      *events.EventBus
	logger   zerolog.Logger
}

// NewService creates an admin service. bus may be nil.
func NewService(store Store, accounts Accounts, bus *events.EventBus, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		accounts: accounts,
		bus:      bus,
		logger:   logger.With().Str("component", "admin").Logger(),
	}
}

// CreateUserRequest is the manual account creation form
type CreateUserRequest struct {
	Email        string  `json:"email" binding:"required,email"`
	Password     string  `json:"password" binding:"required"`
	ClientName   string  `json:"clientName" binding:"required"`
	MobileNumber string  `json:"mobileNumber"`
	DOB          string  `json:"dob"`
	City         string  `json:"city"`
	ServiceName  string  `json:"serviceName"`
	Capital      float64 `json:"capital"`
}

// CreateUser provisions a client account with its profile
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*database.User, error) {
	if req.Capital < 0 {
		return nil, ValidationError{Field: "capital", Message: "must not be negative"}
	}
	user, err := s.accounts.CreateAccount(ctx, auth.NewAccount{
		Email:    req.Email,
		Password: req.Password,
		Name:     strings.TrimSpace(req.ClientName),
		Profile: database.Profile{
			ClientName:   strings.TrimSpace(req.ClientName),
			MobileNumber: strings.TrimSpace(req.MobileNumber),
			DOB:          strings.TrimSpace(req.DOB),
			City:         strings.TrimSpace(req.City),
			ServiceName:  strings.TrimSpace(req.ServiceName),
			Capital:      req.Capital,
			KYCStatus:    database.KYCPending,
		},
	})
	if err != nil {
		return nil, err
	}
	s.bus.PublishUserCreated(user.ID, user.Email)
	return user, nil
}

// ListClients returns every client with trade aggregates
func (s *Service) ListClients(ctx context.Context) ([]*database.ClientSummary, error) {
	clients, err := s.store.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	if clients == nil {
		clients = []*database.ClientSummary{}
	}
	return clients, nil
}

// SetSuspended blocks or unblocks a client. Suspending revokes every session.
func (s *Service) SetSuspended(ctx context.Context, userID string, suspended bool) error {
	if !validID(userID) {
		return database.ErrNotFound
	}
	if err := s.store.SetUserSuspended(ctx, userID, suspended); err != nil {
		return err
	}
	if suspended {
		if err := s.accounts.LogoutAll(ctx, userID); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to revoke sessions of suspended user")
		}
	}
	s.logger.Info().Str("user_id", userID).Bool("suspended", suspended).Msg("Suspension changed")
	return nil
}

// SkippedRow reports an import row that was not applied
type SkippedRow struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ProfileImportReport summarizes a bulk profile import
type ProfileImportReport struct {
	Updated int          `json:"updated"`
	Skipped []SkippedRow `json:"skipped"`
}

// ImportProfiles merges spreadsheet rows into existing profiles. A row is
// matched by userId, then by emailId; blank cells leave fields unchanged.
// Rows are numbered from 1 after the header.
func (s *Service) ImportProfiles(ctx context.Context, rows []analytics.RawTrade) (*ProfileImportReport, error) {
	report := &ProfileImportReport{Skipped: []SkippedRow{}}
	for i, row := range rows {
		n := i + 1
		userID, err := s.resolveUser(ctx, text(row, "userId"), text(row, "emailId"))
		if err != nil {
			if errors.Is(err, ErrUnknownUser) {
				report.Skipped = append(report.Skipped, SkippedRow{Row: n, Reason: "no matching user"})
				continue
			}
			return report, err
		}

		p, err := s.store.GetProfile(ctx, userID)
		if err != nil {
			return report, err
		}
		if p == nil {
			p = &database.Profile{UserID: userID, KYCStatus: database.KYCPending}
		}
		if err := mergeProfileRow(p, row); err != nil {
			report.Skipped = append(report.Skipped, SkippedRow{Row: n, Reason: err.Error()})
			continue
		}
		if err := s.store.UpdateProfile(ctx, p); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				report.Skipped = append(report.Skipped, SkippedRow{Row: n, Reason: "user has no profile"})
				continue
			}
			return report, err
		}
		report.Updated++
		s.bus.PublishProfileUpdated(userID)
	}

	s.logger.Info().Int("updated", report.Updated).Int("skipped", len(report.Skipped)).Msg("Profile import finished")
	return report, nil
}

// validID reports whether id is a well-formed row id
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// userByID looks a user up; a malformed id matches nobody
func (s *Service) userByID(ctx context.Context, userID string) (*database.User, error) {
	if !validID(userID) {
		return nil, nil
	}
	return s.store.GetUserByID(ctx, userID)
}

// resolveUser finds a user by id, falling back to email when the id is
// blank, malformed or unknown.
func (s *Service) resolveUser(ctx context.Context, userID, email string) (string, error) {
	if userID != "" {
		u, err := s.userByID(ctx, userID)
		if err != nil {
			return "", err
		}
		if u != nil {
			return u.ID, nil
		}
	}
	if email != "" {
		u, err := s.store.GetUserByEmail(ctx, strings.ToLower(email))
		if err != nil {
			return "", err
		}
		if u != nil {
			return u.ID, nil
		}
	}
	return "", ErrUnknownUser
}

// mergeProfileRow copies non-blank cells onto p
func mergeProfileRow(p *database.Profile, row analytics.RawTrade) error {
	fields := []struct {
		key string
		dst *string
	}{
		{"clientName", &p.ClientName},
		{"mobileNumber", &p.MobileNumber},
		{"dob", &p.DOB},
		{"city", &p.City},
		{"serviceName", &p.ServiceName},
		{"clientApiCode", &p.ClientAPICode},
		{"mt5AccountId", &p.MT5AccountID},
		{"mt5Server", &p.MT5Server},
		{"brokerEmail", &p.BrokerEmail},
	}
	for _, f := range fields {
		if v := text(row, f.key); v != "" {
			*f.dst = v
		}
	}
	if v, ok := row["capital"]; ok {
		c, ok := analytics.ToFloat(v)
		if !ok || c < 0 {
			return fmt.Errorf("invalid capital %v", v)
		}
		p.Capital = c
	}
	return nil
}

// TradeImportReport summarizes a ledger import
type TradeImportReport struct {
	Inserted int            `json:"inserted"`
	Undated  int            `json:"undated"`
	Skipped  []SkippedRow   `json:"skipped"`
	PerUser  map[string]int `json:"per_user"`
}

// ImportTrades normalizes raw ledger rows and appends them to the owners'
// ledgers. A row's own uid wins over defaultUserID. Consolidated rows without
// a usable uid are matched by email or emailId. Rows naming nobody are skipped.
func (s *Service) ImportTrades(ctx context.Context, source analytics.Source, defaultUserID string, rows []analytics.RawTrade) (*TradeImportReport, error) {
	records := analytics.Normalize(source, rows)
	report := &TradeImportReport{Skipped: []SkippedRow{}, PerUser: map[string]int{}}

	type ownerKey struct{ uid, email string }
	byUser := make(map[string][]analytics.TradeRecord)
	var order []string
	resolved := make(map[ownerKey]string)
	for i, rec := range records {
		uid, email := rec.UserID, ""
		if source == analytics.SourceConsolidated {
			email = rowEmail(rows[i])
		}
		if uid == "" && email == "" {
			uid = defaultUserID
		}
		if uid == "" && email == "" {
			report.Skipped = append(report.Skipped, SkippedRow{Row: i + 1, Reason: "no user id"})
			continue
		}

		key := ownerKey{uid: uid, email: email}
		owner, checked := resolved[key]
		if !checked {
			id, err := s.resolveUser(ctx, uid, email)
			if err != nil && !errors.Is(err, ErrUnknownUser) {
				return nil, err
			}
			owner = id
			resolved[key] = owner
		}
		if owner == "" {
			who := uid
			if who == "" {
				who = email
			}
			report.Skipped = append(report.Skipped, SkippedRow{Row: i + 1, Reason: "unknown user " + who})
			continue
		}
		if _, seen := byUser[owner]; !seen {
			order = append(order, owner)
		}
		byUser[owner] = append(byUser[owner], rec)
	}

	for _, userID := range order {
		trades := byUser[userID]
		if err := s.store.InsertTrades(ctx, userID, source, trades); err != nil {
			return report, fmt.Errorf("failed to import trades for %s: %w", userID, err)
		}
		for _, t := range trades {
			if !t.HasDate() {
				report.Undated++
			}
		}
		report.Inserted += len(trades)
		report.PerUser[userID] = len(trades)
		s.bus.PublishTradesChanged(userID, len(trades))
	}

	s.logger.Info().
		Str("source", string(source)).
		Int("inserted", report.Inserted).
		Int("undated", report.Undated).
		Int("skipped", len(report.Skipped)).
		Msg("Trade import finished")
	return report, nil
}

func rowEmail(row analytics.RawTrade) string {
	for _, key := range []string{"email", "emailId"} {
		if v := text(row, key); v != "" {
			return strings.ToLower(v)
		}
	}
	return ""
}

// ManualTradeRequest is the admin manual trade form
type ManualTradeRequest struct {
	UID       string   `json:"uid"`
	Date      string   `json:"date"`
	Symbol    string   `json:"symbol"`
	TradeType string   `json:"tradeType"`
	Quantity  float64  `json:"quantity"`
	Entry     *float64 `json:"entry"`
	Exit      *float64 `json:"exit"`
}

func (r ManualTradeRequest) validate() error {
	switch {
	case strings.TrimSpace(r.UID) == "":
		return ValidationError{Field: "uid", Message: "required"}
	case strings.TrimSpace(r.Symbol) == "":
		return ValidationError{Field: "symbol", Message: "required"}
	case r.Quantity <= 0:
		return ValidationError{Field: "quantity", Message: "must be positive"}
	case r.Entry == nil:
		return ValidationError{Field: "entry", Message: "required"}
	case r.Exit == nil:
		return ValidationError{Field: "exit", Message: "required"}
	}
	if d, _ := analytics.ParseDate(r.Date); d.IsZero() {
		return ValidationError{Field: "date", Message: "must be YYYY-MM-DD"}
	}
	switch strings.ToUpper(strings.TrimSpace(r.TradeType)) {
	case analytics.TradeBuy, analytics.TradeSell:
	default:
		return ValidationError{Field: "tradeType", Message: "must be BUY or SELL"}
	}
	return nil
}

// AddManualTrade records one trade entered by an admin. Profit is
// (exit - entry) * quantity rounded to cents, whatever the direction.
func (s *Service) AddManualTrade(ctx context.Context, req ManualTradeRequest) (*analytics.TradeRecord, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	u, err := s.userByID(ctx, req.UID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUnknownUser
	}

	trades := []analytics.TradeRecord{req.record()}
	if err := s.store.InsertTrades(ctx, u.ID, analytics.SourceManual, trades); err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", u.ID).Str("trade_id", trades[0].ID).Msg("Manual trade added")
	s.bus.PublishTradesChanged(u.ID, 1)
	return &trades[0], nil
}

// record builds the stored trade for a validated request
func (r ManualTradeRequest) record() analytics.TradeRecord {
	return analytics.NormalizeOne(analytics.SourceManual, analytics.RawTrade{
		"uid":       r.UID,
		"date":      r.Date,
		"symbol":    r.Symbol,
		"tradeType": r.TradeType,
		"quantity":  r.Quantity,
		"entry":     *r.Entry,
		"exit":      *r.Exit,
		"profit":    analytics.Round2((*r.Exit - *r.Entry) * r.Quantity),
	})
}

// UpdateTrade replaces one trade of a user's ledger with the edited form.
// The uid of req is ignored in favor of userID and profit is recomputed
// the same way as for a new manual trade.
func (s *Service) UpdateTrade(ctx context.Context, userID, tradeID string, req ManualTradeRequest) (*analytics.TradeRecord, error) {
	req.UID = userID
	if err := req.validate(); err != nil {
		return nil, err
	}
	if !validID(tradeID) {
		return nil, database.ErrNotFound
	}

	u, err := s.userByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUnknownUser
	}

	rec := req.record()
	rec.ID = tradeID
	if err := s.store.UpdateTrade(ctx, u.ID, &rec); err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", u.ID).Str("trade_id", tradeID).Msg("Trade updated")
	s.bus.PublishTradesChanged(u.ID, 0)
	return &rec, nil
}

// DeleteTrade removes one trade from a user's ledger
func (s *Service) DeleteTrade(ctx context.Context, userID, tradeID string) error {
	if !validID(userID) || !validID(tradeID) {
		return database.ErrNotFound
	}
	if err := s.store.DeleteTrade(ctx, userID, tradeID); err != nil {
		return err
	}

	s.logger.Info().Str("user_id", userID).Str("trade_id", tradeID).Msg("Trade deleted")
	s.bus.PublishTradesChanged(userID, -1)
	return nil
}
