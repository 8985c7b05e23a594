// Package profile manages client profiles, avatars and KYC submissions.
package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trade-dashboard/internal/database"
	"trade-dashboard/internal/events"
	"trade-dashboard/internal/storage"
	"trade-dashboard/internal/vault"
)

var (
	// ErrBrokerPasswordRequired rejects a profile save without the broker password
	ErrBrokerPasswordRequired = errors.New("broker password is mandatory")
	// ErrKYCFilesRequired rejects a KYC submission missing either side
	ErrKYCFilesRequired = errors.New("both front and back of the identity document are required")
	// ErrInvalidFile rejects uploads of the wrong kind
	ErrInvalidFile = errors.New("unsupported file type")
	// ErrInvalidStatus rejects unknown KYC statuses
	ErrInvalidStatus = errors.New("invalid kyc status")
)

// Store is the persistence the profile service needs
type Store interface {
	GetProfile(ctx context.Context, userID string) (*database.Profile, error)
	UpdateProfile(ctx context.Context, p *database.Profile) error
	SetAvatarKey(ctx context.Context, userID, key string) error
	SetKYCStatus(ctx context.Context, userID string, status database.KYCStatus) error
	UpsertKYCDocument(ctx context.Context, doc *database.KYCDocument) error
	ListKYCDocuments(ctx context.Context, userID string) ([]*database.KYCDocument, error)
}

// Secrets keeps broker credentials out of the database
type Secrets interface {
	StoreCredentials(ctx context.Context, userID string, creds vault.BrokerCredentials) error
}

// Upload is one received file
type Upload struct {
	Body        io.Reader
	Size        int64
	ContentType string
}

// View is a profile with resolved download URLs
type View struct {
	*database.Profile
	AvatarURL string `json:"avatar_url,omitempty"`
}

// UpdateRequest carries the client-editable profile fields.
// KYC status and capital are not editable here.
type UpdateRequest struct {
	ClientName     string `json:"clientName"`
	MobileNumber   string `json:"mobileNumber"`
	DOB            string `json:"dob"`
	City           string `json:"city"`
	ServiceName    string `json:"serviceName"`
	ClientAPICode  string `json:"clientApiCode"`
	MT5AccountID   string `json:"mt5AccountId"`
	MT5Server      string `json:"mt5Server"`
	MT5Password    string `json:"mt5Password"`
	BrokerEmail    string `json:"brokerEmail"`
	BrokerPassword string `json:"brokerPassword"`
	Is2FAEnabled   bool   `json:"is2FAEnabled"`
}

// KYCDocumentView is an uploaded document with a download URL
type KYCDocumentView struct {
	*database.KYCDocument
	URL string `json:"url,omitempty"`
}

// KYCView is a user's verification state
type KYCView struct {
	Status    database.KYCStatus `json:"status"`
	Documents []KYCDocumentView  `json:"documents"`
}

// Service handles profile operations
type Service struct {
	store   Store
	secrets Secrets
	blobs   storage.Store
	bus     *events.EventBus
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService creates a profile service. bus may be nil.
func NewService(store Store, secrets Secrets, blobs storage.Store, bus *events.EventBus, logger zerolog.Logger) *Service {
	return &Service{
		store:   store,
		secrets: secrets,
		blobs:   blobs,
		bus:     bus,
		logger:  logger.With().Str("component", "profile").Logger(),
		now:     time.Now,
	}
}

func (s *Service) load(ctx context.Context, userID string) (*database.Profile, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, database.ErrNotFound
	}
	return p, nil
}

func (s *Service) view(ctx context.Context, p *database.Profile) *View {
	v := &View{Profile: p}
	if p.AvatarKey != "" {
		url, err := s.blobs.URL(ctx, p.AvatarKey)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", p.UserID).Msg("Avatar URL unavailable")
		} else {
			v.AvatarURL = url
		}
	}
	return v
}

// Get returns a user's profile
func (s *Service) Get(ctx context.Context, userID string) (*View, error) {
	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, p), nil
}

// Update saves the editable fields. The broker password is mandatory and
// goes to the secret store; only a "set" flag reaches the database.
func (s *Service) Update(ctx context.Context, userID string, req UpdateRequest) (*View, error) {
	if strings.TrimSpace(req.BrokerPassword) == "" {
		return nil, ErrBrokerPasswordRequired
	}
	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.secrets.StoreCredentials(ctx, userID, vault.BrokerCredentials{
		BrokerPassword: req.BrokerPassword,
		MT5Password:    req.MT5Password,
		UpdatedAt:      s.now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("failed to store broker credentials: %w", err)
	}

	p.ClientName = strings.TrimSpace(req.ClientName)
	p.MobileNumber = strings.TrimSpace(req.MobileNumber)
	p.DOB = strings.TrimSpace(req.DOB)
	p.City = strings.TrimSpace(req.City)
	p.ServiceName = strings.TrimSpace(req.ServiceName)
	p.ClientAPICode = strings.TrimSpace(req.ClientAPICode)
	p.MT5AccountID = strings.TrimSpace(req.MT5AccountID)
	p.MT5Server = strings.TrimSpace(req.MT5Server)
	p.BrokerEmail = strings.TrimSpace(req.BrokerEmail)
	p.Is2FAEnabled = req.Is2FAEnabled
	p.BrokerCredentialsSet = true

	if err := s.store.UpdateProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	s.logger.Info().Str("user_id", userID).Msg("Profile updated")
	s.bus.PublishProfileUpdated(userID)
	return s.view(ctx, p), nil
}

func isImage(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "image/")
}

// UploadAvatar replaces a user's avatar and returns its URL
func (s *Service) UploadAvatar(ctx context.Context, userID string, file Upload) (string, error) {
	if !isImage(file.ContentType) {
		return "", ErrInvalidFile
	}
	if _, err := s.load(ctx, userID); err != nil {
		return "", err
	}

	key := storage.AvatarKey(userID)
	if err := s.blobs.Put(ctx, key, file.ContentType, file.Body, file.Size); err != nil {
		return "", err
	}
	if err := s.store.SetAvatarKey(ctx, userID, key); err != nil {
		return "", err
	}
	return s.blobs.URL(ctx, key)
}

// SubmitKYC uploads both sides of the identity document and moves the
// profile to PendingVerification
func (s *Service) SubmitKYC(ctx context.Context, userID string, front, back *Upload) (*KYCView, error) {
	if front == nil || back == nil || front.Body == nil || back.Body == nil {
		return nil, ErrKYCFilesRequired
	}
	if !isImage(front.ContentType) || !isImage(back.ContentType) {
		return nil, ErrInvalidFile
	}
	if _, err := s.load(ctx, userID); err != nil {
		return nil, err
	}

	sides := []struct {
		side string
		file *Upload
	}{
		{database.KYCSideFront, front},
		{database.KYCSideBack, back},
	}
	for _, sd := range sides {
		key := storage.KYCKey(userID, sd.side)
		if err := s.blobs.Put(ctx, key, sd.file.ContentType, sd.file.Body, sd.file.Size); err != nil {
			return nil, fmt.Errorf("failed to upload %s side: %w", sd.side, err)
		}
		doc := &database.KYCDocument{
			UserID:      userID,
			Side:        sd.side,
			ObjectKey:   key,
			ContentType: sd.file.ContentType,
			SizeBytes:   sd.file.Size,
			UploadedAt:  s.now().UTC(),
		}
		if err := s.store.UpsertKYCDocument(ctx, doc); err != nil {
			return nil, err
		}
	}

	if err := s.store.SetKYCStatus(ctx, userID, database.KYCPendingVerification); err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", userID).Msg("KYC submitted")
	s.bus.PublishKYCSubmitted(userID)
	return s.KYC(ctx, userID)
}

// KYC returns a user's verification status and documents
func (s *Service) KYC(ctx context.Context, userID string) (*KYCView, error) {
	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.ListKYCDocuments(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := &KYCView{Status: p.KYCStatus, Documents: make([]KYCDocumentView, 0, len(docs))}
	for _, d := range docs {
		dv := KYCDocumentView{KYCDocument: d}
		if url, err := s.blobs.URL(ctx, d.ObjectKey); err == nil {
			dv.URL = url
		} else {
			s.logger.Warn().Err(err).Str("key", d.ObjectKey).Msg("KYC document URL unavailable")
		}
		out.Documents = append(out.Documents, dv)
	}
	return out, nil
}

// SetKYCStatus is the admin review step
func (s *Service) SetKYCStatus(ctx context.Context, userID string, status database.KYCStatus) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	if err := s.store.SetKYCStatus(ctx, userID, status); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID).Str("status", string(status)).Msg("KYC status changed")
	s.bus.PublishKYCStatusChanged(userID, string(status))
	return nil
}
