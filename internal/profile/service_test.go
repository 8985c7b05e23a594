package profile

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-dashboard/internal/database"
	"trade-dashboard/internal/events"
	"trade-dashboard/internal/storage"
	"trade-dashboard/internal/vault"
)

type memStore struct {
	mu       sync.Mutex
	profiles map[string]*database.Profile
	docs     map[string]*database.KYCDocument
}

func newMemStore(ids ...string) *memStore {
	m := &memStore{profiles: map[string]*database.Profile{}, docs: map[string]*database.KYCDocument{}}
	for _, id := range ids {
		m.profiles[id] = &database.Profile{UserID: id, KYCStatus: database.KYCPending, Capital: 2000}
	}
	return m
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

func (m *memStore) SetAvatarKey(_ context.Context, id, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[id].AvatarKey = key
	return nil
}

func (m *memStore) SetKYCStatus(_ context.Context, id string, status database.KYCStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return database.ErrNotFound
	}
	p.KYCStatus = status
	return nil
}

func (m *memStore) UpsertKYCDocument(_ context.Context, d *database.KYCDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.docs[d.UserID+"/"+d.Side] = &cp
	return nil
}

func (m *memStore) ListKYCDocuments(_ context.Context, id string) ([]*database.KYCDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*database.KYCDocument
	for _, side := range []string{database.KYCSideFront, database.KYCSideBack} {
		if d, ok := m.docs[id+"/"+side]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func image(body string) *Upload {
	return &Upload{Body: strings.NewReader(body), Size: int64(len(body)), ContentType: "image/jpeg"}
}

func newTestService(store *memStore, bus *events.EventBus) (*Service, *vault.Client, *storage.Memory) {
	secrets := vault.NewMemoryClient()
	blobs := storage.NewMemory("/api/files")
	return NewService(store, secrets, blobs, bus, zerolog.Nop()), secrets, blobs
}

func TestUpdate_BrokerPasswordMandatory(t *testing.T) {
	store := newMemStore("u1")
	svc, _, _ := newTestService(store, nil)

	_, err := svc.Update(context.Background(), "u1", UpdateRequest{ClientName: "Asha", BrokerPassword: "   "})
	assert.ErrorIs(t, err, ErrBrokerPasswordRequired)

	p, _ := store.GetProfile(context.Background(), "u1")
	assert.Empty(t, p.ClientName, "nothing saved on rejection")
}

func TestUpdate_StoresSecretsOutsideProfile(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("u1")
	svc, secrets, _ := newTestService(store, nil)

	v, err := svc.Update(ctx, "u1", UpdateRequest{
		ClientName:     " Asha Rao ",
		City:           "Pune",
		MT5AccountID:   "5501",
		MT5Password:    "mt5-secret",
		BrokerEmail:    "asha@broker.example",
		BrokerPassword: "broker-secret",
		Is2FAEnabled:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", v.ClientName)
	assert.True(t, v.BrokerCredentialsSet)
	assert.Equal(t, database.KYCPending, v.KYCStatus)
	assert.Equal(t, 2000.0, v.Capital)

	creds, err := secrets.GetCredentials(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "broker-secret", creds.BrokerPassword)
	assert.Equal(t, "mt5-secret", creds.MT5Password)

	_, err = svc.Update(ctx, "ghost", UpdateRequest{BrokerPassword: "x"})
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestUploadAvatar(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("u1")
	svc, _, blobs := newTestService(store, nil)

	_, err := svc.UploadAvatar(ctx, "u1", Upload{Body: strings.NewReader("x"), ContentType: "application/pdf"})
	assert.ErrorIs(t, err, ErrInvalidFile)

	url, err := svc.UploadAvatar(ctx, "u1", *image("avatar"))
	require.NoError(t, err)
	assert.Equal(t, "/api/files/avatars/u1", url)

	obj, err := blobs.Get(ctx, "avatars/u1")
	require.NoError(t, err)
	data, _ := io.ReadAll(obj.Body)
	assert.Equal(t, "avatar", string(data))

	v, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, url, v.AvatarURL)
}

func TestSubmitKYC(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("u1")
	bus := events.NewEventBus()
	submitted := make(chan events.Event, 1)
	bus.Subscribe(events.EventKYCSubmitted, func(e events.Event) { submitted <- e })
	svc, _, blobs := newTestService(store, bus)

	_, err := svc.SubmitKYC(ctx, "u1", image("front"), nil)
	assert.ErrorIs(t, err, ErrKYCFilesRequired)
	p, _ := store.GetProfile(ctx, "u1")
	assert.Equal(t, database.KYCPending, p.KYCStatus)

	kyc, err := svc.SubmitKYC(ctx, "u1", image("front"), image("back"))
	require.NoError(t, err)
	assert.Equal(t, database.KYCPendingVerification, kyc.Status)
	require.Len(t, kyc.Documents, 2)
	assert.Equal(t, "kyc/u1/aadhaar-front.jpg", kyc.Documents[0].ObjectKey)
	assert.Equal(t, "/api/files/kyc/u1/aadhaar-back.jpg", kyc.Documents[1].URL)

	_, err = blobs.Get(ctx, "kyc/u1/aadhaar-back.jpg")
	assert.NoError(t, err)

	select {
	case ev := <-submitted:
		assert.Equal(t, "u1", ev.UserID)
	case <-time.After(time.Second):
		t.Fatal("no KYC_SUBMITTED event")
	}
}

func TestSetKYCStatus(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("u1")
	bus := events.NewEventBus()
	changed := make(chan events.Event, 1)
	bus.Subscribe(events.EventKYCStatusChanged, func(e events.Event) { changed <- e })
	svc, _, _ := newTestService(store, bus)

	assert.ErrorIs(t, svc.SetKYCStatus(ctx, "u1", "Approved"), ErrInvalidStatus)
	assert.ErrorIs(t, svc.SetKYCStatus(ctx, "ghost", database.KYCVerified), database.ErrNotFound)

	require.NoError(t, svc.SetKYCStatus(ctx, "u1", database.KYCVerified))
	kyc, err := svc.KYC(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, database.KYCVerified, kyc.Status)
	assert.Empty(t, kyc.Documents)

	select {
	case ev := <-changed:
		assert.Equal(t, "Verified", ev.Data["status"])
	case <-time.After(time.Second):
		t.Fatal("no KYC_STATUS_CHANGED event")
	}
}
