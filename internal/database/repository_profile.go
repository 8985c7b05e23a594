package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// =====================================================
// PROFILE OPERATIONS
// =====================================================

const insertProfileQuery = `
	INSERT INTO user_profiles (
		user_id, client_name, mobile_number, dob, city, service_name, client_api_code,
		mt5_account_id, mt5_server, broker_email, broker_credentials_set, is_2fa_enabled,
		kyc_status, capital, avatar_key
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	RETURNING created_at, updated_at
`

func profileArgs(p *Profile) []interface{} {
	return []interface{}{
		p.UserID, p.ClientName, p.MobileNumber, p.DOB, p.City, p.ServiceName, p.ClientAPICode,
		p.MT5AccountID, p.MT5Server, p.BrokerEmail, p.BrokerCredentialsSet, p.Is2FAEnabled,
		string(p.KYCStatus), p.Capital, p.AvatarKey,
	}
}

const profileSelect = `
	SELECT p.user_id, u.email, p.client_name, p.mobile_number, p.dob, p.city, p.service_name,
		p.client_api_code, p.mt5_account_id, p.mt5_server, p.broker_email, p.broker_credentials_set,
		p.is_2fa_enabled, p.kyc_status, p.capital, p.avatar_key, p.created_at, p.updated_at
	FROM user_profiles p
	JOIN users u ON u.id = p.user_id
`

func scanProfile(row pgx.Row) (*Profile, error) {
	p := &Profile{}
	var status string
	err := row.Scan(
		&p.UserID, &p.Email, &p.ClientName, &p.MobileNumber, &p.DOB, &p.City, &p.ServiceName,
		&p.ClientAPICode, &p.MT5AccountID, &p.MT5Server, &p.BrokerEmail, &p.BrokerCredentialsSet,
		&p.Is2FAEnabled, &status, &p.Capital, &p.AvatarKey, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.KYCStatus = KYCStatus(status)
	return p, nil
}

// GetProfile retrieves a user's profile; (nil, nil) when there is none
func (r *Repository) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	p, err := scanProfile(r.db.Pool.QueryRow(ctx, profileSelect+` WHERE p.user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// EnsureProfile creates an empty profile for userID if none exists
func (r *Repository) EnsureProfile(ctx context.Context, userID string, capital float64) error {
	query := `
		INSERT INTO user_profiles (user_id, capital)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.db.Pool.Exec(ctx, query, userID, capital); err != nil {
		return fmt.Errorf("failed to ensure profile: %w", err)
	}
	return nil
}

// UpdateProfile overwrites the editable profile fields
func (r *Repository) UpdateProfile(ctx context.Context, p *Profile) error {
	query := `
		UPDATE user_profiles SET
			client_name = $2, mobile_number = $3, dob = $4, city = $5, service_name = $6,
			client_api_code = $7, mt5_account_id = $8, mt5_server = $9, broker_email = $10,
			broker_credentials_set = $11, is_2fa_enabled = $12, capital = $13,
			updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $1
		RETURNING updated_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		p.UserID, p.ClientName, p.MobileNumber, p.DOB, p.City, p.ServiceName,
		p.ClientAPICode, p.MT5AccountID, p.MT5Server, p.BrokerEmail,
		p.BrokerCredentialsSet, p.Is2FAEnabled, p.Capital,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

// SetAvatarKey records the blob key of a user's avatar
func (r *Repository) SetAvatarKey(ctx context.Context, userID, key string) error {
	query := `UPDATE user_profiles SET avatar_key = $2, updated_at = CURRENT_TIMESTAMP WHERE user_id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, userID, key)
	if err != nil {
		return fmt.Errorf("failed to set avatar: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetKYCStatus moves a profile to a new KYC status
func (r *Repository) SetKYCStatus(ctx context.Context, userID string, status KYCStatus) error {
	query := `UPDATE user_profiles SET kyc_status = $2, updated_at = CURRENT_TIMESTAMP WHERE user_id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, userID, string(status))
	if err != nil {
		return fmt.Errorf("failed to set kyc status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListClients returns every non-admin user with profile and trade aggregates
func (r *Repository) ListClients(ctx context.Context) ([]*ClientSummary, error) {
	query := `
		SELECT u.id, u.email, COALESCE(p.client_name, ''), COALESCE(p.kyc_status, 'Pending'),
			COALESCE(p.capital, 0), COUNT(t.id), COALESCE(SUM(t.profit), 0), u.suspended, u.last_login_at
		FROM users u
		LEFT JOIN user_profiles p ON p.user_id = u.id
		LEFT JOIN trades t ON t.user_id = u.id
		WHERE u.is_admin = FALSE
		GROUP BY u.id, u.email, p.client_name, p.kyc_status, p.capital, u.suspended, u.last_login_at
		ORDER BY COALESCE(p.client_name, u.email)
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*ClientSummary
	for rows.Next() {
		c := &ClientSummary{}
		var status string
		if err := rows.Scan(&c.UserID, &c.Email, &c.ClientName, &status, &c.Capital,
			&c.TradeCount, &c.TotalPL, &c.Suspended, &c.LastLogin); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		c.KYCStatus = KYCStatus(status)
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// =====================================================
// KYC DOCUMENT OPERATIONS
// =====================================================

// UpsertKYCDocument records or replaces one side of a user's KYC upload
func (r *Repository) UpsertKYCDocument(ctx context.Context, doc *KYCDocument) error {
	query := `
		INSERT INTO kyc_documents (user_id, side, object_key, content_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, side) DO UPDATE SET
			object_key = EXCLUDED.object_key,
			content_type = EXCLUDED.content_type,
			size_bytes = EXCLUDED.size_bytes,
			uploaded_at = CURRENT_TIMESTAMP
		RETURNING uploaded_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		doc.UserID, doc.Side, doc.ObjectKey, doc.ContentType, doc.SizeBytes,
	).Scan(&doc.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to save kyc document: %w", err)
	}
	return nil
}

// ListKYCDocuments returns the uploaded KYC sides of a user
func (r *Repository) ListKYCDocuments(ctx context.Context, userID string) ([]*KYCDocument, error) {
	query := `
		SELECT user_id, side, object_key, content_type, size_bytes, uploaded_at
		FROM kyc_documents WHERE user_id = $1 ORDER BY side DESC
	`
	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list kyc documents: %w", err)
	}
	defer rows.Close()

	var docs []*KYCDocument
	for rows.Next() {
		d := &KYCDocument{}
		if err := rows.Scan(&d.UserID, &d.Side, &d.ObjectKey, &d.ContentType, &d.SizeBytes, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan kyc document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
