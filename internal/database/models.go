package database

import (
	"time"
)

// KYCStatus tracks the identity verification workflow of a client
type KYCStatus string

const (
	KYCPending             KYCStatus = "Pending"
	KYCPendingVerification KYCStatus = "PendingVerification"
	KYCVerified            KYCStatus = "Verified"
	KYCRejected            KYCStatus = "Rejected"
)

// Valid reports whether s is one of the known statuses
func (s KYCStatus) Valid() bool {
	switch s {
	case KYCPending, KYCPendingVerification, KYCVerified, KYCRejected:
		return true
	}
	return false
}

// Profile is the client-facing account record kept alongside a User.
// Broker and MT5 passwords are not stored here.
type Profile struct {
	UserID               string    `json:"user_id"`
	Email                string    `json:"email,omitempty"`
	ClientName           string    `json:"client_name"`
	MobileNumber         string    `json:"mobile_number"`
	DOB                  string    `json:"dob"`
	City                 string    `json:"city"`
	ServiceName          string    `json:"service_name"`
	ClientAPICode        string    `json:"client_api_code"`
	MT5AccountID         string    `json:"mt5_account_id"`
	MT5Server            string    `json:"mt5_server"`
	BrokerEmail          string    `json:"broker_email"`
	BrokerCredentialsSet bool      `json:"broker_credentials_set"`
	Is2FAEnabled         bool      `json:"is_2fa_enabled"`
	KYCStatus            KYCStatus `json:"kyc_status"`
	Capital              float64   `json:"capital"`
	AvatarKey            string    `json:"-"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// KYC document sides
const (
	KYCSideFront = "front"
	KYCSideBack  = "back"
)

// KYCDocument references an uploaded identity document in blob storage
type KYCDocument struct {
	UserID      string    `json:"user_id"`
	Side        string    `json:"side"`
	ObjectKey   string    `json:"object_key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// ClientSummary is one row of the admin client list
type ClientSummary struct {
	UserID     string     `json:"user_id"`
	Email      string     `json:"email"`
	ClientName string     `json:"client_name"`
	KYCStatus  KYCStatus  `json:"kyc_status"`
	Capital    float64    `json:"capital"`
	TradeCount int        `json:"trade_count"`
	TotalPL    float64    `json:"total_pl"`
	Suspended  bool       `json:"suspended"`
	LastLogin  *time.Time `json:"last_login_at,omitempty"`
}
