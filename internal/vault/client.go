package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/vault/api"

	"trade-dashboard/config"
)

// ErrNotFound is returned when no credentials are stored for a user
var ErrNotFound = errors.New("credentials not found")

// BrokerCredentials are the secrets a client shares with the desk.
// They never touch the profiles table.
type BrokerCredentials struct {
	BrokerPassword string    `json:"broker_password"`
	MT5Password    string    `json:"mt5_password,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Client wraps the HashiCorp Vault KV v2 engine.
// With Vault disabled, secrets live in process memory only.
type Client struct {
	client       *api.Client
	config       config.VaultConfig
	mu           sync.RWMutex
	cache        map[string]*BrokerCredentials
	cacheEnabled bool
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config:       cfg,
			cache:        make(map[string]*BrokerCredentials),
			cacheEnabled: true,
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{
		client:       client,
		config:       cfg,
		cache:        make(map[string]*BrokerCredentials),
		cacheEnabled: true,
	}, nil
}

// NewMemoryClient returns a client that keeps secrets in memory
func NewMemoryClient() *Client {
	c, _ := NewClient(config.VaultConfig{})
	return c
}

// StoreCredentials writes a user's broker credentials
func (c *Client) StoreCredentials(ctx context.Context, userID string, creds BrokerCredentials) error {
	if creds.UpdatedAt.IsZero() {
		creds.UpdatedAt = time.Now().UTC()
	}

	if c.config.Enabled {
		secretData := map[string]interface{}{
			"data": map[string]interface{}{
				"broker_password": creds.BrokerPassword,
				"mt5_password":    creds.MT5Password,
				"updated_at":      creds.UpdatedAt.Format(time.RFC3339),
			},
		}
		if _, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(userID), secretData); err != nil {
			return fmt.Errorf("failed to store credentials in vault: %w", err)
		}
	}

	if c.cacheEnabled || !c.config.Enabled {
		c.mu.Lock()
		c.cache[userID] = &creds
		c.mu.Unlock()
	}
	return nil
}

// GetCredentials reads a user's broker credentials
func (c *Client) GetCredentials(ctx context.Context, userID string) (*BrokerCredentials, error) {
	c.mu.RLock()
	cached, ok := c.cache[userID]
	c.mu.RUnlock()
	if ok && (c.cacheEnabled || !c.config.Enabled) {
		cp := *cached
		return &cp, nil
	}

	if !c.config.Enabled {
		return nil, ErrNotFound
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, ErrNotFound
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	creds := &BrokerCredentials{
		BrokerPassword: getString(data, "broker_password"),
		MT5Password:    getString(data, "mt5_password"),
	}
	if ts, err := time.Parse(time.RFC3339, getString(data, "updated_at")); err == nil {
		creds.UpdatedAt = ts
	}

	if c.cacheEnabled {
		c.mu.Lock()
		c.cache[userID] = creds
		c.mu.Unlock()
	}
	cp := *creds
	return &cp, nil
}

// DeleteCredentials removes every version of a user's credentials
func (c *Client) DeleteCredentials(ctx context.Context, userID string) error {
	c.mu.Lock()
	delete(c.cache, userID)
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}
	if _, err := c.client.Logical().DeleteWithContext(ctx, c.metadataPath(userID)); err != nil {
		return fmt.Errorf("failed to delete credentials from vault: %w", err)
	}
	return nil
}

// SetCacheEnabled enables or disables the read-through cache
func (c *Client) SetCacheEnabled(enabled bool) {
	c.mu.Lock()
	c.cacheEnabled = enabled
	c.mu.Unlock()
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func (c *Client) secretPath(userID string) string {
	return fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, userID)
}

func (c *Client) metadataPath(userID string) string {
	return fmt.Sprintf("%s/metadata/%s/%s", c.config.MountPath, c.config.SecretPath, userID)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
