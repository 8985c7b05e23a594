package auth

import (
	"context"
	"fmt"
)

// SeedAdmin ensures the configured administrator exists.
// An existing account is left untouched; the seed password only applies on creation.
func (s *Service) SeedAdmin(ctx context.Context, email, password, name string) error {
	if email == "" || password == "" {
		s.logger.Warn().Msg("Admin seed skipped: ADMIN_EMAIL or ADMIN_PASSWORD not set")
		return nil
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to check for admin user: %w", err)
	}
	if user != nil {
		if !user.IsAdmin {
			s.logger.Warn().Str("email", email).Msg("Seed admin email belongs to a non-admin account")
		}
		return nil
	}

	admin, err := s.CreateAccount(ctx, NewAccount{
		Email:    email,
		Password: password,
		Name:     name,
		IsAdmin:  true,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	s.logger.Info().Str("user_id", admin.ID).Str("email", email).Msg("Admin user created")
	return nil
}
