package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gatehouse/internal/auth"
)

const (
	demoEmail    = "demo@gatehouse.local"
	demoPassword = "gatehouse-demo"
)

// seedDemoAccount stores a local password account so the in-memory mode can be exercised without a provider.
func seedDemoAccount(ctx context.Context, users auth.UserRepository, hasher auth.PasswordHasher, logger *slog.Logger) error {
	hash, err := hasher.Hash(demoPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if _, err := users.CreateUser(ctx, auth.User{
		ID:           uuid.New(),
		Email:        demoEmail,
		Name:         "Demo User",
		PasswordHash: hash,
		Provider:     auth.ProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastLoginAt:  now,
	}); err != nil {
		return fmt.Errorf("seed demo account: %w", err)
	}

	logger.Info("seeded demo account", "email", demoEmail, "password", demoPassword)
	return nil
}
