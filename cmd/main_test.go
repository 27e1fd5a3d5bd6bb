package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"storefront/database"
	"storefront/models"
)

func memoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PORT", "0")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("GATEWAY_DRIVER", "fake")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ADMIN_EMAIL", "")
	t.Setenv("ADMIN_PASSWORD", "")
	t.Setenv("NATS_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("AUDIT_DB_PATH", "")
}

func TestRun_ReturnsStartupErrors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		memoryEnv(t)
		t.Setenv("JWT_SECRET", "")

		err := run()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load config")
	})

	t.Run("audit log cannot be opened", func(t *testing.T) {
		memoryEnv(t)
		t.Setenv("AUDIT_DB_PATH", filepath.Join(t.TempDir(), "missing", "audit.db"))

		err := run()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "open payment audit log")
	})
}

func TestSeedAdmin(t *testing.T) {
	ctx := context.Background()
	users := database.NewMemoryUserStore()

	require.NoError(t, seedAdmin(ctx, users, "Admin@Shop.test", "s3cret"))

	admin, err := users.FindByEmail(ctx, "admin@shop.test")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte("s3cret")))

	require.NoError(t, seedAdmin(ctx, users, "admin@shop.test", "other"))
	again, err := users.FindByEmail(ctx, "admin@shop.test")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)
	assert.Equal(t, admin.Password, again.Password)
}
