package engine_test

import (
	"errors"
	"testing"

	"github.com/Halamis85/lpa-web-v2/internal/domain"
	"github.com/Halamis85/lpa-web-v2/internal/engine/auth"
	"github.com/Halamis85/lpa-web-v2/internal/repo"
)

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "U1", "u1@plant.example", domain.RoleAuditor)

	raw, key, err := env.Engine.CreateAPIKey(env.Ctx, u.ID, "tablet", u)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if raw == "" || key.ID == "" {
		t.Fatalf("create returned raw=%q id=%q", raw, key.ID)
	}

	keys, err := env.Engine.ListAPIKeys(env.Ctx, u.ID, u)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 || keys[0].ID != key.ID || keys[0].Name != "tablet" {
		t.Fatalf("list: %+v", keys)
	}

	if err := env.Engine.RevokeAPIKey(env.Ctx, u.ID, key.ID, u); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	keys, err = env.Engine.ListAPIKeys(env.Ctx, u.ID, u)
	if err != nil || len(keys) != 0 {
		t.Fatalf("after revoke: %d keys (%v)", len(keys), err)
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, u.ID, key.ID, u); err != repo.ErrNotFound {
		t.Fatalf("second revoke: %v, want not found", err)
	}
}

func TestAPIKeyRevokeScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "U1", "u1@plant.example", domain.RoleAuditor)
	other := env.user(t, "U2", "u2@plant.example", domain.RoleAuditor)

	_, key, err := env.Engine.CreateAPIKey(env.Ctx, owner.ID, "", owner)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var forbidden auth.ForbiddenError
	if err := env.Engine.RevokeAPIKey(env.Ctx, owner.ID, key.ID, other); !errors.As(err, &forbidden) {
		t.Fatalf("foreign revoke: %v, want Forbidden", err)
	}
	// Claiming the key under one's own account misses on the owner scope.
	if err := env.Engine.RevokeAPIKey(env.Ctx, other.ID, key.ID, other); err != repo.ErrNotFound {
		t.Fatalf("cross-account revoke: %v, want not found", err)
	}
	if _, err := env.Engine.ListAPIKeys(env.Ctx, owner.ID, other); !errors.As(err, &forbidden) {
		t.Fatalf("foreign list: %v, want Forbidden", err)
	}
}
