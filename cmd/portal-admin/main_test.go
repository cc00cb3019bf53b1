package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/towertrack-portal/config"
	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	mocks "github.com/target/towertrack-portal/internal/mocks/auth"
	"github.com/target/towertrack-portal/internal/ports"
	"github.com/target/towertrack-portal/internal/testutil"
)

func testContext(t *testing.T, cfg config.AppConfig) (*commandContext, *bytes.Buffer) {
	t.Helper()
	cfg.Sanitize()
	var out bytes.Buffer
	return &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: cfg,
		Out:    &out,
		In:     strings.NewReader(""),
	}, &out
}

func TestGuardMatrix(t *testing.T) {
	rows := map[string]guardRow{}
	for _, r := range guardMatrix() {
		rows[r.Guard] = r
	}
	require.Len(t, rows, 7)

	admin := rows["require_admin"]
	assert.Equal(t, "pending", admin.Decisions["initializing"])
	assert.Equal(t, "deny_to_login", admin.Decisions["anonymous"])
	assert.Equal(t, "pending", admin.Decisions["loading"])
	assert.Equal(t, "deny_to_unauthorized", admin.Decisions["error"], "lookup failure is fail-closed")
	assert.Equal(t, "deny_to_unauthorized", admin.Decisions["member"])
	assert.Equal(t, "allow", admin.Decisions["admin"])
	assert.Contains(t, admin.Pages, "admin-profile")
	assert.Equal(t, []string{"admin"}, admin.Accepts)

	private := rows["private"]
	assert.Equal(t, "allow", private.Decisions["loading"], "role is irrelevant")
	assert.Equal(t, "allow", private.Decisions["error"])
	assert.Empty(t, private.Accepts)
}

func TestRunGuards_Table(t *testing.T) {
	cmdCtx, out := testContext(t, config.AppConfig{})
	require.NoError(t, runGuards(cmdCtx, nil))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 8)
	assert.True(t, strings.HasPrefix(lines[0], "Guard"))
	assert.Contains(t, lines[0], "initializing")
	assert.Contains(t, out.String(), "require_member_or_admin")
}

func TestRunGuards_JSON(t *testing.T) {
	cmdCtx, out := testContext(t, config.AppConfig{})
	require.NoError(t, runGuards(cmdCtx, []string{"-json"}))

	var rows []guardRow
	require.NoError(t, json.Unmarshal(out.Bytes(), &rows))
	assert.Len(t, rows, 7)
}

func TestRunGuards_Menus(t *testing.T) {
	cmdCtx, out := testContext(t, config.AppConfig{})
	require.NoError(t, runGuards(cmdCtx, []string{"-menus", "-json"}))

	var menus []roleMenu
	require.NoError(t, json.Unmarshal(out.Bytes(), &menus))
	require.Len(t, menus, 3)
	assert.Equal(t, "user", menus[0].Role)
	assert.Equal(t, "admin", menus[2].Role)
	for _, m := range menus {
		assert.NotEmpty(t, m.Entries, m.Role)
	}

	cmdCtx, out = testContext(t, config.AppConfig{})
	require.NoError(t, runGuards(cmdCtx, []string{"-menus"}))
	assert.True(t, strings.HasPrefix(out.String(), "Role"))
	assert.Contains(t, out.String(), "/dashboard/")
}

func TestRunRole_StaticRoles(t *testing.T) {
	cmdCtx, out := testContext(t, config.AppConfig{
		Roles: config.RolesConfig{Static: "board@x.com=admin"},
	})
	require.NoError(t, runRole(cmdCtx, []string{"Board@X.com"}))
	assert.Equal(t, "board@x.com\tadmin\n", out.String())

	require.Error(t, runRole(cmdCtx, []string{"stranger@x.com"}), "unlisted without a default fails")
}

func TestRunRole_Backend(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.SetRole("res@x.com", "member")

	cmdCtx, out := testContext(t, config.AppConfig{
		Backend: config.BackendConfig{BaseURL: fb.URL(), Credential: config.CredentialToken},
	})
	t.Setenv("PORTAL_ADMIN_EMAIL", "")
	require.NoError(t, runRole(cmdCtx, []string{"-token", "mock-token-ops@x.com", "-json", "res@x.com"}))

	var got map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "member", got["role"])
	assert.Equal(t, int64(1), fb.Count("POST /jwt"))
	assert.Equal(t, int64(1), fb.Count("POST /logout"), "operator session is revoked")
	assert.Zero(t, fb.ActiveSessions())
}

func TestRunRole_BackendRequiresCredential(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	t.Setenv("PORTAL_ADMIN_TOKEN", "")
	t.Setenv("PORTAL_ADMIN_EMAIL", "")
	cmdCtx, _ := testContext(t, config.AppConfig{
		Backend: config.BackendConfig{BaseURL: fb.URL(), Credential: config.CredentialToken},
	})
	err := runRole(cmdCtx, []string{"res@x.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operator session")
}

func TestParseRoleFlags(t *testing.T) {
	t.Setenv("PORTAL_ADMIN_TOKEN", "")
	t.Setenv("PORTAL_ADMIN_EMAIL", "")
	_, err := parseRoleFlags(nil)
	require.Error(t, err)

	opts, err := parseRoleFlags([]string{"-timeout", "5s", "A@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", opts.Email)
	assert.Equal(t, 5*time.Second, opts.Timeout)

	opts, err = parseRoleFlags([]string{"a@x.com", "-as", "ops@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "ops@x.com", opts.As)
}

func TestInvalidateRole(t *testing.T) {
	ctx := context.Background()
	cache := mocks.NewMemoryRoleCache()
	require.NoError(t, cache.Set(ctx, "a@x.com", ports.RoleEntry{Role: domainauth.RoleAdmin, FetchedAt: time.Now()}, time.Minute))

	var out bytes.Buffer
	require.NoError(t, invalidateRole(ctx, &out, cache, "a@x.com", 5*time.Minute))
	assert.Contains(t, out.String(), "Dropped cached role for a@x.com")
	assert.Contains(t, out.String(), "5m0s")

	_, found, err := cache.Get(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, found)

	out.Reset()
	require.NoError(t, invalidateRole(ctx, &out, cache, "a@x.com", time.Minute))
	assert.Contains(t, out.String(), "No cached role")
}

func TestRunInvalidateRole_Aborts(t *testing.T) {
	cmdCtx, out := testContext(t, config.AppConfig{})
	cmdCtx.In = strings.NewReader("n\n")
	err := runInvalidateRole(cmdCtx, []string{"a@x.com"})
	require.EqualError(t, err, "aborted by user")
	assert.Contains(t, out.String(), "Continue? [y/N]")
}

func TestRunInvalidateRole_Redis(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	ctx := context.Background()
	opts := client.Options()

	cfg := config.AppConfig{Redis: config.RedisConfig{URI: opts.Addr, DB: opts.DB}}
	cmdCtx, out := testContext(t, cfg)
	key := cmdCtx.Config.Roles.CachePrefix + "a@x.com"
	require.NoError(t, client.Set(ctx, key, `{"role":"admin"}`, time.Minute).Err())

	require.NoError(t, runInvalidateRole(cmdCtx, []string{"a@x.com", "-yes"}))
	assert.Contains(t, out.String(), "a@x.com")
	n, err := client.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPrintUsage(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printUsage(&out))
	for name := range commands() {
		assert.Contains(t, out.String(), name)
	}
}
