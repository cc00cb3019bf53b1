// Package authroles provides a configuration-backed RoleSource for local
// development and for running the portal without the role endpoint.
package authroles

import (
	"context"
	"fmt"
	"strings"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	apperrors "github.com/target/towertrack-portal/internal/errors"
	"github.com/target/towertrack-portal/internal/ports"
)

var _ ports.RoleSource = StaticRoles{}

// StaticRoles maps identity keys to roles. Unlisted keys get Default, or a
// role_fetch_failed error when Default is empty.
type StaticRoles struct {
	Roles   map[string]domainauth.Role
	Default domainauth.Role
}

// ParseStaticRoles reads "email=role" entries separated by commas.
func ParseStaticRoles(raw string, def domainauth.Role) (StaticRoles, error) {
	out := StaticRoles{Roles: map[string]domainauth.Role{}, Default: def}
	for entry := range strings.SplitSeq(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		email, role, ok := strings.Cut(entry, "=")
		if !ok {
			return StaticRoles{}, fmt.Errorf("static roles: malformed entry %q", entry)
		}
		r, err := domainauth.ParseRole(role)
		if err != nil {
			return StaticRoles{}, fmt.Errorf("static roles: %q: %w", entry, err)
		}
		out.Roles[domainauth.NormalizeKey(email)] = r
	}
	return out, nil
}

func (s StaticRoles) FetchRole(ctx context.Context, key string) (domainauth.Role, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r, ok := s.Roles[domainauth.NormalizeKey(key)]; ok {
		return r, nil
	}
	if s.Default.Assignable() {
		return s.Default, nil
	}
	return "", apperrors.New(apperrors.ErrCodeRoleFetchFailed, "no static role for "+key)
}
