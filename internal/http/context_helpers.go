package httpx

import (
	"context"

	"github.com/target/towertrack-portal/internal/service"
)

// portalKey is an unexported context key type to avoid collisions across packages.
type portalKey struct{}

// SetPortalInContext returns a child context that carries the request's portal.
// If p is nil, the original ctx is returned unchanged.
func SetPortalInContext(ctx context.Context, p *service.Portal) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, portalKey{}, p)
}

// PortalFromContext returns the portal attached by PortalSession.
func PortalFromContext(ctx context.Context) (*service.Portal, bool) {
	p, ok := ctx.Value(portalKey{}).(*service.Portal)
	return p, ok && p != nil
}
