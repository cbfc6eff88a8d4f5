package handler

import (
	"context"
	"strings"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/service"
)

// Identity headers set by the upstream gateway once the caller is
// authenticated. gRPC metadata uses the same names in lower case.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type userKey struct{}

func withUser(ctx context.Context, u service.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

func userFrom(ctx context.Context) (service.User, bool) {
	u, ok := ctx.Value(userKey{}).(service.User)
	return u, ok
}

// resolveUser builds the caller from the three identity values.
func resolveUser(tenantID, userID, role string) (service.User, error) {
	tenantID, userID = strings.TrimSpace(tenantID), strings.TrimSpace(userID)
	if tenantID == "" || userID == "" {
		return service.User{}, errors.New(errors.ErrCodeUnauthorized, "caller identity is missing")
	}
	r, err := service.ParseRole(strings.TrimSpace(role))
	if err != nil {
		return service.User{}, err
	}
	return service.User{ID: userID, TenantID: tenantID, Role: r}, nil
}
