package testutil

import (
	"net/http"

	id "keepsake/pkg/domain"
	authmw "keepsake/pkg/platform/middleware/auth"
	"keepsake/pkg/requestcontext"
)

// WithOwner simulates what the auth middleware does for an authenticated owner.
func WithOwner(req *http.Request, ownerID id.OwnerID) *http.Request {
	ctx := requestcontext.WithOwnerID(req.Context(), ownerID)
	ctx = requestcontext.WithRole(ctx, authmw.RoleOwner)
	return req.WithContext(ctx)
}

// WithAdmin simulates an authenticated operator.
func WithAdmin(req *http.Request, operatorID id.OwnerID) *http.Request {
	ctx := requestcontext.WithOwnerID(req.Context(), operatorID)
	ctx = requestcontext.WithRole(ctx, authmw.RoleAdmin)
	return req.WithContext(ctx)
}

// WithClient adds client IP and User-Agent as the metadata middleware would.
func WithClient(req *http.Request, ip, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent))
}
