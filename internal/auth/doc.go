// Package auth provides authentication for rei-gateway.
//
// # Authentication Method
//
// Callers authenticate with JWT tokens signed with HS256 using the
// configured jwt_secret. The user id travels in the "sub" claim.
//
// # Token Extraction
//
// HTTP requests carry the token in the Authorization header as a bearer
// token. WebSocket clients that cannot set headers may pass it as the
// token query parameter instead.
//
// # Identity Propagation
//
// The HTTP middleware validates the token and attaches an Identity to the
// request context:
//
//	id := auth.FromContext(r.Context())
//	if id != nil {
//		// id.UserID is the authenticated user
//	}
//
// Handlers compare Identity.UserID against the conversation owner before
// touching any transcript.
package auth
