package id

import "context"

type contextKey string

const (
	userKey      contextKey = "taskpilot_user_id"
	userEmailKey contextKey = "taskpilot_user_email"
	requestKey   contextKey = "taskpilot_request_id"
)

// WithUserID stores the authenticated user identifier on the context. The
// identifier is the identity collaborator's opaque subject string; it is
// carried, never validated here.
func WithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey, userID)
}

// UserIDFromContext extracts the authenticated user identifier from context.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if userID, ok := ctx.Value(userKey).(string); ok {
		return userID
	}
	return ""
}

// WithUserEmail stores the authenticated user's email on the context.
func WithUserEmail(ctx context.Context, email string) context.Context {
	if email == "" {
		return ctx
	}
	return context.WithValue(ctx, userEmailKey, email)
}

// UserEmailFromContext extracts the authenticated user's email from context.
func UserEmailFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if email, ok := ctx.Value(userEmailKey).(string); ok {
		return email
	}
	return ""
}

// WithRequestID stores the request correlation identifier on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestKey, requestID)
}

// RequestIDFromContext extracts the request correlation identifier from context.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(requestKey).(string); ok {
		return requestID
	}
	return ""
}

// EnsureRequestID guarantees a request identifier is present on the context.
// It returns the updated context and the resulting identifier.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if existing := RequestIDFromContext(ctx); existing != "" {
		return ctx, existing
	}
	next := NewRequestID()
	return WithRequestID(ctx, next), next
}
