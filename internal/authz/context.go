package authz

import "context"

type subjectContextKey struct{}

// ContextWithSubject attaches the verified acting principal's subject id to
// the context.
func ContextWithSubject(ctx context.Context, subjectID string) context.Context {
	if subjectID == "" {
		return ctx
	}
	return context.WithValue(ctx, subjectContextKey{}, subjectID)
}

// SubjectFromContext extracts the acting principal's subject id, if present.
func SubjectFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(subjectContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
