// ABOUTME: Carries the authenticated operator through request handlers.
// ABOUTME: Set by Middleware, read by REST handlers for audit logging.

package auth

import "context"

type operatorKey struct{}

// WithOperator returns ctx carrying the operator name.
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey{}, operator)
}

// OperatorFromContext returns the operator set by Middleware, or "" if absent.
func OperatorFromContext(ctx context.Context) string {
	op, _ := ctx.Value(operatorKey{}).(string)
	return op
}
