// Package context carries request-scoped values (trace id, authenticated user)
// through the service layers.
package context

type contextKey string
