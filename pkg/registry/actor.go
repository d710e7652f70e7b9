package registry

import "context"

type actorKey struct{}

// SystemActor is recorded when a request carries no identity.
const SystemActor = "system"

// WithActor returns a context carrying the identity recorded in the audit trail.
func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the identity stored by WithActor, or SystemActor.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}
