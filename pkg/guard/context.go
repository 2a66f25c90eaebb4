package guard

import "context"

// guardKey is the context key for the re-entrancy flag.
type guardKey struct{}

// markInGuard returns a context flagged as already inside the guard. The
// flag is carried by the derived context instead of ambient task-local state,
// so it cannot leak between concurrent calls: it disappears when the derived
// context goes out of scope, on every exit path.
func markInGuard(ctx context.Context) context.Context {
	return context.WithValue(ctx, guardKey{}, true)
}

// InGuard reports whether ctx is already inside a guarded call. Calls made
// with such a context (the permission checker's store reads, the audit
// writes, and anything the authorized operation itself invokes) bypass
// enforcement instead of recursing into the guard.
func InGuard(ctx context.Context) bool {
	v, _ := ctx.Value(guardKey{}).(bool)
	return v
}
