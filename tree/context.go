package tree

// StoreContext wraps exclusive access to a [Store] obtained from
// [Guard.Acquire]. Calling StoreContext.Close() unwinds all unlocking/cleanup
// callbacks in reverse order.
// Do NOT call any [Guard] method while this context is open; the guard is
// not reentrant.
//
// NOTE: StoreContext itself is **not** thread-safe meaning references
// to it should not be shared between goroutines
type StoreContext struct {
	store    *Store
	closeFns []func()
}

// Store returns the guarded store. It must not be used after Close.
func (ctx *StoreContext) Store() *Store {
	return ctx.store
}

// AddClose pushes a cleanup callback (e.g., unlock) onto the end of the stack.
func (ctx *StoreContext) AddClose(fn func()) {
	ctx.closeFns = append(ctx.closeFns, fn)
}

// Close unwinds all cleanup callbacks in reverse order.
// Safe to call even if ctx is nil or was already closed; it is a no-op in
// those cases, so you can `defer ctx.Close()` unconditionally.
//
// Example:
//
//	ctx := guard.Acquire()
//	defer ctx.Close()
func (ctx *StoreContext) Close() {
	if ctx == nil {
		return
	}
	for i := len(ctx.closeFns) - 1; i >= 0; i-- {
		ctx.closeFns[i]()
	}
	ctx.closeFns = nil
	ctx.store = nil
}
