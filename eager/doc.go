// Package eager implements the process-wide runtime context that governs how
// operations are configured and scoped.
//
// A Context owns the lazily realized engine handle, the runtime overlay
// deltas layered onto the base config, the device placement cache and the
// post-execution callbacks. Per-goroutine state lives in a Thread: the active
// mode (eager or graph), the device scope, the name scope, the execution mode
// override, function call options, small value caches and the scope switch
// stack.
//
// A Thread is owned by exactly one goroutine and is never shared. It can
// travel with a request through context.Context:
//
//	ctx := eager.Default()
//	th := ctx.NewThread()
//	err := th.WithDevice("gpu:0", func() error {
//	    return th.Execute(th.Attach(context.Background()), op)
//	})
//
// Scoped changes come in two forms: guard objects with an Exit method, and
// With* helpers that restore the previous state on every exit path.
package eager
