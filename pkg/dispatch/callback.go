package dispatch

// Callback is the body of a task. Run is invoked from RunReady with the
// task's registration index and must run to completion.
//
// A callback may change its own task's state through the Registry (for
// example to suspend itself or re-arm as Ready); the change takes effect
// because the task is already Blocked when Run is called.
type Callback interface {
	Run(index int)
}

// Func adapts a zero-argument function to a Callback.
type Func func()

// Run calls f.
func (f Func) Run(int) { f() }

// IndexFunc adapts a function taking the task index to a Callback.
type IndexFunc func(index int)

// Run calls f(index).
func (f IndexFunc) Run(index int) { f(index) }

func isNilCallback(cb Callback) bool {
	switch f := cb.(type) {
	case nil:
		return true
	case Func:
		return f == nil
	case IndexFunc:
		return f == nil
	}
	return false
}
