package memcache

import "sync"

// fanIn coordinates N child requests into one aggregate completion: each
// child's completion handler records its slot and decrements pending;
// the aggregate's own completion handler runs exactly once, when pending
// reaches zero. This is the fan-out/fan-in shape behind both MultiKey
// (one child per key) and Broadcast (one child per server).
type fanIn struct {
	mu      sync.Mutex
	pending int
	result  map[string]any
	onDone  func(map[string]any)
}

func newFanIn(n int, onDone func(map[string]any)) *fanIn {
	return &fanIn{
		pending: n,
		result:  make(map[string]any, n),
		onDone:  onDone,
	}
}

// childComplete is the completion handler installed on a child request.
// present=false (a Get miss, for instance) omits the slot from the result
// map entirely, matching the "missing key absent, not present with a null
// value" contract for multi-key get.
func (f *fanIn) childComplete(slot string, present bool, value any) {
	f.mu.Lock()
	if present {
		f.result[slot] = value
	}
	f.pending--
	done := f.pending == 0
	var result map[string]any
	if done {
		result = f.result
	}
	f.mu.Unlock()

	if done {
		f.onDone(result)
	}
}

// dispatchFunc enqueues a single-key request built for slot/value against
// whichever Connection the Selector picks, or fails it immediately (e.g.
// no route) — the shape shared by submit in client.go for one child of a
// fan-out.
type dispatchFunc func(slot string, onChildDone func(present bool, value any))

// runMultiKey issues one child request per slot (built by dispatch) and
// calls onDone once every child has completed, with a result map keyed by
// the slots that actually produced a value.
func runMultiKey(slots []string, dispatch dispatchFunc, onDone func(map[string]any)) {
	if len(slots) == 0 {
		onDone(map[string]any{})
		return
	}
	fi := newFanIn(len(slots), onDone)
	for _, slot := range slots {
		slot := slot
		dispatch(slot, func(present bool, value any) {
			fi.childComplete(slot, present, value)
		})
	}
}

// runBroadcast is runMultiKey specialised to "one child per configured
// server" instead of "one child per key": slots here are server
// identifiers, and every child always contributes to the result (a
// broadcast command completes with a Connection-default accept/reject,
// never a miss).
func runBroadcast(servers []string, dispatch dispatchFunc, onDone func(map[string]any)) {
	runMultiKey(servers, dispatch, onDone)
}
