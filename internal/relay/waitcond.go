package relay

import (
	"sync"
	"time"
)

// waitWithTimeout waits on cond for at most timeout, exactly like
// sync.Cond.Wait but bounded: a timer goroutine broadcasts if the
// condition is never signaled, and the caller re-checks its own
// predicate against the deadline after waking.
func waitWithTimeout(cond *sync.Cond, timeout time.Duration) {
	timer := time.AfterFunc(timeout, cond.Broadcast)
	defer timer.Stop()
	cond.Wait()
}
