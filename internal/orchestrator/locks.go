package orchestrator

import "sort"

// lockSet acquires a group of session-keyed mutexes in a fixed order so
// that any two operations touching overlapping sets of sessions can never
// deadlock against each other, mirroring the lock-ordering discipline the
// actor mailboxes replace one-for-one.
//
// Sessions are mutated through per-session actors (one mailbox goroutine
// each), so in practice the only multi-session operation is
// deliverFeedbackToChild, and it only ever touches the child. This type
// provides the ordering for an operation that needs to touch two sessions
// atomically; no current operation uses it.
type lockSet struct {
	ids []string
}

// newLockSet returns ids sorted ascending, the order every caller must
// acquire them in.
func newLockSet(ids ...string) lockSet {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return lockSet{ids: sorted}
}

// Ordered returns the session ids in the order locks/mailbox sends must
// be issued.
func (l lockSet) Ordered() []string {
	return l.ids
}
