package claims

import "sync"

// IssueLocker serializes mutations per issue id. Entries are reference
// counted and dropped once no caller holds or waits on them.
type IssueLocker struct {
	mu    sync.Mutex
	locks map[string]*issueLock
}

type issueLock struct {
	mu   sync.Mutex
	refs int
}

// NewIssueLocker creates an empty locker.
func NewIssueLocker() *IssueLocker {
	return &IssueLocker{locks: make(map[string]*issueLock)}
}

// Lock blocks until the issue is free and returns the matching unlock func.
func (l *IssueLocker) Lock(issueID string) func() {
	l.mu.Lock()
	lk, ok := l.locks[issueID]
	if !ok {
		lk = &issueLock{}
		l.locks[issueID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, issueID)
		}
		l.mu.Unlock()
	}
}

// Held returns the number of issues currently locked or awaited.
func (l *IssueLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
