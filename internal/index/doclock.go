package index

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

// LockPolicy decides what a second reindex of the same document does while
// the first is still running.
type LockPolicy string

const (
	// LockWait queues behind the running reindex; the last writer wins.
	LockWait LockPolicy = "wait"
	// LockReject fails fast with the retryable ERR_407_ALREADY_INDEXING.
	LockReject LockPolicy = "reject"
)

// ParseLockPolicy maps a config value to a LockPolicy.
func ParseLockPolicy(s string) (LockPolicy, error) {
	switch LockPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case LockWait, "":
		return LockWait, nil
	case LockReject:
		return LockReject, nil
	}
	return "", fmt.Errorf("unknown lock policy %q (valid: wait, reject)", s)
}

// docLocks is a keyed mutex map. Entries are reference counted and removed
// when the last holder or waiter leaves, so the map only holds documents that
// are being written.
type docLocks struct {
	mu     sync.Mutex
	policy LockPolicy
	locks  map[string]*docLock
}

type docLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newDocLocks(policy LockPolicy) *docLocks {
	return &docLocks{policy: policy, locks: make(map[string]*docLock)}
}

// acquire takes the lock for key and returns its release func.
func (d *docLocks) acquire(ctx context.Context, key string) (func(), error) {
	d.mu.Lock()
	l, ok := d.locks[key]
	if !ok {
		l = &docLock{sem: semaphore.NewWeighted(1)}
		d.locks[key] = l
	}
	l.refs++
	d.mu.Unlock()

	var err error
	if d.policy == LockReject {
		if !l.sem.TryAcquire(1) {
			err = kberrors.New(kberrors.ErrCodeAlreadyIndexing, "document is already being indexed", nil).
				WithDetail("document", key)
		}
	} else {
		err = l.sem.Acquire(ctx, 1)
	}
	if err != nil {
		d.leave(key, l)
		return nil, err
	}

	return func() {
		l.sem.Release(1)
		d.leave(key, l)
	}, nil
}

func (d *docLocks) leave(key string, l *docLock) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(d.locks, key)
	}
}

// held returns the number of keys currently tracked.
func (d *docLocks) held() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.locks)
}

// nsLocks orders document writes against namespace deletes. Writers hold a
// namespace shared from store commit through index apply; DeleteNamespace
// holds it exclusively, so no vector or lexical entry can be re-added after
// the cascade. Entries are never removed; namespaces are few.
type nsLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func newNSLocks() *nsLocks {
	return &nsLocks{locks: make(map[string]*sync.RWMutex)}
}

func (n *nsLocks) get(namespace string) *sync.RWMutex {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := n.locks[namespace]
	if !ok {
		l = &sync.RWMutex{}
		n.locks[namespace] = l
	}
	return l
}

// shared takes namespace for a document write.
func (n *nsLocks) shared(namespace string) func() {
	l := n.get(namespace)
	l.RLock()
	return l.RUnlock
}

// exclusive takes namespace for a cascade delete.
func (n *nsLocks) exclusive(namespace string) func() {
	l := n.get(namespace)
	l.Lock()
	return l.Unlock
}
