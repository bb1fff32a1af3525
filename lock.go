// Copyright 2014 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package webdav

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	wp "github.com/wrenger/go-webdav/path"
)

var (
	minLockDuration = 20 * time.Second
	maxLockDuration = 5 * time.Minute
)

// LockSystem is the pluggable contract for lock state, independent of any
// particular storage backend. Implementations must be safe for concurrent
// use; Lock and Check are expected to serialize internally on their own
// mutex rather than rely on a caller-held lock.
type LockSystem interface {
	// Lock creates a new lock rooted at path, with the given scope
	// (shared=true for a shared lock, false for exclusive). It fails
	// with a *LockConflictError when the path, or an ancestor holding a
	// depth-infinity lock, already has an incompatible lock: any
	// existing exclusive lock always conflicts (I1), but two shared
	// locks on overlapping paths never do (I2).
	Lock(path Path, owner string, shared bool, depth int, timeout time.Duration) (LockInfo, error)
	// Refresh extends the timeout of the lock identified by token,
	// provided it still covers path.
	Refresh(token string, path Path, timeout time.Duration) (LockInfo, error)
	// Unlock releases the lock identified by token, if any.
	Unlock(token string)
	// Check reports whether the given token authorizes a write to path.
	Check(path, token string) bool
	// Discover returns the lock covering path, if one exists, for use by
	// the lockdiscovery live property.
	Discover(path string) (LockInfo, bool)
}

// LockInfo is the read-only view of an active lock, as handed out by a
// LockSystem to callers that need to render it (lockdiscovery) or key off
// it (conditional evaluation), without exposing the backend's internals.
type LockInfo struct {
	Token     string
	Depth     int
	Shared    bool
	Owner     string // verbatim XML
	Root      string
	Remaining time.Duration
}

// lockXML renders a LockInfo as the RFC 4918 activelock element used by
// both the LOCK response body and the lockdiscovery property.
func lockXML(l LockInfo) string {
	ds := strconv.Itoa(l.Depth)
	if l.Depth < 0 {
		ds = "infinity"
	}
	scope := "<exclusive/>"
	if l.Shared {
		scope = "<shared/>"
	}
	return fmt.Sprintf(`
<activelock>
  <locktype><write/></locktype>
  <lockscope>%s</lockscope>
  <depth>%s</depth>
  <owner>%s</owner>
  <timeout>Second-%d</timeout>
  <locktoken><href>%s</href></locktoken>
  <lockroot><href>%s</href></lockroot>
</activelock>`, scope, ds, l.Owner, l.Remaining.Round(time.Second)/time.Second, l.Token, wp.URLEncode(l.Root))
}

// LockConflictError reports the resource(s) whose existing lock blocked a
// LOCK request, so the caller can render a 423 multistatus body naming
// them (RFC 4918 §9.10.9) instead of a bare status code.
type LockConflictError struct {
	Paths []string
}

func (e *LockConflictError) Error() string {
	return "locked: " + strings.Join(e.Paths, ", ")
}

// lock is the internal, mutable record behind a LockInfo.
type lock struct {
	token    string
	depth    int
	shared   bool
	owner    string
	duration time.Duration
	modified time.Time
	path     string
	m        sync.Mutex
}

func (l *lock) info() LockInfo {
	l.m.Lock()
	defer l.m.Unlock()
	return LockInfo{
		Token:     l.token,
		Depth:     l.depth,
		Shared:    l.shared,
		Owner:     l.owner,
		Root:      l.path,
		Remaining: l.duration - time.Since(l.modified),
	}
}

func (l *lock) touch() {
	l.m.Lock()
	defer l.m.Unlock()
	l.modified = time.Now()
}

func (l *lock) expired() bool {
	l.m.Lock()
	defer l.m.Unlock()
	return time.Now().After(l.modified.Add(l.duration))
}

// lockmaster is the reference LockSystem: an in-memory map of active
// locks, guarded by a single mutex. It never blocks on I/O, so its Lock
// and Check calls serialize in practice but never suspend for longer than
// the duration of a map scan — acceptable for the volumes a single
// process handles, and is what tests exercise against.
type lockmaster struct {
	m     sync.Mutex
	locks map[string]*lock
}

// newLockMaster creates an empty in-memory LockSystem.
func newLockMaster() *lockmaster {
	return &lockmaster{locks: make(map[string]*lock)}
}

var _ LockSystem = (*lockmaster)(nil)

func (lm *lockmaster) getLockForPath(p string) *lock {
	lm.m.Lock()
	defer lm.m.Unlock()
	for _, l := range lm.locks {
		if l.expired() {
			delete(lm.locks, l.token)
			continue
		}
		if _, ok := wp.Included(p, l.path, l.depth); !ok {
			continue
		}
		return l
	}
	return nil
}

func (lm *lockmaster) Discover(path string) (LockInfo, bool) {
	l := lm.getLockForPath(path)
	if l == nil {
		return LockInfo{}, false
	}
	return l.info(), true
}

func (lm *lockmaster) Check(p, token string) bool {
	lm.m.Lock()
	defer lm.m.Unlock()
	l := lm.locks[token]
	if l == nil || l.expired() {
		delete(lm.locks, token)
		return false
	}
	_, ok := wp.Included(p, l.path, l.depth)
	return ok
}

func (lm *lockmaster) Unlock(token string) {
	lm.m.Lock()
	defer lm.m.Unlock()
	delete(lm.locks, token)
}

func (lm *lockmaster) Refresh(token string, path Path, timeout time.Duration) (LockInfo, error) {
	lm.m.Lock()
	defer lm.m.Unlock()

	p := path.String()
	timeout = clampLockDuration(timeout)

	l, ok := lm.locks[token]
	if !ok {
		return LockInfo{}, fmt.Errorf("unknown lock: %s", token)
	}
	if l.expired() {
		delete(lm.locks, l.token)
		return LockInfo{}, errors.New("expired lock")
	}
	if _, ok := wp.Included(p, l.path, l.depth); !ok {
		return LockInfo{}, errors.New("path not within lock")
	}
	l.duration = timeout
	l.touch()
	return l.info(), nil
}

func (lm *lockmaster) Lock(path Path, owner string, shared bool, depth int, timeout time.Duration) (LockInfo, error) {
	lm.m.Lock()
	defer lm.m.Unlock()

	p := path.String()
	timeout = clampLockDuration(timeout)

	var conflicts []string
	for _, l := range lm.locks {
		if l.expired() {
			delete(lm.locks, l.token)
			continue
		}
		// Two shared locks never conflict, regardless of overlap (I2).
		if l.shared && shared {
			continue
		}
		// Check if the lock covers this path already (I1/I3).
		if _, ok := wp.Included(p, l.path, l.depth); ok {
			conflicts = append(conflicts, l.path)
			continue
		}
		// Check if this crosses another lock (I3: depth-infinity ancestor).
		if _, ok := wp.Included(l.path, p, depth); ok {
			conflicts = append(conflicts, l.path)
		}
	}
	if len(conflicts) > 0 {
		return LockInfo{}, &LockConflictError{Paths: conflicts}
	}

	l := &lock{
		token:    "opaquelocktoken:" + uuid.NewString(),
		depth:    depth,
		shared:   shared,
		owner:    owner,
		duration: timeout,
		modified: time.Now(),
		path:     p,
	}
	lm.locks[l.token] = l
	return l.info(), nil
}

func clampLockDuration(d time.Duration) time.Duration {
	if d < minLockDuration {
		return minLockDuration
	}
	if d > maxLockDuration {
		return maxLockDuration
	}
	return d
}
