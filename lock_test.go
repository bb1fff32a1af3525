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
	"testing"
	"time"
)

// testPath is a bare Path stub: the lock system only ever calls
// String() on the paths it is given, so a full FileSystem fixture
// would be more than this test needs.
type testPath string

func (p testPath) String() string                            { return string(p) }
func (p testPath) Parent() Path                               { return testPath("/") }
func (p testPath) Lookup() (File, error)                      { return nil, ErrorNotFound }
func (p testPath) LookupSubtree(depth int) ([]File, error)    { return nil, ErrorNotFound }
func (p testPath) Mkdir() (File, error)                       { return nil, ErrorNotYetImplemented }
func (p testPath) Create() (File, FileHandle, error)          { return nil, nil, ErrorNotYetImplemented }
func (p testPath) CopyTo(dst Path, opt CopyOptions) (bool, error) {
	return false, ErrorNotYetImplemented
}
func (p testPath) Remove() error                    { return ErrorNotYetImplemented }
func (p testPath) RecursiveRemove() map[string]error { return nil }

func newTestPath(p string) Path {
	return testPath(p)
}

func TestLockMasterImplementsLockSystem(t *testing.T) {
	var _ LockSystem = newLockMaster()
}

func TestLockExclusivity(t *testing.T) {
	lm := newLockMaster()
	p := newTestPath("/a")

	if _, err := lm.Lock(p, "alice", false, 0, time.Minute); err != nil {
		t.Fatalf("first lock should succeed: %v", err)
	}
	if _, err := lm.Lock(p, "bob", false, 0, time.Minute); err == nil {
		t.Fatal("second exclusive lock on the same resource should fail (I1)")
	}
}

func TestLockDepthInfinityConflict(t *testing.T) {
	lm := newLockMaster()
	parent := newTestPath("/dir")

	if _, err := lm.Lock(parent, "alice", false, -1, time.Minute); err != nil {
		t.Fatalf("depth-infinity lock should succeed: %v", err)
	}

	child := newTestPath("/dir/child")
	if _, err := lm.Lock(child, "bob", false, 0, time.Minute); err == nil {
		t.Fatal("lock inside a depth-infinity ancestor lock should fail (I3)")
	}
}

func TestSharedLocksCoexist(t *testing.T) {
	lm := newLockMaster()
	p := newTestPath("/a")

	l1, err := lm.Lock(p, "alice", true, 0, time.Minute)
	if err != nil {
		t.Fatalf("first shared lock should succeed: %v", err)
	}
	l2, err := lm.Lock(p, "bob", true, 0, time.Minute)
	if err != nil {
		t.Fatalf("a second shared lock on the same resource should succeed (I2): %v", err)
	}
	if l1.Token == l2.Token {
		t.Fatal("distinct shared-lock requests should mint distinct tokens")
	}
	if !l1.Shared || !l2.Shared {
		t.Fatal("both locks should report themselves as shared")
	}
}

func TestSharedLockConflictsWithExclusive(t *testing.T) {
	lm := newLockMaster()
	p := newTestPath("/a")

	if _, err := lm.Lock(p, "alice", true, 0, time.Minute); err != nil {
		t.Fatalf("shared lock should succeed: %v", err)
	}
	if _, err := lm.Lock(p, "bob", false, 0, time.Minute); err == nil {
		t.Fatal("an exclusive lock must conflict with an existing shared lock (I1)")
	}
}

func TestLockConflictErrorNamesPath(t *testing.T) {
	lm := newLockMaster()
	p := newTestPath("/a")

	if _, err := lm.Lock(p, "alice", false, 0, time.Minute); err != nil {
		t.Fatalf("first lock should succeed: %v", err)
	}
	_, err := lm.Lock(p, "bob", false, 0, time.Minute)
	if err == nil {
		t.Fatal("conflicting lock should fail")
	}
	lc, ok := err.(*LockConflictError)
	if !ok {
		t.Fatalf("conflict error should be *LockConflictError, got %T", err)
	}
	if len(lc.Paths) != 1 || lc.Paths[0] != "/a" {
		t.Fatalf("conflict should name /a, got %v", lc.Paths)
	}
}

func TestLockCheckAndUnlock(t *testing.T) {
	lm := newLockMaster()
	p := newTestPath("/a")

	l, err := lm.Lock(p, "alice", false, 0, time.Minute)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !lm.Check("/a", l.Token) {
		t.Fatal("token should authorize writes to the locked path")
	}
	if lm.Check("/a", "bogus-token") {
		t.Fatal("a wrong token must not authorize the write")
	}

	lm.Unlock(l.Token)
	if lm.Check("/a", l.Token) {
		t.Fatal("token should no longer authorize writes after Unlock")
	}
}

func TestLockExpiry(t *testing.T) {
	lm := newLockMaster()
	p := newTestPath("/a")

	l, err := lm.Lock(p, "alice", false, 0, minLockDuration)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	lk := lm.locks[l.Token]
	lk.modified = time.Now().Add(-2 * minLockDuration)

	if lm.Check("/a", l.Token) {
		t.Fatal("an expired lock must be treated as absent (I4)")
	}
	if _, ok := lm.Discover("/a"); ok {
		t.Fatal("an expired lock should not be discoverable")
	}
}

func TestLockDiscover(t *testing.T) {
	lm := newLockMaster()
	p := newTestPath("/a")

	if _, ok := lm.Discover("/a"); ok {
		t.Fatal("no lock should be discoverable before Lock is called")
	}

	l, err := lm.Lock(p, "alice", false, 0, time.Minute)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	info, ok := lm.Discover("/a")
	if !ok {
		t.Fatal("lock should be discoverable once held")
	}
	if info.Token != l.Token {
		t.Fatalf("discovered token %q, want %q", info.Token, l.Token)
	}
}

func TestLockRefresh(t *testing.T) {
	lm := newLockMaster()
	p := newTestPath("/a")

	l, err := lm.Lock(p, "alice", false, 0, minLockDuration)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	refreshed, err := lm.Refresh(l.Token, p, maxLockDuration)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.Token != l.Token {
		t.Fatalf("refresh should keep the same token, got %q", refreshed.Token)
	}
	if refreshed.Remaining <= minLockDuration {
		t.Fatalf("refresh should extend the timeout, got %v", refreshed.Remaining)
	}
}

func TestClampLockDuration(t *testing.T) {
	if d := clampLockDuration(time.Second); d != minLockDuration {
		t.Fatalf("below-minimum duration should clamp to %v, got %v", minLockDuration, d)
	}
	if d := clampLockDuration(time.Hour); d != maxLockDuration {
		t.Fatalf("above-maximum duration should clamp to %v, got %v", maxLockDuration, d)
	}
}
