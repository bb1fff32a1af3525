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
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestEmptyBody(t *testing.T) {
	b := EmptyBody()
	if b.IsStream() {
		t.Error("an empty body should not report itself as a stream")
	}
	got, err := b.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("empty body produced %d bytes", len(got))
	}
}

func TestBytesBodyReadAll(t *testing.T) {
	b := BytesBody([]byte("hello"))
	if b.IsStream() {
		t.Error("a bytes body must not report itself as a stream")
	}
	got, err := b.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("ReadAll = %q, want %q", got, "hello")
	}
	// An eager body can be drained more than once.
	var buf bytes.Buffer
	if _, err := b.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if buf.String() != "hello" {
		t.Errorf("WriteTo wrote %q, want %q", buf.String(), "hello")
	}
}

func TestStreamBodyDrainsOnce(t *testing.T) {
	r := io.NopCloser(strings.NewReader("streamed"))
	b := StreamBody(r)
	if !b.IsStream() {
		t.Error("a stream body must report itself as a stream")
	}

	var buf bytes.Buffer
	n, err := b.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if n != int64(len("streamed")) {
		t.Errorf("WriteTo copied %d bytes, want %d", n, len("streamed"))
	}
	if buf.String() != "streamed" {
		t.Errorf("WriteTo wrote %q, want %q", buf.String(), "streamed")
	}
}

func TestStreamBodyReadAll(t *testing.T) {
	r := io.NopCloser(strings.NewReader("chunked"))
	b := StreamBody(r)

	got, err := b.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "chunked" {
		t.Errorf("ReadAll = %q, want %q", got, "chunked")
	}
}
