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

	"github.com/WJQSERVER-STUDIO/go-utils/iox"
)

// Body is a request or response payload held either eagerly, as bytes
// already resident in memory, or lazily, as a stream to be drained once.
// Handlers that already have the full payload (a PATCH range write)
// construct an eager Body; handlers fed directly
// from the wire construct a lazy one so a large PUT never has to be
// buffered just to share a type with the small ones.
type Body struct {
	bytes  []byte
	stream io.Reader
	closer io.Closer
}

// EmptyBody returns a Body with no content.
func EmptyBody() Body {
	return Body{}
}

// BytesBody returns an eager Body wrapping b. b is not copied.
func BytesBody(b []byte) Body {
	return Body{bytes: b}
}

// StreamBody returns a lazy Body that reads from r until exhausted. r is
// closed by Close or by the first WriteTo/ReadAll drain, mirroring the
// single-read-then-gone semantics of a consumed HTTP request body.
func StreamBody(r io.ReadCloser) Body {
	return Body{stream: r, closer: r}
}

// IsStream reports whether b is backed by a live reader rather than bytes
// already held in memory.
func (b Body) IsStream() bool {
	return b.stream != nil
}

// Reader returns an io.Reader over b's content. For an eager Body this
// wraps the held bytes and may be called more than once; for a lazy Body
// it returns the underlying stream, which is consumed as it is read.
func (b Body) Reader() io.Reader {
	if b.stream != nil {
		return b.stream
	}
	return bytes.NewReader(b.bytes)
}

// Close releases any resources held by a lazy Body. It is a no-op for an
// eager one.
func (b Body) Close() error {
	if b.closer != nil {
		return b.closer.Close()
	}
	return nil
}

// WriteTo copies b's content to w, using a pooled buffer for a lazy Body
// so draining a large stream doesn't allocate proportional to its size.
func (b Body) WriteTo(w io.Writer) (int64, error) {
	if b.stream != nil {
		defer b.closer.Close()
		return iox.Copy(w, b.stream)
	}
	n, err := w.Write(b.bytes)
	return int64(n), err
}

// ReadAll drains b and returns its full content, using a pooled reader
// for a lazy Body.
func (b Body) ReadAll() ([]byte, error) {
	if b.stream != nil {
		defer b.closer.Close()
		return iox.ReadAll(b.stream)
	}
	return b.bytes, nil
}
