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
	"html"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wrenger/go-webdav/cond"
	"github.com/wrenger/go-webdav/policy"
	wp "github.com/wrenger/go-webdav/path"
	x "github.com/wrenger/go-webdav/xml"
)

// MaxNonStreamingBody is the largest request body (PROPFIND/PROPPATCH/LOCK
// XML, mainly) the engine will buffer in memory before giving up.
const MaxNonStreamingBody = 65536

// methodsRejectingBody are methods RFC 4918 never expects a request body
// for; a client sending one anyway gets a 415 rather than having the body
// silently ignored.
var methodsRejectingBody = map[string]bool{
	"OPTIONS": true,
	"HEAD":    true,
	"GET":     true,
	"DELETE":  true,
	"COPY":    true,
	"MOVE":    true,
	"UNLOCK":  true,
}

// isMicrosoftClient reports whether the request came from a Microsoft
// WebDAV mini-redirector, which needs a couple of protocol accommodations
// (RFC 4918 doesn't mandate these; they're interop fixes long-observed in
// the wild, e.g. in mod_dav and SabreDAV).
func isMicrosoftClient(r *http.Request) bool {
	return strings.Contains(r.UserAgent(), "Microsoft")
}

// WebDAV is a http.Handler implementation that implements the WebDAV
// protocol over an abstract FileSystem and LockSystem. Set the Debug field
// to true in order to enable serialization and logging of all requests.
type WebDAV struct {
	fs     FileSystem
	ls     LockSystem
	log    *Logger
	policy *policy.Evaluator
	m      sync.Mutex
	Debug  bool

	// autoindex, when true, renders an HTML listing for a directory GET
	// instead of rejecting it. Off by default (405 on directory GET).
	autoindex bool
	// redirectOnGetDir redirects a directory GET lacking a trailing
	// slash to the same path with one appended, before autoindex runs.
	redirectOnGetDir bool
	// hideSymlinks omits entries a backend marked FileInfo.Symlink from
	// autoindex listings.
	hideSymlinks bool
	// prefix is stripped from the request path before resolving it
	// against fs, so the handler can be mounted under a sub-path.
	prefix string
	// principal is the default lock owner recorded when a LOCK request
	// doesn't supply one of its own.
	principal string
	// readBufSize sizes the content-sniffing buffer used to derive a GET/HEAD
	// Content-Type header when a file's extension is unrecognized. Defaults
	// to 512 (the most http.DetectContentType examines) when zero.
	readBufSize int
}

// Option configures a WebDAV handler at construction time.
type Option func(*WebDAV)

// WithLogger sets the structured logger used for request tracing.
func WithLogger(l *Logger) Option {
	return func(s *WebDAV) { s.log = l }
}

// WithPolicy sets the method/depth policy evaluator. Without this option
// the handler runs with the permissive default (every method, unlimited
// PROPFIND depth).
func WithPolicy(p *policy.Evaluator) Option {
	return func(s *WebDAV) { s.policy = p }
}

// WithLockSystem overrides the default in-memory LockSystem.
func WithLockSystem(ls LockSystem) Option {
	return func(s *WebDAV) { s.ls = ls }
}

// WithAutoindex enables an HTML directory listing for a GET/HEAD on a
// collection resource, instead of the default 405.
func WithAutoindex(b bool) Option {
	return func(s *WebDAV) { s.autoindex = b }
}

// WithRedirectOnGetDir redirects a directory GET lacking a trailing slash
// to the slash-terminated form before autoindex renders it.
func WithRedirectOnGetDir(b bool) Option {
	return func(s *WebDAV) { s.redirectOnGetDir = b }
}

// WithHideSymlinks omits symlinked entries from autoindex listings.
func WithHideSymlinks(b bool) Option {
	return func(s *WebDAV) { s.hideSymlinks = b }
}

// WithPrefix mounts the handler under a URL sub-path, stripped before
// resolving requests against the FileSystem.
func WithPrefix(p string) Option {
	return func(s *WebDAV) { s.prefix = p }
}

// WithPrincipal sets the default lock owner used when a LOCK request
// doesn't supply one.
func WithPrincipal(p string) Option {
	return func(s *WebDAV) { s.principal = p }
}

// WithReadBufSize sets the content-sniffing buffer size used by the
// GET/HEAD Content-Type fallback detection.
func WithReadBufSize(n int) Option {
	return func(s *WebDAV) { s.readBufSize = n }
}

// NewWebDAV creates a WebDAV http.Handler wrapper around a given
// FileSystem. It defaults to an in-memory LockSystem, a stderr logger,
// and a permissive policy; use the With* options to override any of them.
func NewWebDAV(fs FileSystem, opts ...Option) *WebDAV {
	s := &WebDAV{
		fs:     fs,
		ls:     newLockMaster(),
		log:    NewDefaultLogger(),
		policy: policy.NewDefault(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// fsEnv implements cond.Env, without exposing it via WebDAV
type fsEnv struct {
	w *WebDAV
}

func (e fsEnv) ETag(r string) string {
	p, err := e.w.fs.ForPath(r)
	if err != nil {
		return ""
	}
	f, err := p.Lookup()
	if err != nil {
		return ""
	}
	fi, err := f.Stat()
	if err != nil {
		return ""
	}
	return etag(fi)
}

func (e fsEnv) Locked(r, l string) bool {
	return e.w.ls.Check(r, l)
}

type context struct {
	p         Path
	depth     int
	timeout   time.Duration
	cond      *cond.IfTag
	overwrite bool
}

// parseDepth gets the desired depth from the given request, defaults
// to infinity if none specified.
func parseDepth(r *http.Request) (int, error) {
	dh := r.Header.Get("Depth")
	if dh == "infinity" || dh == "Infinity" || dh == "" {
		return -1, nil
	}
	d, err := strconv.Atoi(dh)
	if err != nil {
		return 0, ErrorBadDepth.WithCause(err)
	}
	if d < 0 {
		return 0, ErrorBadDepth.WithCause(
			errors.New("depth must be non-negative or infinity"))
	}
	return d, nil
}

// parseTimeout gets the desired timeout from the request, defaults
// to one second if none specified or if invalid.
func parseTimeout(r *http.Request) time.Duration {
	// Only consider the first 3 presented options.
	// Spec permits us to ignore this header, so we're free to do
	// this if we wish (limits potential processing).
	opts := strings.SplitN(r.Header.Get("Timeout"), ",", 3)
	for _, o := range opts {
		o = strings.TrimSpace(o)
		if o == "Infinite" {
			// We ignore the infinite request
			continue
		}
		o = strings.TrimPrefix(o, "Second-")
		d, err := strconv.Atoi(o)
		if err != nil {
			// Ignoring invalid.
			continue
		}
		return time.Duration(d) * time.Second
	}
	return time.Second
}

func parseIfHeader(r *http.Request) (*cond.IfTag, error) {
	ih := r.Header.Get("If")
	if ih == "" {
		return nil, nil
	}
	t, err := cond.ParseIfTag(ih)
	if err != nil {
		return nil, err
	}
	err = t.RewriteHosts(r.Host)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *WebDAV) extractContext(r *http.Request) (ctx context, err error) {
	upath := r.URL.Path
	if s.prefix != "" {
		upath = strings.TrimPrefix(upath, s.prefix)
	}
	ctx.p, err = s.fs.ForPath(upath)
	if err != nil {
		return
	}

	ctx.depth, err = parseDepth(r)
	if err != nil {
		return
	}

	ctx.cond, err = parseIfHeader(r)
	if err != nil {
		return
	}

	ctx.timeout = parseTimeout(r)
	ctx.overwrite = r.Header.Get("Overwrite") != "F"
	return
}

func (s *WebDAV) checkCanWrite(ctx context, p Path) bool {
	if _, locked := s.ls.Discover(p.String()); !locked {
		return true
	}
	if ctx.cond == nil {
		return false
	}
	for _, t := range ctx.cond.GetAllTokens() {
		if s.ls.Check(p.String(), t) {
			return true
		}
	}
	return false
}

func (s *WebDAV) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Debug processing, force serialization of all requests and
	// log their details.
	if s.Debug {
		s.m.Lock()
		defer s.m.Unlock()

		s.log.Debugf("%s %s", r.Method, r.URL)
		for k, v := range r.Header {
			s.log.Debugf("%s: %v", k, v)
		}
	}

	// Handle dumping all files.
	if r.URL.Path == "/dumpz" {
		for _, p := range s.fs.Dumpz() {
			fmt.Fprintln(w, p)
		}
		return
	}

	ctx, err := s.extractContext(r)
	if err != nil {
		s.errorHeader(ctx, w, err)
		return
	}

	if methodsRejectingBody[r.Method] && r.ContentLength > 0 {
		s.errorHeader(ctx, w, ErrorUnsupportedType)
		return
	}

	if !s.policy.AllowMethod(r.Context(), r.Method, ctx.p.String()) {
		s.errorHeader(ctx, w, ErrorPolicyDenied)
		return
	}

	if ctx.cond != nil {
		if !ctx.cond.Eval(fsEnv{w: s}, ctx.p.String()) {
			s.log.Debugf("precondition failed for %s", ctx.p)
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
	}

	switch r.Method {
	case "OPTIONS":
		s.doOptions(ctx, w, r)

	case "GET":
		s.doGet(ctx, w, r)
	case "HEAD":
		s.doHead(ctx, w, r)
	case "POST":
		s.doPost(ctx, w, r)
	case "DELETE":
		s.doDelete(ctx, w, r)
	case "PUT":
		s.doPut(ctx, w, r)
	case "PATCH":
		s.doPatch(ctx, w, r)
	case "MKCOL":
		s.doMkcol(ctx, w, r)

	case "COPY":
		s.doCopy(ctx, w, r)
	case "MOVE":
		s.doMove(ctx, w, r)

	case "PROPFIND":
		s.doPropfind(ctx, w, r)
	case "PROPPATCH":
		s.doProppatch(ctx, w, r)

	case "LOCK":
		s.doLock(ctx, w, r)
	case "UNLOCK":
		s.doUnlock(ctx, w, r)

	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (s *WebDAV) allowedHeader(w http.ResponseWriter, p Path) {
	allowed := "OPTIONS, MKCOL, PUT, LOCK"
	f, err := p.Lookup()
	if err == nil {
		allowed = "OPTIONS, GET, HEAD, POST, DELETE, PATCH, TRACE, PROPPATCH, COPY, MOVE, LOCK, UNLOCK"
		if f.IsDirectory() {
			allowed += ", PUT, PROPFIND"
		}
	}
	w.Header().Set("Allow", allowed)
}

func (s *WebDAV) errorHeader(ctx context, w http.ResponseWriter, e error) {
	s.log.Errorf("%s: %s", ctx.p, e)
	if we, ok := e.(Error); ok {
		if !we.Temporary() {
			w.Header().Set("Connection", "close")
		}
		if we.HTTPCode() == http.StatusNotFound {
			// Windows clients cache 404s aggressively enough to break a
			// LOCK-then-create lock-null-resource sequence if the next
			// GET is served from cache instead of hitting the server.
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
			w.Header().Set("Pragma", "no-cache")
			w.Header().Set("Expires", "0")
			w.Header().Set("Vary", "*")
		}
		w.WriteHeader(we.HTTPCode())
		if we.HTTPCode() == http.StatusMethodNotAllowed {
			s.allowedHeader(w, ctx.p)
		}
	} else {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s *WebDAV) doOptions(ctx context, w http.ResponseWriter, r *http.Request) {
	// http://www.webdav.org/specs/rfc4918.html#dav.compliance.classes
	// Class 3 (RFC 4918 errata) plus the SabreDAV partial-update token,
	// since doPatch implements that extension.
	w.Header().Set("DAV", "1,2,3,sabredav-partialupdate")
	s.allowedHeader(w, ctx.p)
	w.Header().Set("MS-Author-Via", "DAV")
	if isMicrosoftClient(r) {
		// The mini-redirector gets confused by a chunked, bodyless
		// OPTIONS response; pin it to an explicit empty length.
		w.Header().Set("Content-Length", "0")
	}
}

// http://www.webdav.org/specs/rfc4918.html#rfc.section.9.4
func (s *WebDAV) doGet(ctx context, w http.ResponseWriter, r *http.Request) {
	s.servePath(ctx, w, r, true)
}

// http://www.webdav.org/specs/rfc4918.html#rfc.section.9.4
func (s *WebDAV) doHead(ctx context, w http.ResponseWriter, r *http.Request) {
	s.servePath(ctx, w, r, false)
}

func (s *WebDAV) servePath(ctx context, w http.ResponseWriter, r *http.Request, content bool) {
	f, err := ctx.p.Lookup()
	if err != nil {
		s.errorHeader(ctx, w, ErrorNotFound.WithCause(err))
		return
	}

	if f.IsDirectory() {
		s.serveDir(ctx, w, r, f, content)
		return
	}

	fi, err := f.Stat()
	if err != nil {
		s.errorHeader(ctx, w, err)
		return
	}
	var fh FileHandle
	if content {
		fh, err = f.Open()
	} else {
		fh = &emptyFile{}
	}
	if err != nil {
		s.errorHeader(ctx, w, err)
		return
	}
	defer fh.Close()
	w.Header().Set("ETag", etag(fi))
	if ct := contentTypeOf(ctx.p.String(), fh, fi, s.readBufSize); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	// http.ServeContent implements the full Range / If-Range / multipart
	// byteranges dance (RFC 7233) given a ReadSeeker; the streaming body
	// contract (single-buffer vs producer-of-chunks) is satisfied upstream
	// by FileHandle implementations that back Open/Truncate with their own
	// pipe rather than materializing the whole file.
	http.ServeContent(w, r, ctx.p.String(), fi.LastModified, fh)
}

// serveDir implements GET/HEAD on a collection resource: redirect to the
// slash-terminated form, render an autoindex listing, or reject with 405,
// per the autoindex/redirectOnGetDir configuration (spec §4.4).
func (s *WebDAV) serveDir(ctx context, w http.ResponseWriter, r *http.Request, f File, content bool) {
	if !strings.HasSuffix(r.URL.Path, "/") && (s.redirectOnGetDir || isMicrosoftClient(r)) {
		http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
		return
	}
	if !s.autoindex {
		s.errorHeader(ctx, w, ErrorIsDir)
		return
	}

	children, err := ctx.p.LookupSubtree(1)
	if err != nil {
		s.errorHeader(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if !content {
		return
	}

	title := html.EscapeString(ctx.p.String())
	fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head><title>Index of %s</title></head>\n<body>\n<h1>Index of %s</h1>\n<ul>\n", title, title)
	for _, c := range children {
		if c.GetPath() == f.GetPath() {
			continue
		}
		fi, err := c.Stat()
		if err != nil {
			continue
		}
		if s.hideSymlinks && fi.Symlink {
			continue
		}
		name := path.Base(c.GetPath())
		if c.IsDirectory() {
			name += "/"
		}
		href := html.EscapeString(wp.URLEncode(name))
		fmt.Fprintf(w, "<li><a href=\"%s\">%s</a></li>\n", href, html.EscapeString(name))
	}
	io.WriteString(w, "</ul>\n</body>\n</html>\n")
}

// contentTypeOf derives the GET/HEAD Content-Type: by extension first (as
// the getcontenttype live property does), falling back to sniffing the
// first bufSize bytes (then rewinding the handle). bufSize <= 0 defaults
// to 512, the most http.DetectContentType examines.
func contentTypeOf(name string, fh FileHandle, fi FileInfo, bufSize int) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	if bufSize <= 0 {
		bufSize = 512
	}
	buf := make([]byte, bufSize)
	n, _ := io.ReadFull(fh, buf)
	fh.Seek(0, io.SeekStart)
	if n == 0 {
		return ""
	}
	return http.DetectContentType(buf[:n])
}

// http://www.webdav.org/specs/rfc4918.html#METHOD_POST
func (s *WebDAV) doPost(ctx context, w http.ResponseWriter, r *http.Request) {
	s.doGet(ctx, w, r)
}

// http://www.wbdav.org/specs/rfc4918.html#METHOD_DELETE
func (s *WebDAV) doDelete(ctx context, w http.ResponseWriter, r *http.Request) {
	if !s.checkCanWrite(ctx, ctx.p) {
		s.errorHeader(ctx, w, ErrorLocked)
		return
	}

	f, err := ctx.p.Lookup()
	if err != nil {
		s.errorHeader(ctx, w, err)
		return
	}

	if !f.IsDirectory() {
		err = ctx.p.Remove()
		if err != nil {
			s.errorHeader(ctx, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	errs := ctx.p.RecursiveRemove()
	if len(errs) == 0 {
		w.WriteHeader(http.StatusNoContent)
	} else {
		ms := x.NewMultiStatus()
		for p, e := range errs {
			ms.AddStatus(p, e)
		}
		ms.Send(w)
	}
}

// http://www.webdav.org/specs/rfc4918.html#METHOD_PUT
func (s *WebDAV) doPut(ctx context, w http.ResponseWriter, r *http.Request) {
	if !s.checkCanWrite(ctx, ctx.p) {
		s.errorHeader(ctx, w, ErrorLocked)
		return
	}

	var fh FileHandle
	f, err := ctx.p.Lookup()
	exists := false
	cr := r.Header.Get("Content-Range")
	if err == nil {
		if f.IsDirectory() {
			s.errorHeader(ctx, w, ErrorIsDir)
			return
		}

		exists = true
		if cr != "" {
			fh, err = f.Open()
		} else {
			fh, err = f.Truncate()
		}
	} else {
		f, fh, err = ctx.p.Create()
	}

	if err != nil {
		s.errorHeader(ctx, w, ErrorConflict.WithCause(err))
		return
	}
	defer fh.Close()

	// "Content-Range: bytes a-b/len" (mod_dav partial PUT) writes at a.
	if cr != "" {
		lo, _, perr := parseUpdateRange(strings.SplitN(strings.TrimPrefix(cr, "bytes "), "/", 2)[0])
		if perr != nil {
			s.errorHeader(ctx, w, ErrorBadPath.WithCause(perr))
			return
		}
		fh.Seek(lo, io.SeekStart)
	}

	body := StreamBody(r.Body)
	if _, err := body.WriteTo(fh); err != nil {
		s.errorHeader(ctx, w, ErrorConflict)
	} else {
		if exists {
			w.WriteHeader(http.StatusNoContent)
		} else {
			w.WriteHeader(http.StatusCreated)
		}
	}
}

// http://sabre.io/dav/http-patch/ — PATCH is not part of RFC 4918, but is
// widely deployed as a partial-update extension via the X-Update-Range
// header, which this mirrors.
const sabrePartialUpdateType = "application/x-sabredav-partialupdate"

// http://www.webdav.org/specs/rfc4918.html#METHOD_unspecified (PATCH)
func (s *WebDAV) doPatch(ctx context, w http.ResponseWriter, r *http.Request) {
	if !s.checkCanWrite(ctx, ctx.p) {
		s.errorHeader(ctx, w, ErrorLocked)
		return
	}

	if ct := r.Header.Get("Content-Type"); ct != sabrePartialUpdateType {
		s.errorHeader(ctx, w, ErrorUnsupportedType)
		return
	}

	rng := r.Header.Get("X-Update-Range")
	if rng == "" {
		s.errorHeader(ctx, w, ErrorBadPath)
		return
	}

	f, err := ctx.p.Lookup()
	if err != nil {
		s.errorHeader(ctx, w, ErrorNotFound.WithCause(err))
		return
	}
	if f.IsDirectory() {
		s.errorHeader(ctx, w, ErrorIsDir)
		return
	}

	fh, err := f.Open()
	if err != nil {
		s.errorHeader(ctx, w, err)
		return
	}
	defer fh.Close()

	// PATCH writes a bounded range rather than streaming, so the body is
	// held eagerly: its length must be known before the write lands.
	update, err := StreamBody(io.NopCloser(io.LimitReader(r.Body, MaxNonStreamingBody))).ReadAll()
	if err != nil {
		s.errorHeader(ctx, w, ErrorConflict.WithCause(err))
		return
	}
	body := BytesBody(update)

	var at int64
	switch {
	case rng == "append":
		at, err = fh.Seek(0, io.SeekEnd)
	case strings.HasPrefix(rng, "bytes="):
		lo, hi, perr := parseUpdateRange(strings.TrimPrefix(rng, "bytes="))
		if perr != nil {
			s.errorHeader(ctx, w, ErrorBadPath.WithCause(perr))
			return
		}
		if hi-lo+1 != int64(len(update)) {
			s.errorHeader(ctx, w, ErrorRangeNotSatisfiable)
			return
		}
		at, err = fh.Seek(lo, io.SeekStart)
	default:
		s.errorHeader(ctx, w, ErrorBadPath)
		return
	}
	if err != nil {
		s.errorHeader(ctx, w, ErrorConflict.WithCause(err))
		return
	}

	if _, err := body.WriteTo(fh); err != nil {
		s.errorHeader(ctx, w, ErrorConflict.WithCause(err))
		return
	}
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/*", at, at+int64(len(update))-1))
	w.WriteHeader(http.StatusNoContent)
}

// parseUpdateRange parses the SabreDAV "a-b" byte range grammar.
func parseUpdateRange(s string) (lo, hi int64, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed range %q", s)
	}
	lo, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	hi, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	if hi < lo {
		return 0, 0, fmt.Errorf("inverted range %q", s)
	}
	return lo, hi, nil
}

// http://www.webdav.org/specs/rfc4918.html#METHOD_MKCOL
func (s *WebDAV) doMkcol(ctx context, w http.ResponseWriter, r *http.Request) {
	if !s.checkCanWrite(ctx, ctx.p) {
		s.errorHeader(ctx, w, ErrorLocked)
		return
	}

	_, err := ctx.p.Lookup()
	if err == nil {
		s.errorHeader(ctx, w, ErrorNotAllowed)
		return
	}

	if r.ContentLength > 0 {
		s.errorHeader(ctx, w, ErrorUnsupportedType)
		return
	}

	_, err = ctx.p.Mkdir()
	if err != nil {
		s.errorHeader(ctx, w, ErrorConflict.WithCause(err))
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// http://www.webdav.org/specs/rfc4918.html#METHOD_COPY
func (s *WebDAV) doCopy(ctx context, w http.ResponseWriter, r *http.Request) {
	s.handleCopyOrMove(ctx, w, r, false)
}

// http://www.webdav.org/specs/rfc4918.html#METHOD_MOVE
func (s *WebDAV) doMove(ctx context, w http.ResponseWriter, r *http.Request) {
	s.handleCopyOrMove(ctx, w, r, true)
}

func (s *WebDAV) handleCopyOrMove(ctx context, w http.ResponseWriter, r *http.Request, move bool) {
	src := ctx.p
	if move && !s.checkCanWrite(ctx, src) {
		s.errorHeader(ctx, w, ErrorLocked)
		return
	}

	dhdr := r.Header.Get("Destination")
	if dhdr == "" {
		s.errorHeader(ctx, w, ErrorBadDest)
		return
	}
	durl, err := url.Parse(dhdr)
	if err != nil {
		s.errorHeader(ctx, w, ErrorBadDest.WithCause(err))
		return
	}

	// Destination host must match our source.
	if durl.Host != r.Host {
		s.errorHeader(ctx, w, ErrorBadHost)
		return
	}

	dst, err := s.fs.ForPath(durl.Path)
	if err != nil {
		s.errorHeader(ctx, w, ErrorBadDest.WithCause(err))
		return
	}

	if !s.checkCanWrite(ctx, dst) {
		s.errorHeader(ctx, w, ErrorLocked)
		return
	}

	s.log.Debugf("copy/move %s -> %s", src, dst)
	newf, err := src.CopyTo(dst, CopyOptions{
		Overwrite: ctx.overwrite,
		Move:      move,
		Depth:     ctx.depth,
	})
	if err != nil {
		s.errorHeader(ctx, w, err)
		return
	}
	if newf {
		w.WriteHeader(http.StatusCreated)
	} else {
		w.WriteHeader(http.StatusNoContent)
	}
}

var fileStatProps = map[string]bool{
	"DAV::getlastmodified":  true,
	"DAV::getetag":          true,
	"DAV::getcontentlength": true,
	"DAV::creationdate":     true,
}

// etag derives an Apache-style entity tag from size and modification time
// when the backend did not supply one of its own: the tag changes whenever
// the size or the modification time does, as after a write or truncate.
func etag(fi FileInfo) string {
	if fi.ETag != "" {
		return fi.ETag
	}
	return fmt.Sprintf("%x%x", fi.LastModified.UnixNano(), fi.Size)
}

func getFileStatProp(n string, f File) (v string, err error) {
	fi, err := f.Stat()
	if err != nil {
		return
	}
	switch n {
	case "DAV::getlastmodified":
		v = fi.LastModified.String()
	case "DAV::getetag":
		v = etag(fi)
	case "DAV::getcontentlength":
		v = strconv.FormatInt(fi.Size, 10)
	case "DAV::creationdate":
		v = fi.Created.String()
	}
	return
}

// getPropValue gets a property for a given file, potentially generating
// synthetic properties that are expected. It will always return a value
// with the correct name, but potentially lack a value if not present.
func (s *WebDAV) getPropValue(pn string, f File) (x.Any, bool) {
	a := x.NewAny(pn)
	switch pn {
	case "DAV::resourcetype":
		if f.IsDirectory() {
			a.Inner = "<collection xmlns=\"DAV:\"/>"
		}
		return a, true
	case "DAV::supportedlock":
		a.Inner = `
<D:lockentry xmlns:D="DAV::">
<D:lockscope><D:exclusive/></D:lockscope>
<D:locktype><D:write/></D:locktype>
</D:lockentry>
<D:lockentry xmlns:D="DAV::">
<D:lockscope><D:shared/></D:lockscope>
<D:locktype><D:write/></D:locktype>
</D:lockentry>`
		return a, true
	case "DAV::lockdiscovery":
		if l, ok := s.ls.Discover(f.GetPath()); ok {
			a.Inner = lockXML(l)
		}
		return a, true
	case "DAV::displayname":
		a.Value = path.Base(f.GetPath())
		return a, true
	case "DAV::getcontenttype":
		if f.IsDirectory() {
			return a, false
		}
		if ct := mime.TypeByExtension(path.Ext(f.GetPath())); ct != "" {
			a.Value = ct
			return a, true
		}
		return a, false
	case "DAV::quota-available-bytes", "DAV::quota-used-bytes":
		// No backend in this repo tracks storage capacity; report these
		// as recognized-but-unavailable rather than falling through to
		// the dead-property map.
		return a, false
	}

	if fileStatProps[pn] {
		v, err := getFileStatProp(pn, f)
		if err != nil {
			return a, false
		}
		a.Value = v
		return a, true
	}
	v, ok := f.GetProp(pn)
	a.Value = v
	return a, ok
}

// http://www.rfc-editor.org/rfc/rfc4331 — the propfind-finite-depth
// precondition element, sent when a policy denies Depth: infinity.
const propfindFiniteDepthError = `<?xml version="1.0" encoding="utf-8"?>
<D:error xmlns:D="DAV:">
  <D:propfind-finite-depth/>
</D:error>`

// http://www.webdav.org/specs/rfc4918.html#METHOD_PROPFIND
func (s *WebDAV) doPropfind(ctx context, w http.ResponseWriter, r *http.Request) {
	if ctx.depth < 0 && !s.policy.AllowInfiniteDepth(r.Context(), ctx.p.String()) {
		s.log.Debugf("propfind depth:infinity denied for %s", ctx.p)
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, propfindFiniteDepthError)
		return
	}

	req, err := x.ParsePropFind(io.LimitReader(r.Body, MaxNonStreamingBody))
	if err != nil {
		s.errorHeader(ctx, w, ErrorBadPropfind.WithCause(err))
		return
	}

	files, err := ctx.p.LookupSubtree(ctx.depth)
	if err != nil {
		s.errorHeader(ctx, w, err)
		return
	}
	s.log.Debugf("propfind %s: %d files", ctx.p, len(files))

	ms := x.NewMultiStatus()
	for _, f := range files {
		var found, missing []x.Any
		for _, pn := range req.PropertyNames {
			v, ok := s.getPropValue(pn, f)
			if ok {
				found = append(found, v)
			} else {
				missing = append(missing, v)
			}
		}
		ms.AddPropStatus(f.GetPath(), found, missing)
	}
	ms.Send(w)
}

// http://www.webdav.org/specs/rfc4918.html#METHOD_PROPPATCH
func (s *WebDAV) doProppatch(ctx context, w http.ResponseWriter, r *http.Request) {
	if !s.checkCanWrite(ctx, ctx.p) {
		s.errorHeader(ctx, w, ErrorLocked)
		return
	}

	f, err := ctx.p.Lookup()
	if err != nil {
		s.errorHeader(ctx, w, err)
		return
	}

	req, err := x.ParsePropPatch(io.LimitReader(r.Body, MaxNonStreamingBody))
	if err != nil {
		s.errorHeader(ctx, w, ErrorBadProppatch.WithCause(err))
		return
	}

	err = f.PatchProp(req.Set, req.Remove)
	if err != nil {
		s.errorHeader(ctx, w, ErrorConflict)
		return
	}
	var props []x.Any
	for n := range req.Set {
		props = append(props, x.NewAny(n))
	}
	for n := range req.Remove {
		props = append(props, x.NewAny(n))
	}
	ms := x.NewMultiStatus()
	ms.AddPropStatus(ctx.p.String(), props, nil)
	ms.Send(w)
}

// http://www.webdav.org/specs/rfc4918.html#METHOD_LOCK
func (s *WebDAV) doLock(ctx context, w http.ResponseWriter, r *http.Request) {
	req, err := x.ParseLock(io.LimitReader(r.Body, MaxNonStreamingBody))
	if err != nil {
		s.errorHeader(ctx, w, ErrorBadLock.WithCause(err))
		return
	}

	// We don't let you lock on anything without a parent.
	_, err = ctx.p.Parent().Lookup()
	if err != nil {
		s.errorHeader(ctx, w, ErrorMissingParent)
		return
	}

	var l LockInfo
	if req.Refresh {
		if ctx.cond == nil {
			s.errorHeader(ctx, w, ErrorBadLock)
			return
		}
		tok, ok := ctx.cond.GetSingleState()
		if !ok {
			s.errorHeader(ctx, w, ErrorBadLock)
			return
		}
		l, err = s.ls.Refresh(tok, ctx.p, ctx.timeout)
	} else {
		owner := req.Owner
		if owner == "" {
			owner = s.principal
		}
		l, err = s.ls.Lock(ctx.p, owner, req.Shared, ctx.depth, ctx.timeout)
	}
	if err != nil {
		if lc, ok := err.(*LockConflictError); ok {
			ms := x.NewMultiStatus()
			for _, cp := range lc.Paths {
				ms.AddStatus(cp, ErrorLocked)
			}
			ms.SendStatus(w, StatusLocked)
			return
		}
		s.errorHeader(ctx, w, err)
		return
	}

	if !req.Refresh {
		w.Header().Set("Lock-Token", "<"+l.Token+">")
	}

	// Now that we have a successful lock, create the resource
	// if it didn't exist already (lock-null resource, RFC 4918 §9.10.4).
	_, err = ctx.p.Lookup()
	if err != nil {
		_, fh, err := ctx.p.Create()
		if err != nil {
			// Unlock, as we're failing.
			s.ls.Unlock(l.Token)
			s.errorHeader(ctx, w, err)
			return
		}
		fh.Close()
		w.WriteHeader(http.StatusCreated)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	a := x.NewAny("DAV::lockdiscovery")
	a.Inner = lockXML(l)
	x.SendProp(a, w)
}

// http://www.webdav.org/specs/rfc4918.html#METHOD_UNLOCK
func (s *WebDAV) doUnlock(ctx context, w http.ResponseWriter, r *http.Request) {
	lt := r.Header.Get("Lock-Token")
	if lt == "" {
		s.errorHeader(ctx, w, ErrorConflict)
		return
	}
	if len(lt) > 2 && lt[0] == '<' {
		lt = lt[1 : len(lt)-1]
	}

	// RFC 4918 §9.11.1: no lock at all on this resource is a 409
	// Conflict; a lock that exists but doesn't match the given token is
	// a 403 Forbidden.
	if _, locked := s.ls.Discover(ctx.p.String()); !locked {
		s.errorHeader(ctx, w, ErrorConflict)
		return
	}
	if !s.ls.Check(ctx.p.String(), lt) {
		s.errorHeader(ctx, w, ErrorLockMismatch)
		return
	}
	s.ls.Unlock(lt)
	w.WriteHeader(http.StatusNoContent)
}
