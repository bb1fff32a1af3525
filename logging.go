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
	"os"
	"time"

	"github.com/fenthope/reco"
)

// defaultLogRecoConfig mirrors a plain, line-buffered text logger: info
// level, synchronous so tests can assert on output ordering.
var defaultLogRecoConfig = reco.Config{
	Level:      reco.LevelInfo,
	Mode:       reco.ModeText,
	TimeFormat: time.RFC3339,
	Output:     os.Stderr,
}

// Logger is the engine's logging seam. It wraps a *reco.Logger so call
// sites can use fmt-style verbs without depending on
// reco's exact level-method signatures.
type Logger struct {
	reco *reco.Logger
}

// NewLogger builds a Logger around reco with the given config.
func NewLogger(cfg reco.Config) (*Logger, error) {
	l, err := reco.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Logger{reco: l}, nil
}

// NewDefaultLogger builds a Logger with defaultLogRecoConfig.
func NewDefaultLogger() *Logger {
	l, err := NewLogger(defaultLogRecoConfig)
	if err != nil {
		// reco.New only fails on a malformed Config; the default is
		// always well-formed, so fall back to a logger with no sink
		// rather than panic in a library constructor.
		return &Logger{}
	}
	return l
}

func (l *Logger) Close() error {
	if l == nil || l.reco == nil {
		return nil
	}
	return l.reco.Close()
}

func (l *Logger) Debugf(format string, args ...any) {
	if l == nil || l.reco == nil {
		return
	}
	l.reco.Debugf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	if l == nil || l.reco == nil {
		return
	}
	l.reco.Infof(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	if l == nil || l.reco == nil {
		return
	}
	l.reco.Warnf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil || l.reco == nil {
		return
	}
	l.reco.Errorf(format, args...)
}
