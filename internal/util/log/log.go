/**
* Copyright 2018 Comcast Cable Communications Management, LLC
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
* http://www.apache.org/licenses/LICENSE-2.0
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
 */

// Package log provides the engine's structured logging surface, in the same
// Pairs-based idiom as trickster's internal/util/log, but backed by
// go-kit/kit/log rather than a hand-rolled writer.
package log

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Pairs is a flattened set of key/value fields attached to a log line.
type Pairs map[string]interface{}

var (
	mu     sync.Mutex
	logger kitlog.Logger = kitlog.NewLogfmtLogger(os.Stderr)
	lvl    int32         = levelInfo

	onceKeys   = make(map[string]bool)
	onceKeysMu sync.Mutex
)

const (
	levelDebug int32 = iota
	levelInfo
	levelWarn
	levelError
)

var levelNames = map[string]int32{
	"debug": levelDebug,
	"info":  levelInfo,
	"warn":  levelWarn,
	"error": levelError,
}

// Configure sets the minimum log level (case-insensitive: debug|info|warn|error)
// and, when logFile is non-empty, redirects output to that file.
func Configure(levelName, logFile string) error {
	mu.Lock()
	defer mu.Unlock()

	if n, ok := levelNames[normalizeLevel(levelName)]; ok {
		atomic.StoreInt32(&lvl, n)
	}

	out := os.Stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		out = f
	}
	logger = kitlog.NewLogfmtLogger(out)
	return nil
}

func normalizeLevel(s string) string {
	switch strings.ToLower(s) {
	case "debug":
		return "debug"
	case "warn", "warning":
		return "warn"
	case "error":
		return "error"
	default:
		return "info"
	}
}

func emit(sev int32, levelVal level.Value, msg string, p Pairs) {
	if atomic.LoadInt32(&lvl) > sev {
		return
	}
	mu.Lock()
	l := logger
	mu.Unlock()

	kvs := make([]interface{}, 0, 2+2*len(p)+2)
	kvs = append(kvs, "msg", msg)
	for k, v := range p {
		kvs = append(kvs, k, v)
	}
	level.NewFilter(l, level.AllowAll()).Log(append([]interface{}{"level", levelVal}, kvs...)...)
}

// Debug logs at debug level.
func Debug(msg string, p Pairs) { emit(levelDebug, level.DebugValue(), msg, p) }

// Info logs at info level.
func Info(msg string, p Pairs) { emit(levelInfo, level.InfoValue(), msg, p) }

// Warn logs at warn level.
func Warn(msg string, p Pairs) { emit(levelWarn, level.WarnValue(), msg, p) }

// Error logs at error level.
func Error(msg string, p Pairs) { emit(levelError, level.ErrorValue(), msg, p) }

// WarnOnce logs at warn level the first time it is called with a given key,
// and is a no-op on subsequent calls with the same key — used for
// conditions worth a human's attention but too frequent to repeat per fetch
// (e.g. trickster's clock-offset warning).
func WarnOnce(key, msg string, p Pairs) {
	onceKeysMu.Lock()
	already := onceKeys[key]
	if !already {
		onceKeys[key] = true
	}
	onceKeysMu.Unlock()
	if already {
		return
	}
	Warn(msg, p)
}
