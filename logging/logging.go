// Package logging wires a process-wide structured logger via zerolog,
// grounded on logger/logger.go: a console writer, an optional daily
// rotating file writer, a non-blocking async wrapper so a slow sink never
// stalls the agent loop, and build-info fields (git revision, go
// version) attached to every entry.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// asyncWriter performs writes on a background goroutine so a blocked or
// slow sink never stalls the caller (the agent loop, a streaming
// dispatcher). Entries are dropped, not queued indefinitely, if the
// buffer fills.
type asyncWriter struct {
	ch     chan []byte
	writer io.Writer
}

func newAsyncWriter(w io.Writer, bufSize int) *asyncWriter {
	aw := &asyncWriter{ch: make(chan []byte, bufSize), writer: w}
	go aw.drain()
	return aw
}

func (aw *asyncWriter) drain() {
	for p := range aw.ch {
		aw.writer.Write(p) //nolint:errcheck
	}
}

func (aw *asyncWriter) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	select {
	case aw.ch <- buf:
	default:
		// drop rather than block
	}
	return len(p), nil
}

// LevelEnvVar is read to set the initial log level; values follow
// zerolog.Level's integer encoding (-1 trace .. 5 panic).
const LevelEnvVar = "AGENTCORE_LOG_LEVEL"

func Level() zerolog.Level {
	lvl, err := strconv.Atoi(os.Getenv(LevelEnvVar))
	if err != nil {
		return zerolog.InfoLevel
	}
	return zerolog.Level(lvl)
}

var (
	once   sync.Once
	logger zerolog.Logger
)

// Options configures Get. LogDir, if set, enables a daily-rotating file
// writer alongside the console writer (mirrors logger.Get's
// stateHome-derived file writer, generalized to a caller-supplied
// directory instead of a sidekick-specific state home).
type Options struct {
	LogDir string
}

// Get returns the process-wide logger, constructing it on first call.
func Get(opts Options) zerolog.Logger {
	once.Do(func() {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
		zerolog.TimeFieldFormat = time.RFC3339Nano

		console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		var output io.Writer = console

		if opts.LogDir != "" {
			if fw, err := newDailyRotatingLogWriter(opts.LogDir); err == nil {
				output = zerolog.MultiLevelWriter(console, fw)
			}
		}

		async := newAsyncWriter(output, 1024)

		var gitRevision, goVersion string
		if buildInfo, ok := debug.ReadBuildInfo(); ok {
			goVersion = buildInfo.GoVersion
			for _, v := range buildInfo.Settings {
				if v.Key == "vcs.revision" {
					gitRevision = v.Value
					break
				}
			}
		}

		logger = zerolog.New(async).
			Level(Level()).
			With().
			Timestamp().
			Str("git_revision", gitRevision).
			Str("go_version", goVersion).
			Logger()
	})
	return logger
}

const (
	logFilePrefix   = "agentcore-"
	logFileSuffix   = ".log"
	maxLogFileCount = 7
)

type dailyRotatingLogWriter struct {
	mu      sync.Mutex
	dir     string
	current string
	file    *os.File
}

func newDailyRotatingLogWriter(dir string) (*dailyRotatingLogWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w := &dailyRotatingLogWriter{dir: dir}
	if err := w.rotateIfNeeded(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *dailyRotatingLogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotateIfNeeded(); err != nil {
		return 0, err
	}
	return w.file.Write(p)
}

func (w *dailyRotatingLogWriter) rotateIfNeeded() error {
	today := time.Now().Format("2006-01-02")
	if w.current == today && w.file != nil {
		return nil
	}
	if w.file != nil {
		w.file.Close()
	}
	name := logFilePrefix + today + logFileSuffix
	f, err := os.OpenFile(filepath.Join(w.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.current = today
	cleanupOldLogFiles(w.dir)
	return nil
}

func cleanupOldLogFiles(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var logFiles []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, logFilePrefix) && strings.HasSuffix(name, logFileSuffix) {
			logFiles = append(logFiles, name)
		}
	}
	if len(logFiles) <= maxLogFileCount {
		return
	}
	sort.Strings(logFiles)
	for i := 0; i < len(logFiles)-maxLogFileCount; i++ {
		os.Remove(filepath.Join(dir, logFiles[i]))
	}
}
