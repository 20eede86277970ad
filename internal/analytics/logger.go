package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/ashureev/seven-days-calm/internal/domain"
)

// LogConfig controls NDJSON event logging.
type LogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// ErrQueueFull is returned when the writer cannot keep up.
var ErrQueueFull = errors.New("analytics log queue full")

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Logger appends events to one NDJSON file per user from a background
// goroutine. Push never blocks; a full queue drops the event.
type Logger struct {
	dir    string
	queue  chan domain.Event
	log    *slog.Logger
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewLogger starts the writer. A disabled config yields a Discard sink.
func NewLogger(cfg LogConfig, log *slog.Logger) (Sink, error) {
	if !cfg.Enabled {
		return Discard{}, nil
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("analytics log dir is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create analytics log dir: %w", err)
	}

	l := &Logger{
		dir:   cfg.Dir,
		queue: make(chan domain.Event, cfg.QueueSize),
		log:   log,
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Push enqueues e for writing.
func (l *Logger) Push(e domain.Event) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return fmt.Errorf("analytics logger closed")
	}
	select {
	case l.queue <- e:
		return nil
	default:
		l.log.Warn("analytics log queue full, dropping event", "event", e.Name, "user_id", e.UserID)
		return ErrQueueFull
	}
}

// Close drains the queue and stops the writer.
func (l *Logger) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()
	l.wg.Wait()
	return nil
}

func (l *Logger) run() {
	defer l.wg.Done()
	for e := range l.queue {
		if err := l.write(e); err != nil {
			l.log.Warn("failed to write analytics event", "event", e.Name, "user_id", e.UserID, "error", err)
		}
	}
}

func (l *Logger) write(e domain.Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	f, err := os.OpenFile(l.pathFor(e.UserID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// pathFor maps a user ID to its log file. IDs that are already safe file
// names are used as they are; anything rewritten gets a hash suffix so two
// distinct IDs never share a file.
func (l *Logger) pathFor(userID string) string {
	if userID == "" {
		return filepath.Join(l.dir, "anonymous.ndjson")
	}
	name := unsafePathChars.ReplaceAllString(userID, "_")
	if name != userID || name == "." || name == ".." {
		if len(name) > 48 {
			name = name[:48]
		}
		sum := sha256.Sum256([]byte(userID))
		name += "-" + hex.EncodeToString(sum[:6])
	}
	return filepath.Join(l.dir, name+".ndjson")
}
