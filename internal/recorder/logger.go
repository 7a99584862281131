// Package recorder writes ride metrics to CSV files and loads previous
// rides back as ghosts to race against.
package recorder

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/scottharvey/crankTUI/internal/goutil"
	"github.com/scottharvey/crankTUI/internal/ride"
)

const logInterval = time.Second

var csvHeader = []string{
	"timestamp",
	"elapsed_time_s",
	"distance_m",
	"speed_kmh",
	"power_w",
	"cadence_rpm",
	"heart_rate_bpm",
	"grade_pct",
	"mode",
	"resistance_scale",
}

// RidesDir returns the directory ride recordings live in, creating it if
// needed. An empty baseDir resolves under the user's home directory.
func RidesDir(baseDir string) (string, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".local", "share", "cranktui", "rides")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", fmt.Errorf("creating rides directory: %w", err)
	}
	return baseDir, nil
}

// sanitizeRouteName maps a route name onto the character set used in ride
// filenames, so recordings can be matched back to their route later.
func sanitizeRouteName(name string) string {
	out := make([]rune, 0, len(name))
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			out = append(out, c)
		case c == ' ':
			out = append(out, '_')
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// RideLogger samples the ride store once a second and appends rows to a
// CSV file. Start/Stop bracket one recording; a stopped logger can be
// started again for a fresh file.
type RideLogger struct {
	routeName string
	ridesDir  string
	store     *ride.Store
	logger    *log.Logger

	mu       sync.Mutex
	file     *os.File
	writer   *csv.Writer
	filePath string
	paused   bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewRideLogger(routeName, ridesDir string, store *ride.Store, logger *log.Logger) *RideLogger {
	if store == nil {
		panic("ride store must not be nil")
	}
	if logger == nil {
		panic("logger must not be nil")
	}
	return &RideLogger{
		routeName: routeName,
		ridesDir:  ridesDir,
		store:     store,
		logger:    logger,
	}
}

// Start opens a new recording file and begins sampling. It returns the path
// of the file being written.
func (l *RideLogger) Start(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.filePath, fmt.Errorf("recording already in progress")
	}

	timestamp := time.Now().Format("2006-01-02_150405")
	filename := fmt.Sprintf("%s_%s.csv", timestamp, sanitizeRouteName(l.routeName))
	path := filepath.Join(l.ridesDir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating ride file: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing ride header: %w", err)
	}
	w.Flush()

	l.file = f
	l.writer = w
	l.filePath = path
	l.paused = false

	l.store.Update(func(m *ride.Metrics) { m.IsRecording = true })

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.wg.Add(1)
	goutil.SafeGo(l.logger, func() {
		defer l.wg.Done()
		l.logLoop(loopCtx)
	})

	return path, nil
}

// Stop ends the recording, writing one final row. Safe to call when no
// recording is active.
func (l *RideLogger) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeRowLocked()
	if l.file != nil {
		l.file.Close()
		l.file = nil
		l.writer = nil
	}
	l.store.Update(func(m *ride.Metrics) { m.IsRecording = false })
}

// Pause suppresses row writes without closing the file.
func (l *RideLogger) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paused = true
}

// Resume restarts row writes after Pause.
func (l *RideLogger) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paused = false
}

// Discard deletes the recording file. Call after Stop when the rider
// chooses not to keep the ride.
func (l *RideLogger) Discard() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return fmt.Errorf("cannot discard while recording")
	}
	if l.filePath == "" {
		return nil
	}
	if err := os.Remove(l.filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing ride file: %w", err)
	}
	l.filePath = ""
	return nil
}

// FilePath returns the path of the current or most recent recording.
func (l *RideLogger) FilePath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filePath
}

func (l *RideLogger) logLoop(ctx context.Context) {
	ticker := time.NewTicker(logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			l.writeRowLocked()
			l.mu.Unlock()
		}
	}
}

func (l *RideLogger) writeRowLocked() {
	if l.writer == nil || l.paused {
		return
	}

	m := l.store.Metrics()
	row := []string{
		time.Now().Format(time.RFC3339),
		formatFloat(m.ElapsedS),
		formatFloat(m.DistanceM),
		formatFloat(m.SpeedKmh),
		formatFloat(m.PowerW),
		formatFloat(m.CadenceRPM),
		formatFloat(m.HeartRateBPM),
		formatFloat(m.GradePct),
		m.Mode.String(),
		formatFloat(m.ResistanceScale),
	}
	if err := l.writer.Write(row); err != nil {
		l.logger.Printf("WARN writing ride row: %v", err)
		return
	}
	l.writer.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
