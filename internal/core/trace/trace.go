// Package trace implements the Reasoning Trace (spec.md §4.4): an
// append-only JSONL event stream per analysis, with a fan-out
// broadcast so live subscribers (a terminal narrator, a websocket
// tail) see events as they happen. Grounded on
// pkg/core/debate/orchestrator.go's Subscribe/Unsubscribe/broadcast
// pattern (buffered per-subscriber channel, drop-if-slow-consumer).
package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"equity_orchestrator/internal/core/models"
)

// Recorder owns the on-disk append-only event log for one analysis and
// fans events out to live subscribers.
type Recorder struct {
	path string

	mu          sync.Mutex
	file        *os.File
	subscribers []chan models.TraceEvent
}

// NewRecorder opens (creating if absent) trace.jsonl under
// workDir/memory/<analysisID>/, ready to append.
func NewRecorder(workDir, analysisID string) (*Recorder, error) {
	dir := filepath.Join(workDir, "memory", analysisID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}

	path := filepath.Join(dir, "trace.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace log: %w", err)
	}

	return &Recorder{path: path, file: f}, nil
}

// Record appends one event to the log and broadcasts it to subscribers.
// The append is durable before broadcast so a crash between the two
// never loses an event that a live subscriber believed it saw.
func (r *Recorder) Record(evt models.TraceEvent) error {
	line, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal trace event: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append trace event: %w", err)
	}

	for _, ch := range r.subscribers {
		select {
		case ch <- evt:
		default:
			// slow consumer: drop rather than block the analysis
		}
	}
	return nil
}

// Subscribe adds a live subscriber and returns the full replay history
// alongside it, mirroring the teacher's Subscribe contract.
func (r *Recorder) Subscribe() (chan models.TraceEvent, []models.TraceEvent, error) {
	history, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan models.TraceEvent, 256)

	r.mu.Lock()
	r.subscribers = append(r.subscribers, ch)
	r.mu.Unlock()

	return ch, history, nil
}

// Unsubscribe removes and closes a subscriber channel.
func (r *Recorder) Unsubscribe(ch chan models.TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, sub := range r.subscribers {
		if sub == ch {
			r.subscribers = append(r.subscribers[:i], r.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

// ReadAll reads every event persisted so far from disk, independent of
// in-memory subscriber state (used both for Subscribe's replay and for
// offline trace inspection after a crash).
func (r *Recorder) ReadAll() ([]models.TraceEvent, error) {
	f, err := os.Open(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open trace log: %w", err)
	}
	defer f.Close()

	var events []models.TraceEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var evt models.TraceEvent
		if err := json.Unmarshal(line, &evt); err != nil {
			continue // tolerate a partially-written trailing line after a crash
		}
		events = append(events, evt)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan trace log: %w", err)
	}
	return events, nil
}

// EventsForAgent derives a per-agent stream by filtering the full log,
// matching spec.md §4.4's "per-agent derived streams".
func (r *Recorder) EventsForAgent(agent string) ([]models.TraceEvent, error) {
	all, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []models.TraceEvent
	for _, e := range all {
		if e.Agent == agent {
			out = append(out, e)
		}
	}
	return out, nil
}

// Close closes the underlying file and every live subscriber channel.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ch := range r.subscribers {
		close(ch)
	}
	r.subscribers = nil
	return r.file.Close()
}
