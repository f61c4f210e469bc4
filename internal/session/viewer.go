package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SessionFile represents a session log file on disk.
type SessionFile struct {
	Path      string
	Name      string
	Size      int64
	ModTime   time.Time
	NumEvents int
}

// ListSessions finds .jsonl session log files in dir.
func ListSessions(dir string) ([]SessionFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading session directory: %w", err)
	}

	var files []SessionFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), "-session.jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(dir, e.Name())
		n, _ := countLines(path) //nolint:errcheck
		files = append(files, SessionFile{
			Path:      path,
			Name:      e.Name(),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			NumEvents: n,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})

	return files, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close() //nolint:errcheck
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}

// ReadEvents parses all events from a session log file.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening session file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var events []Event
	scanner := bufio.NewScanner(f)
	// Increase buffer for large lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue // skip malformed lines
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}
	return events, nil
}

// RenderTimeline writes a human-readable session timeline to w.
//
//nolint:errcheck // display-only writes; errors are not actionable
func RenderTimeline(w io.Writer, events []Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w, " SESSION TIMELINE")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	start := events[0].Timestamp
	for _, ev := range events {
		elapsed := ev.Timestamp.Sub(start)
		ts := formatDuration(elapsed)

		switch ev.Type {
		case EventSessionStart:
			catalog, _ := ev.Data["catalog"].(string)         //nolint:errcheck
			participant, _ := ev.Data["participant"].(string) //nolint:errcheck
			trials := jsonNumber(ev.Data["trial_count"])
			fmt.Fprintf(w, "[%s] 🚀 Session started  catalog=%s  participant=%s  trials=%d\n", ts, catalog, participant, trials)

		case EventTrialStart:
			num := jsonNumber(ev.Data["trial"])
			total := jsonNumber(ev.Data["total_trials"])
			fmt.Fprintf(w, "[%s] ▶  Trial %d/%d\n", ts, num+1, total)

		case EventTrigger:
			label, _ := ev.Data["label"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s]    ⚡ Trigger %s\n", ts, label)

		case EventTriggerFailure:
			label, _ := ev.Data["label"].(string) //nolint:errcheck
			msg, _ := ev.Data["error"].(string)   //nolint:errcheck
			fmt.Fprintf(w, "[%s]    ⚠ Trigger %s failed: %s\n", ts, label, msg)

		case EventPaused:
			stage, _ := ev.Data["stage"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] ⏸  Paused after %s\n", ts, stage)

		case EventResumed:
			dur := jsonNumber(ev.Data["paused_ms"])
			fmt.Fprintf(w, "[%s] ▶  Resumed (paused %dms)\n", ts, dur)

		case EventTrialComplete:
			num := jsonNumber(ev.Data["trial"])
			responded, _ := ev.Data["responded"].(bool) //nolint:errcheck
			if responded {
				key, _ := ev.Data["key"].(string) //nolint:errcheck
				rt := jsonNumber(ev.Data["response_ms"])
				fmt.Fprintf(w, "[%s] ✓  Trial %d: %s after %dms\n", ts, num+1, key, rt)
			} else {
				fmt.Fprintf(w, "[%s] ·  Trial %d: no response\n", ts, num+1)
			}

		case EventResultsWritten:
			path, _ := ev.Data["path"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] 💾 Results written to %s\n", ts, path)

		case EventError:
			msg, _ := ev.Data["message"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] ❌ Error: %s\n", ts, msg)

		case EventSessionAborted:
			reason, _ := ev.Data["reason"].(string) //nolint:errcheck
			done := jsonNumber(ev.Data["trials_done"])
			fmt.Fprintf(w, "[%s] 🛑 Session aborted after %d trials: %s\n", ts, done, reason)

		case EventSessionEnd:
			total := jsonNumber(ev.Data["trials"])
			responded := jsonNumber(ev.Data["responded"])
			dur := jsonNumber(ev.Data["duration_ms"])
			fmt.Fprintf(w, "[%s] 🏁 Session complete  %d/%d responded  (%dms)\n",
				ts, responded, total, dur)

		default:
			fmt.Fprintf(w, "[%s] %s %v\n", ts, ev.Type, ev.Data)
		}
	}
	fmt.Fprintln(w)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%6dms", d.Milliseconds())
	}
	return fmt.Sprintf("%6.1fs", d.Seconds())
}

// jsonNumber extracts a number from a JSON-decoded interface{} (float64 or json.Number).
func jsonNumber(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		i, _ := n.Int64() //nolint:errcheck
		return int(i)
	}
	return 0
}
