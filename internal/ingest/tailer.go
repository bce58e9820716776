package ingest

import (
	"bytes"
	"io"
	"log"
	"os"
	"time"

	"evewatch/internal/metrics"
)

// Line is one complete log line yielded by the tailer. Replay marks lines
// recovered from the pre-existing file content (startup or post-rotation
// re-read); downstream suppresses fan-out and notifications for them.
type Line struct {
	Text   string
	Replay bool
}

// maxReplayBytes bounds how far back the initial replay reads on huge files
const maxReplayBytes = 4 << 20

type tailState int

const (
	stateUninitialized tailState = iota
	stateTracking
	stateRecovering
)

// Tailer polls a growing log file at a fixed cadence and yields each newly
// appended complete line exactly once. The cursor tracks consumed bytes;
// bytes after the last separator wait in the partial buffer until the line
// is finished by a later append. A size decrease is taken as rotation or
// truncation and triggers a cursor reset plus a bounded silent re-read.
type Tailer struct {
	path        string
	interval    time.Duration
	replayLines int

	state   tailState
	cursor  int64  // lastKnownSize: byte offset already consumed
	partial []byte // read but not yet newline-terminated

	resume        bool
	missingLogged bool

	out  chan Line
	quit chan struct{}
	done chan struct{}
}

// NewTailer creates a tailer for path. replayLines bounds how many trailing
// lines of pre-existing content are replayed on startup and after rotation.
func NewTailer(path string, interval time.Duration, replayLines int) *Tailer {
	return &Tailer{
		path:        path,
		interval:    interval,
		replayLines: replayLines,
		out:         make(chan Line, 64),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// ResumeAtEnd skips the initial backfill replay and starts tracking from the
// current end of file. Used when the durable log already holds the history,
// so re-reading the tail would double-count it. Rotation recovery still
// replays, since rotated-in content is genuinely new.
func (t *Tailer) ResumeAtEnd() {
	t.resume = true
}

// Start begins polling and returns the line channel. The channel is closed
// after Stop. All ticks run on one goroutine, so ticks never overlap.
func (t *Tailer) Start() <-chan Line {
	go t.loop()
	return t.out
}

// Stop halts polling and waits for the in-flight tick to finish
func (t *Tailer) Stop() {
	close(t.quit)
	<-t.done
}

func (t *Tailer) loop() {
	defer close(t.done)
	defer close(t.out)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.tick()
	for {
		select {
		case <-ticker.C:
			t.tick()
		case <-t.quit:
			return
		}
	}
}

// tick runs one poll cycle. I/O errors are logged and retried next tick;
// nothing here is fatal to the process.
func (t *Tailer) tick() {
	fi, err := os.Stat(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			if !t.missingLogged {
				log.Printf("[TAIL] %s not found, tailing idle until it appears", t.path)
				t.missingLogged = true
			}
			return
		}
		log.Printf("[TAIL] stat failed: %v", err)
		return
	}
	t.missingLogged = false
	size := fi.Size()

	switch t.state {
	case stateUninitialized:
		if t.resume {
			t.cursor = size
			t.partial = nil
			log.Printf("[TAIL] resuming at end of %s (%d bytes)", t.path, size)
			t.state = stateTracking
		} else if t.replay(size) {
			t.state = stateTracking
		}
	case stateTracking:
		switch {
		case size > t.cursor:
			t.consume(size)
		case size < t.cursor:
			log.Printf("[TAIL] %s shrank (%d -> %d bytes), assuming rotation", t.path, t.cursor, size)
			metrics.TailRotations.Inc()
			t.cursor = 0
			t.partial = nil
			t.state = stateRecovering
		}
	case stateRecovering:
		if t.replay(size) {
			t.state = stateTracking
		}
	}
}

// consume reads the newly appended byte range [cursor, size), emits every
// complete line and holds the trailing fragment back for the next tick.
func (t *Tailer) consume(size int64) {
	f, err := os.Open(t.path)
	if err != nil {
		log.Printf("[TAIL] open failed: %v", err)
		return
	}
	defer f.Close()

	buf := make([]byte, size-t.cursor)
	if _, err := io.ReadFull(io.NewSectionReader(f, t.cursor, size-t.cursor), buf); err != nil {
		log.Printf("[TAIL] read failed: %v", err)
		return
	}

	data := append(t.partial, buf...)
	parts := bytes.Split(data, []byte{'\n'})
	for _, p := range parts[:len(parts)-1] {
		if line := string(bytes.TrimRight(p, "\r")); line != "" {
			t.out <- Line{Text: line}
		}
	}
	t.partial = append([]byte(nil), parts[len(parts)-1]...)
	t.cursor = size
}

// replay emits up to replayLines trailing lines of the current file content
// as replay lines, then places the cursor at end of file. An unterminated
// final fragment stays in the partial buffer, exactly as in steady state.
// On I/O failure it reports false without touching the cursor, so the
// caller keeps the state and the next tick retries the whole replay.
func (t *Tailer) replay(size int64) bool {
	if size == 0 {
		t.cursor = 0
		t.partial = nil
		return true
	}

	f, err := os.Open(t.path)
	if err != nil {
		log.Printf("[TAIL] open failed during replay: %v", err)
		return false
	}
	defer f.Close()

	start := int64(0)
	if size > maxReplayBytes {
		start = size - maxReplayBytes
	}
	buf := make([]byte, size-start)
	if _, err := io.ReadFull(io.NewSectionReader(f, start, size-start), buf); err != nil {
		log.Printf("[TAIL] read failed during replay: %v", err)
		return false
	}
	t.cursor = size
	if start > 0 {
		// drop the fragment before the first separator in the window
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			buf = buf[i+1:]
		} else {
			buf = nil
		}
	}

	parts := bytes.Split(buf, []byte{'\n'})
	t.partial = append([]byte(nil), parts[len(parts)-1]...)
	complete := parts[:len(parts)-1]
	if len(complete) > t.replayLines {
		complete = complete[len(complete)-t.replayLines:]
	}

	n := 0
	for _, p := range complete {
		if line := string(bytes.TrimRight(p, "\r")); line != "" {
			t.out <- Line{Text: line, Replay: true}
			n++
		}
	}
	log.Printf("[TAIL] replayed %d lines from %s", n, t.path)
	return true
}
