// Package termmode infers terminal display modes from escape sequences in the
// output stream. The render target cannot be queried for its mode after a
// reload, so the tracker is the source of truth for alternate-screen and
// bracketed-paste state.
package termmode

import (
	"strings"
	"sync"
)

// carrySize is the number of bytes retained from the tail of each chunk so
// markers straddling chunk boundaries are still seen. The longest marker is 8
// bytes.
const carrySize = 32

var (
	altEnterMarkers = []string{"\x1b[?1049h", "\x1b[?47h"}
	altExitMarkers  = []string{"\x1b[?1049l", "\x1b[?47l"}
	pasteEnter      = "\x1b[?2004h"
	pasteExit       = "\x1b[?2004l"
)

// Tracker maintains alternate-screen and bracketed-paste flags across chunk
// boundaries. Chunks must be observed in the order the backing process
// produced them.
type Tracker struct {
	mu             sync.Mutex
	carry          string
	altScreen      bool
	bracketedPaste bool
}

// Observe scans one output chunk and updates the tracked modes.
func (t *Tracker) Observe(chunk string) {
	if chunk == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	window := t.carry + chunk

	// Last-write-wins on string position: whichever marker appears later in
	// the scan window decides the flag.
	if enter, exit := lastIndexAny(window, altEnterMarkers), lastIndexAny(window, altExitMarkers); enter >= 0 || exit >= 0 {
		t.altScreen = enter > exit
	}
	if enter, exit := strings.LastIndex(window, pasteEnter), strings.LastIndex(window, pasteExit); enter >= 0 || exit >= 0 {
		t.bracketedPaste = enter > exit
	}

	if len(window) > carrySize {
		window = window[len(window)-carrySize:]
	}
	t.carry = window
}

// AlternateScreen reports whether the alternate screen buffer is active.
func (t *Tracker) AlternateScreen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.altScreen
}

// BracketedPaste reports whether bracketed paste mode is active.
func (t *Tracker) BracketedPaste() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bracketedPaste
}

// Reset clears the tracked modes and the carry buffer.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.carry = ""
	t.altScreen = false
	t.bracketedPaste = false
}

func lastIndexAny(s string, markers []string) int {
	last := -1
	for _, marker := range markers {
		if idx := strings.LastIndex(s, marker); idx > last {
			last = idx
		}
	}
	return last
}
