package snapshot

import "fmt"

// State is the lifecycle position of a snapshot within a region run.
type State int

const (
	StateRequested State = iota
	StatePending
	StateLocated
	StateDownloaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StatePending:
		return "pending"
	case StateLocated:
		return "located"
	case StateDownloaded:
		return "downloaded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handle tracks one snapshot from the delivery request to the local file. It
// belongs to a single region run.
type Handle struct {
	ID         string
	Region     string
	Bucket     string
	StorageKey string
	State      State
	// Attempts is the number of locator lookups made.
	Attempts int
	// Path and Bytes are set once the file is downloaded.
	Path  string
	Bytes int64
}

// Downloaded records the local copy of a located snapshot.
func (h *Handle) Downloaded(path string, n int64) {
	h.Path = path
	h.Bytes = n
	h.State = StateDownloaded
}

// Fail moves the handle to StateFailed.
func (h *Handle) Fail() {
	h.State = StateFailed
}
