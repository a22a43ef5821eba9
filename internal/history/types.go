package history

import (
	"time"

	"github.com/sceneward/sceneward/internal/library/quality"
)

// RetentionDays is how long history and failed history rows are kept.
const RetentionDays = 30

// EpisodeKey identifies an episode across history rows.
type EpisodeKey struct {
	ShowID  int64 `json:"showId"`
	Season  int   `json:"season"`
	Episode int   `json:"episode"`
}

// Entry is one row of the download history. Action is a composite status.
type Entry struct {
	ID           int64     `json:"id"`
	ShowID       int64     `json:"showId"`
	ShowName     string    `json:"showName,omitempty"`
	Season       int       `json:"season"`
	Episode      int       `json:"episode"`
	Action       int       `json:"action"`
	Quality      int       `json:"quality"`
	Provider     string    `json:"provider,omitempty"`
	Resource     string    `json:"resource,omitempty"`
	ReleaseGroup string    `json:"releaseGroup,omitempty"`
	Date         time.Time `json:"date"`
}

// Key returns the episode the entry refers to.
func (e *Entry) Key() EpisodeKey {
	return EpisodeKey{ShowID: e.ShowID, Season: e.Season, Episode: e.Episode}
}

// Status returns the status part of the entry's action.
func (e *Entry) Status() quality.Status {
	status, _ := quality.Split(e.Action)
	return status
}

// FailedEntry records a release that was given up on and retried.
type FailedEntry struct {
	ID       int64     `json:"id"`
	ShowID   int64     `json:"showId"`
	Season   int       `json:"season"`
	Episode  int       `json:"episode"`
	Release  string    `json:"release"`
	Size     int64     `json:"size"`
	Provider string    `json:"provider,omitempty"`
	Date     time.Time `json:"date"`
}

// Action is one event in a compact history group.
type Action struct {
	Action       int       `json:"action"`
	Provider     string    `json:"provider,omitempty"`
	ReleaseGroup string    `json:"releaseGroup,omitempty"`
	Resource     string    `json:"resource,omitempty"`
	Time         time.Time `json:"time"`
}

// CompactEntry groups history actions for the same episode and quality.
type CompactEntry struct {
	ShowID   int64    `json:"showId"`
	ShowName string   `json:"showName,omitempty"`
	Season   int      `json:"season"`
	Episode  int      `json:"episode"`
	Quality  int      `json:"quality"`
	Resource string   `json:"resource,omitempty"`
	Actions  []Action `json:"actions"`
}
