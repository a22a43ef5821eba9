package tv

import (
	"errors"
	"time"

	"github.com/sceneward/sceneward/internal/library/quality"
)

var (
	ErrShowNotFound    = errors.New("show not found")
	ErrEpisodeNotFound = errors.New("episode not found")
	// ErrInvalidTransition is returned when an episode's current status does
	// not allow the requested change, such as moving an unaired episode.
	ErrInvalidTransition = errors.New("invalid episode status transition")
)

// Show is a tracked TV show. ID is the indexer identifier.
type Show struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Paused    bool   `json:"paused"`
	AirByDate bool   `json:"airByDate"`
}

// Episode is a single episode of a show. Status is a composite status code.
type Episode struct {
	ShowID  int64     `json:"showId"`
	Season  int       `json:"season"`
	Episode int       `json:"episode"`
	Name    string    `json:"name,omitempty"`
	Status  int       `json:"status"`
	AirDate time.Time `json:"airDate,omitzero"`
}

// SplitStatus returns the episode's status and quality.
func (e *Episode) SplitStatus() (quality.Status, quality.Quality) {
	return quality.Split(e.Status)
}
