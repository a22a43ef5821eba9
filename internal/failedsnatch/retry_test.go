package failedsnatch

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sceneward/sceneward/internal/history"
	"github.com/sceneward/sceneward/internal/library/quality"
	"github.com/sceneward/sceneward/internal/library/tv"
	"github.com/sceneward/sceneward/internal/searchqueue"
)

func TestRetryHandler_MarksWantedAndLogsFailure(t *testing.T) {
	f := newFixture(t)
	f.addShow(t, 1, false)
	f.addSnatch(t, 1, 1, 2*time.Hour)
	ctx := context.Background()

	h := NewRetryHandler(f.history, f.library, zerolog.Nop())
	require.NoError(t, h.Handle(ctx, searchqueue.RetryItem{ShowID: 1, Season: 1, Episode: 1, Forced: true}))

	ep, err := f.library.GetEpisode(ctx, 1, 1, 1)
	require.NoError(t, err)
	status, q := ep.SplitStatus()
	assert.Equal(t, quality.StatusWanted, status)
	assert.Equal(t, quality.HDTV, q)

	failed, err := f.history.ListFailed(ctx, history.EpisodeKey{ShowID: 1, Season: 1, Episode: 1})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "Foo.S01E01.720p.HDTV.x264-GRP", failed[0].Release)
	assert.Equal(t, int64(-1), failed[0].Size)
}

func TestRetryHandler_SkipsInvalidTransition(t *testing.T) {
	f := newFixture(t)
	f.addShow(t, 1, false)
	ctx := context.Background()

	require.NoError(t, f.library.AddEpisode(ctx, tv.Episode{
		ShowID: 1, Season: 2, Episode: 1,
		Status: quality.Composite(quality.StatusUnaired, quality.None),
	}))

	h := NewRetryHandler(f.history, f.library, zerolog.Nop())
	require.NoError(t, h.Handle(ctx, searchqueue.RetryItem{ShowID: 1, Season: 2, Episode: 1}))

	ep, err := f.library.GetEpisode(ctx, 1, 2, 1)
	require.NoError(t, err)
	status, _ := ep.SplitStatus()
	assert.Equal(t, quality.StatusUnaired, status)
}

func TestRetryHandler_MissingEpisode(t *testing.T) {
	f := newFixture(t)
	h := NewRetryHandler(f.history, f.library, zerolog.Nop())

	err := h.Handle(context.Background(), searchqueue.RetryItem{ShowID: 1, Season: 1, Episode: 1})
	assert.ErrorIs(t, err, tv.ErrEpisodeNotFound)
}
