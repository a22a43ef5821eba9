package tv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sceneward/sceneward/internal/library/quality"
	"github.com/sceneward/sceneward/internal/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)
	return NewService(tdb.Conn, tdb.Logger)
}

func TestService_ShowLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddShow(ctx, Show{ID: 100, Name: "Foo"}))
	require.NoError(t, svc.AddShow(ctx, Show{ID: 200, Name: "Bar"}))

	show, err := svc.FindShow(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "Foo", show.Name)
	assert.False(t, show.Paused)

	require.NoError(t, svc.SetPaused(ctx, 100, true))
	show, err = svc.FindShow(ctx, 100)
	require.NoError(t, err)
	assert.True(t, show.Paused)

	shows, err := svc.ListShows(ctx)
	require.NoError(t, err)
	require.Len(t, shows, 2)
	assert.Equal(t, "Bar", shows[0].Name)

	_, err = svc.FindShow(ctx, 999)
	assert.ErrorIs(t, err, ErrShowNotFound)
	assert.ErrorIs(t, svc.SetPaused(ctx, 999, true), ErrShowNotFound)
}

func TestService_EpisodeStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddShow(ctx, Show{ID: 1, Name: "Foo"}))
	airDate := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.AddEpisode(ctx, Episode{
		ShowID: 1, Season: 1, Episode: 2,
		Status:  quality.Composite(quality.StatusSnatched, quality.HDTV),
		AirDate: airDate,
	}))

	ep, err := svc.GetEpisode(ctx, 1, 1, 2)
	require.NoError(t, err)
	status, q := ep.SplitStatus()
	assert.Equal(t, quality.StatusSnatched, status)
	assert.Equal(t, quality.HDTV, q)
	assert.True(t, ep.AirDate.Equal(airDate))

	require.NoError(t, svc.SetEpisodeStatus(ctx, 1, 1, 2, quality.StatusWanted, quality.None))
	ep, err = svc.GetEpisode(ctx, 1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int(quality.StatusWanted), ep.Status)

	_, err = svc.GetEpisode(ctx, 1, 9, 9)
	assert.ErrorIs(t, err, ErrEpisodeNotFound)
}

func TestService_SetEpisodeStatus_Unaired(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddShow(ctx, Show{ID: 1, Name: "Foo"}))
	require.NoError(t, svc.AddEpisode(ctx, Episode{ShowID: 1, Season: 2, Episode: 1, Status: int(quality.StatusUnaired)}))

	err := svc.SetEpisodeStatus(ctx, 1, 2, 1, quality.StatusWanted, quality.None)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	ep, err := svc.GetEpisode(ctx, 1, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int(quality.StatusUnaired), ep.Status)
}
