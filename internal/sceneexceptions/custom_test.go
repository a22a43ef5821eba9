package sceneexceptions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customYAML = `
shows:
  - id: 100
    names:
      - name: Foo Bar
      - name: Foo Season Two
        season: 2
      - name: "  "
  - id: 0
    names:
      - name: Orphan
`

func TestService_LoadCustomFile(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "exceptions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(customYAML), 0o644))

	n, err := svc.LoadCustomFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := svc.All(ctx, 100)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Exception{
		{ShowID: 100, Name: "Foo Bar", Season: -1, Custom: true},
		{ShowID: 100, Name: "Foo Season Two", Season: 2, Custom: true},
	}, all)
}

func TestService_LoadCustomFileMissing(t *testing.T) {
	svc, _ := newTestService(t, nil)

	n, err := svc.LoadCustomFile(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_LoadCustomFileInvalid(t *testing.T) {
	svc, _ := newTestService(t, nil)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("shows: [oops"), 0o644))

	_, err := svc.LoadCustomFile(context.Background(), path)
	assert.Error(t, err)
}
