package animate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"autopilot/generation"
	"autopilot/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner writes a stand-in clip to the output path found in args
func fakeRunner(seen *[]string) Runner {
	return func(_ context.Context, args []string) error {
		*seen = args
		for _, a := range args {
			if strings.HasSuffix(a, ".mp4") {
				return os.WriteFile(a, []byte("clip"), 0o600)
			}
		}
		return errors.New("no output path")
	}
}

func TestStartVideoRendersFromInlineFrame(t *testing.T) {
	var args []string
	a := New(WithRunner(fakeRunner(&args)), WithWorkDir(t.TempDir()))

	op, err := a.StartVideo(context.Background(), "", generation.VideoRequest{
		Prompt:      "zoom",
		References:  []*types.Media{{MimeType: "image/png", Data: []byte("png")}},
		AspectRatio: "9:16",
	})
	require.NoError(t, err)
	assert.True(t, op.Done)
	assert.Equal(t, []byte("clip"), op.Video.Data)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-loop 1")
	assert.Contains(t, joined, "s=720x1280")
	assert.Contains(t, joined, "libx264")

	same, err := a.PollVideo(context.Background(), "", op)
	require.NoError(t, err)
	assert.Same(t, op, same)
}

func TestStartVideoDownloadsURIFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("jpeg"))
	}))
	defer srv.Close()

	var args []string
	a := New(WithRunner(fakeRunner(&args)), WithWorkDir(t.TempDir()))
	op, err := a.StartVideo(context.Background(), "", generation.VideoRequest{
		Prompt:      "zoom",
		References:  []*types.Media{{MimeType: "image/jpeg", URI: srv.URL}},
		AspectRatio: "16:9",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, op.Video.Data)
	assert.Contains(t, strings.Join(args, " "), "s=1280x720")
}

func TestStartVideoNeedsReference(t *testing.T) {
	a := New(WithRunner(func(context.Context, []string) error { return nil }))
	_, err := a.StartVideo(context.Background(), "", generation.VideoRequest{Prompt: "x"})
	assert.ErrorIs(t, err, generation.ErrInvalidRequest)
}

func TestStartVideoRenderFailure(t *testing.T) {
	a := New(WithWorkDir(t.TempDir()), WithRunner(func(context.Context, []string) error {
		return errors.New("exit status 1")
	}))
	_, err := a.StartVideo(context.Background(), "", generation.VideoRequest{
		Prompt:     "x",
		References: []*types.Media{{Data: []byte("png")}},
	})
	assert.ErrorContains(t, err, "animation render failed")
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "fatal", lastLine([]byte("a\nb\nfatal\n")))
	assert.Equal(t, "", lastLine(nil))
}
