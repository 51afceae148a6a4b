// Package animate renders a short clip from a reference frame with ffmpeg.
// It is a local video backend for when no hosted video model is available.
package animate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"

	"autopilot/config"
	"autopilot/generation"
	"autopilot/logging"
	"autopilot/types"

	"github.com/google/uuid"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Runner executes ffmpeg with the given arguments
type Runner func(ctx context.Context, args []string) error

// ExecRunner runs the ffmpeg binary found on PATH
func ExecRunner(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, lastLine(out))
	}
	return nil
}

// Animator implements generation.VideoBackend with a Ken Burns style zoom
// over the first reference image.
type Animator struct {
	workDir    string
	run        Runner
	httpClient *http.Client
	logger     logging.Logger
}

// Option configures an Animator
type Option func(*Animator)

func WithRunner(r Runner) Option { return func(a *Animator) { a.run = r } }

func WithWorkDir(dir string) Option { return func(a *Animator) { a.workDir = dir } }

func WithLogger(l logging.Logger) Option { return func(a *Animator) { a.logger = l } }

// New creates an Animator writing temporary files under os.TempDir
func New(opts ...Option) *Animator {
	a := &Animator{
		workDir:    os.TempDir(),
		run:        ExecRunner,
		httpClient: http.DefaultClient,
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// StartVideo renders the clip synchronously and returns a finished operation
func (a *Animator) StartVideo(ctx context.Context, _ string, req generation.VideoRequest) (*generation.VideoOperation, error) {
	if len(req.References) == 0 {
		return nil, fmt.Errorf("%w: animation needs a reference image", generation.ErrInvalidRequest)
	}

	id := uuid.NewString()
	framePath := filepath.Join(a.workDir, id+"_frame"+extensionFor(req.References[0].MimeType))
	outPath := filepath.Join(a.workDir, id+".mp4")
	defer os.Remove(framePath)
	defer os.Remove(outPath)

	if err := a.writeFrame(ctx, req.References[0], framePath); err != nil {
		return nil, err
	}

	width, height := frameSize(req.AspectRatio)
	args := BuildArgs(framePath, outPath, width, height)
	a.logger.WithFields(logging.Fields{"width": width, "height": height}).Debug("Rendering animation")
	if err := a.run(ctx, args); err != nil {
		return nil, fmt.Errorf("animation render failed: %w", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered clip: %w", err)
	}
	return &generation.VideoOperation{
		Name:  "local/" + id,
		Done:  true,
		Video: &types.Media{MimeType: "video/mp4", Data: data},
	}, nil
}

// PollVideo returns op unchanged; local renders finish in StartVideo
func (a *Animator) PollVideo(_ context.Context, _ string, op *generation.VideoOperation) (*generation.VideoOperation, error) {
	return op, nil
}

// BuildArgs returns the ffmpeg arguments for a zoom clip of a still frame
func BuildArgs(framePath, outPath string, width, height int) []string {
	frames := config.AnimationDuration * config.AnimationFPS
	filter := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,"+
		"zoompan=z='min(zoom+0.0015,1.3)':d=%d:x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':s=%dx%d:fps=%d",
		width*2, height*2, width*2, height*2, frames, width, height, config.AnimationFPS)

	return ffmpeg.Input(framePath, ffmpeg.KwArgs{"loop": 1}).
		Output(outPath, ffmpeg.KwArgs{
			"vf":      filter,
			"t":       config.AnimationDuration,
			"c:v":     config.VideoCodec,
			"preset":  config.VideoPreset,
			"pix_fmt": "yuv420p",
		}).
		OverWriteOutput().
		GetArgs()
}

func (a *Animator) writeFrame(ctx context.Context, ref *types.Media, path string) error {
	if len(ref.Data) > 0 {
		return os.WriteFile(path, ref.Data, 0o600)
	}
	if ref.URI == "" {
		return fmt.Errorf("%w: reference image is empty", generation.ErrInvalidRequest)
	}
	return a.downloadFile(ctx, ref.URI, path)
}

func (a *Animator) downloadFile(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download reference: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download reference: status %d", resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}

func frameSize(aspect string) (int, int) {
	if aspect == "16:9" {
		return config.VideoHeight, config.VideoWidth
	}
	return config.VideoWidth, config.VideoHeight
}

func extensionFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

func lastLine(out []byte) string {
	end := len(out)
	for end > 0 && (out[end-1] == '\n' || out[end-1] == '\r') {
		end--
	}
	start := end
	for start > 0 && out[start-1] != '\n' {
		start--
	}
	return string(out[start:end])
}
