package publisher

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"autopilot/config"
	"autopilot/logging"
	"autopilot/types"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// VideoMetadata describes an upload
type VideoMetadata struct {
	Title       string
	Description string
	Tags        []string
	CategoryID  string
}

// Uploader uploads videos and thumbnails
type Uploader interface {
	Upload(ctx context.Context, meta VideoMetadata, video io.Reader) (videoID string, err error)
	SetThumbnail(ctx context.Context, videoID string, image io.Reader) error
}

// YouTubeUploader uploads through the YouTube Data API with a service account
type YouTubeUploader struct {
	service *youtube.Service
}

// NewYouTubeUploader authenticates with the service account JSON file
func NewYouTubeUploader(ctx context.Context, serviceAccountFile string) (*YouTubeUploader, error) {
	data, err := os.ReadFile(serviceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read service account file: %w", err)
	}

	jwt, err := google.JWTConfigFromJSON(data, youtube.YoutubeUploadScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account: %w", err)
	}

	service, err := youtube.NewService(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create YouTube service: %w", err)
	}
	return &YouTubeUploader{service: service}, nil
}

func (u *YouTubeUploader) Upload(ctx context.Context, meta VideoMetadata, video io.Reader) (string, error) {
	v := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryId:  meta.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           config.YouTubePrivacyStatus,
			SelfDeclaredMadeForKids: false,
		},
	}

	resp, err := u.service.Videos.Insert([]string{"snippet", "status"}, v).Media(video).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload video: %w", err)
	}
	return resp.Id, nil
}

func (u *YouTubeUploader) SetThumbnail(ctx context.Context, videoID string, image io.Reader) error {
	if _, err := u.service.Thumbnails.Set(videoID).Media(image).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to set thumbnail: %w", err)
	}
	return nil
}

// YouTubeSink uploads the post video, then its thumbnail when present
type YouTubeSink struct {
	uploader   Uploader
	httpClient *http.Client
	logger     logging.Logger
}

func NewYouTubeSink(uploader Uploader, logger logging.Logger) *YouTubeSink {
	if logger == nil {
		logger = logging.Discard()
	}
	return &YouTubeSink{uploader: uploader, httpClient: http.DefaultClient, logger: logger}
}

func (s *YouTubeSink) Name() string { return "youtube" }

// Publish returns ErrSkipped for posts without a video
func (s *YouTubeSink) Publish(ctx context.Context, post types.GeneratedPost) (string, error) {
	if post.VideoURL == "" {
		return "", ErrSkipped
	}

	video, err := s.open(ctx, post.VideoURL)
	if err != nil {
		return "", fmt.Errorf("failed to load video: %w", err)
	}
	videoID, err := s.uploader.Upload(ctx, GenerateMetadata(post), bytes.NewReader(video))
	if err != nil {
		return "", err
	}

	if post.ThumbnailURL != "" {
		thumb, err := s.open(ctx, post.ThumbnailURL)
		if err == nil {
			err = s.uploader.SetThumbnail(ctx, videoID, bytes.NewReader(thumb))
		}
		if err != nil {
			s.logger.WithError(err).WithField("video", videoID).Warn("Thumbnail not set")
		}
	}
	return "https://youtube.com/shorts/" + videoID, nil
}

// open reads a data URL inline or downloads an http(s) URL
func (s *YouTubeSink) open(ctx context.Context, url string) ([]byte, error) {
	if strings.HasPrefix(url, "data:") {
		comma := strings.Index(url, ",")
		if comma < 0 || !strings.HasSuffix(url[:comma], ";base64") {
			return nil, fmt.Errorf("unsupported data URL")
		}
		return base64.StdEncoding.DecodeString(url[comma+1:])
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// GenerateMetadata builds the upload metadata for a post
func GenerateMetadata(post types.GeneratedPost) VideoMetadata {
	title := post.Title
	if title == "" {
		title = post.Topic
	}
	if r := []rune(title); len(r) > config.MaxTitleLength {
		title = string(r[:config.MaxTitleLength-3]) + "..."
	}

	var b strings.Builder
	b.WriteString(post.Content)
	if len(post.SourceURLs) > 0 {
		b.WriteString("\n\nSources:\n")
		for _, u := range post.SourceURLs {
			b.WriteString(u + "\n")
		}
	}
	b.WriteString("\n#shorts #tech")

	return VideoMetadata{
		Title:       title,
		Description: strings.TrimSpace(b.String()),
		Tags:        []string{"tech news", "technology", "shorts", strings.ToLower(post.Topic)},
		CategoryID:  config.YouTubeCategoryID,
	}
}
