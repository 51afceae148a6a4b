// Package artifacts turns generated media into URLs a post can reference.
package artifacts

import (
	"context"
	"encoding/base64"
	"fmt"

	"autopilot/types"
)

// Kind labels what an artifact is used for
type Kind string

const (
	KindImage     Kind = "image"
	KindVideo     Kind = "video"
	KindThumbnail Kind = "thumbnail"
)

// Store persists media and returns a URL for it
type Store interface {
	Save(ctx context.Context, kind Kind, m *types.Media) (string, error)
}

// DataURL inlines media as base64 data URLs. Media that already has a URI
// and no bytes is passed through.
type DataURL struct{}

func (DataURL) Save(_ context.Context, kind Kind, m *types.Media) (string, error) {
	if m.Empty() {
		return "", fmt.Errorf("%s artifact is empty", kind)
	}
	if len(m.Data) == 0 {
		return m.URI, nil
	}
	return "data:" + mimeOrDefault(m.MimeType, kind) + ";base64," + base64.StdEncoding.EncodeToString(m.Data), nil
}

func mimeOrDefault(mime string, kind Kind) string {
	if mime != "" {
		return mime
	}
	if kind == KindVideo {
		return "video/mp4"
	}
	return "image/png"
}

func extensionFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	default:
		return ".png"
	}
}
