package types

// Media is a generated blob. Either Data or URI is set.
type Media struct {
	MimeType string `json:"mime_type"`
	Data     []byte `json:"-"`
	URI      string `json:"uri,omitempty"`
}

// Empty reports whether the media carries no content
func (m *Media) Empty() bool {
	return m == nil || (len(m.Data) == 0 && m.URI == "")
}
