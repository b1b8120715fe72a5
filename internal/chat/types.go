package chat

import (
	"time"
)

// Author identifies the sender of a message.
type Author struct {
	ID          string
	DisplayName string
}

// AttachmentKind discriminates the attachment variants.
type AttachmentKind int

const (
	AttachmentImage AttachmentKind = iota + 1
	AttachmentLocation
)

func (k AttachmentKind) String() string {
	switch k {
	case AttachmentImage:
		return "image"
	case AttachmentLocation:
		return "location"
	default:
		return "unknown"
	}
}

// Attachment is either an image URL or a geographic location.
type Attachment struct {
	Kind      AttachmentKind
	URL       string
	Latitude  float64
	Longitude float64
}

// Image returns an image attachment.
func Image(url string) *Attachment {
	return &Attachment{Kind: AttachmentImage, URL: url}
}

// Location returns a location attachment.
func Location(lat, lng float64) *Attachment {
	return &Attachment{Kind: AttachmentLocation, Latitude: lat, Longitude: lng}
}

// Message is a single chat message. Messages are never mutated once created.
type Message struct {
	ID         string
	Text       string
	CreatedAt  time.Time
	Author     Author
	Attachment *Attachment
}

// Equal reports whether two messages carry the same content.
func (m Message) Equal(o Message) bool {
	if m.ID != o.ID || m.Text != o.Text || m.Author != o.Author || !m.CreatedAt.Equal(o.CreatedAt) {
		return false
	}
	switch {
	case m.Attachment == nil && o.Attachment == nil:
		return true
	case m.Attachment == nil || o.Attachment == nil:
		return false
	default:
		return *m.Attachment == *o.Attachment
	}
}
