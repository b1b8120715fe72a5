package chat

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Draft is a message the local user wants to send. It has no authoritative
// ID or timestamp until the remote store acknowledges it.
type Draft struct {
	ClientID   string
	Text       string
	Author     Author
	Attachment *Attachment
}

// NewDraft creates a draft with a fresh client ID.
func NewDraft(author Author, text string, att *Attachment) Draft {
	return Draft{
		ClientID:   uuid.NewString(),
		Text:       text,
		Author:     author,
		Attachment: att,
	}
}

// Validate rejects drafts that could never be displayed.
func (d Draft) Validate() error {
	if d.Author.ID == "" {
		return errors.New("draft has no author id")
	}
	if d.Text == "" && d.Attachment == nil {
		return errors.New("draft has neither text nor attachment")
	}
	if d.Attachment == nil {
		return nil
	}
	switch d.Attachment.Kind {
	case AttachmentImage:
		if d.Attachment.URL == "" {
			return errors.New("image attachment has empty url")
		}
	case AttachmentLocation:
		if lat := d.Attachment.Latitude; math.IsNaN(lat) || lat < -90 || lat > 90 {
			return fmt.Errorf("latitude %v out of range", lat)
		}
		if lng := d.Attachment.Longitude; math.IsNaN(lng) || lng < -180 || lng > 180 {
			return fmt.Errorf("longitude %v out of range", lng)
		}
	default:
		return fmt.Errorf("unknown attachment kind %d", d.Attachment.Kind)
	}
	return nil
}

// Placeholder renders the draft as a local, unacknowledged message. The
// timestamp is display-only and must never be used for canonical ordering.
func (d Draft) Placeholder(now time.Time) Message {
	id := d.ClientID
	if id == "" {
		id = uuid.NewString()
	}
	return Message{
		ID:         "local-" + id,
		Text:       d.Text,
		CreatedAt:  now,
		Author:     d.Author,
		Attachment: d.Attachment,
	}
}
