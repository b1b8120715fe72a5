package cache

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"google.golang.org/protobuf/encoding/protowire"
)

// codecVersion is written at the head of every blob.
const codecVersion = 1

// Field numbers of the blob wire format.
const (
	fieldVersion = 1
	fieldMessage = 2

	msgID        = 1
	msgText      = 2
	msgCreatedAt = 3
	msgAuthor    = 4
	msgImage     = 5
	msgLocation  = 6

	authorID   = 1
	authorName = 2

	locLat = 1
	locLng = 2
)

var errTruncated = errors.New("truncated cache blob")

// Encode serializes a list in protobuf wire format, preserving order.
func Encode(l chat.List) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, codecVersion)
	for _, m := range l {
		b = protowire.AppendTag(b, fieldMessage, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeMessage(m))
	}
	return b
}

func encodeMessage(m chat.Message) []byte {
	var b []byte
	b = appendString(b, msgID, m.ID)
	b = appendString(b, msgText, m.Text)
	if !m.CreatedAt.IsZero() {
		b = protowire.AppendTag(b, msgCreatedAt, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(m.CreatedAt.UnixNano()))
	}

	var a []byte
	a = appendString(a, authorID, m.Author.ID)
	a = appendString(a, authorName, m.Author.DisplayName)
	b = protowire.AppendTag(b, msgAuthor, protowire.BytesType)
	b = protowire.AppendBytes(b, a)

	if att := m.Attachment; att != nil {
		switch att.Kind {
		case chat.AttachmentImage:
			b = protowire.AppendTag(b, msgImage, protowire.BytesType)
			b = protowire.AppendString(b, att.URL)
		case chat.AttachmentLocation:
			var loc []byte
			loc = protowire.AppendTag(loc, locLat, protowire.Fixed64Type)
			loc = protowire.AppendFixed64(loc, math.Float64bits(att.Latitude))
			loc = protowire.AppendTag(loc, locLng, protowire.Fixed64Type)
			loc = protowire.AppendFixed64(loc, math.Float64bits(att.Longitude))
			b = protowire.AppendTag(b, msgLocation, protowire.BytesType)
			b = protowire.AppendBytes(b, loc)
		}
	}
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// Decode parses a blob produced by Encode. Unknown fields are skipped.
func Decode(b []byte) (chat.List, error) {
	var (
		out     chat.List
		version uint64
	)
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			if n < 0 {
				return 0, errTruncated
			}
			version = x
			return n, nil
		case num == fieldMessage && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return 0, errTruncated
			}
			m, err := decodeMessage(raw)
			if err != nil {
				return 0, err
			}
			out = append(out, m)
			return n, nil
		}
		return -1, nil
	})
	if err != nil {
		return nil, err
	}
	if version != codecVersion {
		return nil, fmt.Errorf("unsupported cache blob version %d", version)
	}
	return out, nil
}

func decodeMessage(b []byte) (chat.Message, error) {
	var m chat.Message
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == msgCreatedAt && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			if n < 0 {
				return 0, errTruncated
			}
			m.CreatedAt = time.Unix(0, protowire.DecodeZigZag(x)).UTC()
			return n, nil
		case typ != protowire.BytesType:
			return -1, nil
		}
		raw, n := protowire.ConsumeBytes(v)
		if n < 0 {
			return 0, errTruncated
		}
		switch num {
		case msgID:
			m.ID = string(raw)
		case msgText:
			m.Text = string(raw)
		case msgAuthor:
			a, err := decodeAuthor(raw)
			if err != nil {
				return 0, err
			}
			m.Author = a
		case msgImage:
			m.Attachment = chat.Image(string(raw))
		case msgLocation:
			loc, err := decodeLocation(raw)
			if err != nil {
				return 0, err
			}
			m.Attachment = loc
		}
		return n, nil
	})
	return m, err
}

func decodeAuthor(b []byte) (chat.Author, error) {
	var a chat.Author
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if typ != protowire.BytesType {
			return -1, nil
		}
		raw, n := protowire.ConsumeBytes(v)
		if n < 0 {
			return 0, errTruncated
		}
		switch num {
		case authorID:
			a.ID = string(raw)
		case authorName:
			a.DisplayName = string(raw)
		}
		return n, nil
	})
	return a, err
}

func decodeLocation(b []byte) (*chat.Attachment, error) {
	loc := chat.Location(0, 0)
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if typ != protowire.Fixed64Type {
			return -1, nil
		}
		x, n := protowire.ConsumeFixed64(v)
		if n < 0 {
			return 0, errTruncated
		}
		switch num {
		case locLat:
			loc.Latitude = math.Float64frombits(x)
		case locLng:
			loc.Longitude = math.Float64frombits(x)
		}
		return n, nil
	})
	return loc, err
}

// walk iterates the fields of b. fn consumes the value and returns its length,
// or -1 to have the field skipped.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated
		}
		b = b[n:]
		used, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if used < 0 {
			used = protowire.ConsumeFieldValue(num, typ, b)
			if used < 0 {
				return errTruncated
			}
		}
		b = b[used:]
	}
	return nil
}
