package content

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind names the payload variant of a record.
type Kind string

const (
	KindText Kind = "text"
	KindFile Kind = "file"
)

// Payload is the body of a record. It is implemented by Text and File only.
type Payload interface {
	Kind() Kind
	isPayload()
}

// Text is an inline text payload.
type Text struct {
	Body string
}

func (Text) Kind() Kind { return KindText }
func (Text) isPayload()  {}

// File references a blob in the blob storage.
type File struct {
	// StorageRef is the blob name relative to the storage root.
	StorageRef string
	// Filename is the name supplied by the client.
	Filename string
}

func (File) Kind() Kind { return KindFile }
func (File) isPayload()  {}

// Record is a piece of shared content addressed by its code.
type Record struct {
	Code      string
	Payload   Payload
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Live reports whether the record has not expired at now.
func (r *Record) Live(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}

// EncodePayload flattens a payload into the columns the stores persist.
func EncodePayload(p Payload) (kind Kind, body string, filename string) {
	switch v := p.(type) {
	case Text:
		return KindText, v.Body, ""
	case File:
		return KindFile, v.StorageRef, v.Filename
	default:
		panic(fmt.Sprintf("content: unknown payload %T", p))
	}
}

// DecodePayload is the inverse of EncodePayload.
func DecodePayload(kind Kind, body, filename string) (Payload, error) {
	switch kind {
	case KindText:
		return Text{Body: body}, nil
	case KindFile:
		return File{StorageRef: body, Filename: filename}, nil
	default:
		return nil, fmt.Errorf("unknown content type %q", kind)
	}
}

type recordJSON struct {
	Type      Kind      `json:"type"`
	Content   string    `json:"content"`
	Filename  string    `json:"filename,omitempty"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// MarshalJSON renders the record in its wire shape. For file records
// content carries the storage reference, not the bytes.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.Payload == nil {
		return nil, fmt.Errorf("content: record %q has no payload", r.Code)
	}
	kind, body, filename := EncodePayload(r.Payload)
	return json.Marshal(recordJSON{
		Type:      kind,
		Content:   body,
		Filename:  filename,
		Code:      r.Code,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	payload, err := DecodePayload(raw.Type, raw.Content, raw.Filename)
	if err != nil {
		return err
	}
	*r = Record{
		Code:      raw.Code,
		Payload:   payload,
		CreatedAt: raw.CreatedAt,
		ExpiresAt: raw.ExpiresAt,
	}
	return nil
}
