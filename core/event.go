package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// EventType identifies what happened to a record.
type EventType string

const (
	EventNewRecord    EventType = "newRecord"
	EventUpdateRecord EventType = "updateRecord"
	EventDeleteRecord EventType = "deleteRecord"
)

// ParseEventType accepts both the camel-case wire names and the
// upper-snake forms (NEW_RECORD, UPDATE_RECORD, DELETE_RECORD).
func ParseEventType(s string) (EventType, error) {
	switch strings.ToUpper(strings.ReplaceAll(s, "_", "")) {
	case "NEWRECORD":
		return EventNewRecord, nil
	case "UPDATERECORD":
		return EventUpdateRecord, nil
	case "DELETERECORD":
		return EventDeleteRecord, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
}

// Payload carries the record attributes and the location of its content.
// At most one of SignedURLRoute, SignedURL and Buffer is set when the event
// arrives; payload resolution fills Buffer before extraction.
type Payload struct {
	RecordID        string `json:"recordId"`
	OrgID           string `json:"orgId"`
	VirtualRecordID string `json:"virtualRecordId"`
	Extension       string `json:"extension"`
	MimeType        string `json:"mimeType"`
	RecordName      string `json:"recordName"`
	Version         int    `json:"version"`
	Origin          string `json:"origin"`
	ConnectorName   string `json:"connectorName"`
	SignedURLRoute  string `json:"signedUrlRoute,omitempty"`
	SignedURL       string `json:"signedUrl,omitempty"`
	Buffer          []byte `json:"buffer,omitempty"`
}

// Kind resolves the payload's content kind from its mime type and extension.
func (p *Payload) Kind() ContentKind {
	return KindOf(p.MimeType, p.Extension)
}

// Event is the unit of work taken off the broker.
type Event struct {
	Type      EventType `json:"eventType"`
	Payload   Payload   `json:"payload"`
	Timestamp int64     `json:"timestamp,omitempty"`
}

// UnmarshalJSON normalises the event type while decoding.
func (e *Event) UnmarshalJSON(data []byte) error {
	type rawEvent Event
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, err := ParseEventType(string(raw.Type))
	if err != nil {
		return err
	}
	raw.Type = t
	*e = Event(raw)
	return nil
}

// DecodeEvent parses a broker message value. Producers sometimes encode the
// event twice, so a JSON string whose contents are JSON is unwrapped first.
func DecodeEvent(value []byte) (*Event, error) {
	value = bytes.TrimSpace(value)
	if len(value) == 0 {
		return nil, fmt.Errorf("%w: empty message value", ErrMalformedEvent)
	}
	if value[0] == '"' {
		var inner string
		if err := json.Unmarshal(value, &inner); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
		}
		value = bytes.TrimSpace([]byte(inner))
	}

	var event Event
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if err := ValidateEvent(&event); err != nil {
		return nil, err
	}
	return &event, nil
}

// EncodeEvent serializes an event in its single-encoded wire form.
func EncodeEvent(e *Event) ([]byte, error) {
	return json.Marshal(e)
}

// ExtractionInput is what a kind's extractor receives once the payload's
// content has been resolved.
type ExtractionInput struct {
	RecordID        string
	RecordName      string
	Version         int
	Source          string // Origin of the record, or the connector that produced it
	OrgID           string
	VirtualRecordID string
	Kind            ContentKind
	Content         []byte
}

// ExtractionInput builds the extractor input from a resolved payload.
func (p *Payload) ExtractionInput() ExtractionInput {
	source := p.Origin
	if source == "" {
		source = p.ConnectorName
	}
	return ExtractionInput{
		RecordID:        p.RecordID,
		RecordName:      p.RecordName,
		Version:         p.Version,
		Source:          source,
		OrgID:           p.OrgID,
		VirtualRecordID: p.VirtualRecordID,
		Kind:            p.Kind(),
		Content:         p.Buffer,
	}
}
