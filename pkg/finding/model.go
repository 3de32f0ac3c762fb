// Package finding turns DOM Invader callback payloads into deduplicated
// issues and keeps them per origin.
package finding // import "autovader.dev/cmd/pkg/finding"

import (
	"bytes"
	"encoding/json"
	"strings"

	"autovader.dev/cmd/pkg/errors"
)

type Type string

const (
	SinkType    Type = "sink"
	SourceType  Type = "source"
	MessageType Type = "message"
)

func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case SinkType, SourceType, MessageType:
		return t, nil
	}
	return "", errors.New("message type %q: %w", s, errors.ErrUnknownKind)
}

// Text is a payload field. Callbacks may send any JSON value; strings are
// kept as is, null is empty and anything else keeps its JSON encoding.
type Text string

func (t *Text) UnmarshalJSON(p []byte) error {
	p = bytes.TrimSpace(p)

	switch {
	case bytes.Equal(p, []byte("null")):
		*t = ""
	case len(p) != 0 && p[0] == '"':
		var s string
		if err := json.Unmarshal(p, &s); err != nil {
			return err
		}
		*t = Text(s)
	default:
		*t = Text(p)
	}

	return nil
}

func (t Text) String() string { return string(t) }

type Sink struct {
	IsInteresting bool `json:"isInteresting"`
	Canary        Text `json:"canary,omitempty"`
	Sink          Text `json:"sink,omitempty"`
	StackTrace    Text `json:"stackTrace,omitempty"`
	Value         Text `json:"value,omitempty"`
	URL           Text `json:"url,omitempty"`
	FramePath     Text `json:"framePath,omitempty"`
	Event         Text `json:"event,omitempty"`
	OuterHTML     Text `json:"outerHTML,omitempty"`
}

type Source struct {
	IsInteresting bool `json:"isInteresting"`
	Canary        Text `json:"canary,omitempty"`
	Source        Text `json:"source,omitempty"`
	StackTrace    Text `json:"stackTrace,omitempty"`
	Value         Text `json:"value,omitempty"`
	URL           Text `json:"url,omitempty"`
	FramePath     Text `json:"framePath,omitempty"`
	Event         Text `json:"event,omitempty"`
}

type Message struct {
	IsInteresting      bool `json:"isInteresting"`
	Canary             Text `json:"canary,omitempty"`
	ID                 Text `json:"id,omitempty"`
	Title              Text `json:"title,omitempty"`
	Description        Text `json:"description,omitempty"`
	URL                Text `json:"url,omitempty"`
	CharactersEncoded  Text `json:"charactersEncoded,omitempty"`
	Confidence         Text `json:"confidence,omitempty"`
	DataAccessed       Text `json:"dataAccessed,omitempty"`
	DataStackTrace     Text `json:"dataStackTrace,omitempty"`
	EventListener      Text `json:"eventListener,omitempty"`
	EventListenerStack Text `json:"eventListenerStack,omitempty"`
	FollowupVerified   Text `json:"followupVerified,omitempty"`
	ManipulatedData    Text `json:"manipulatedData,omitempty"`
	MessageType        Text `json:"messageType,omitempty"`
	Origin             Text `json:"origin,omitempty"`
	OriginChecked      Text `json:"originChecked,omitempty"`
	OriginCheckedFirst Text `json:"originCheckedFirst,omitempty"`
	OriginStackTrace   Text `json:"originStackTrace,omitempty"`
	OriginalOrigin     Text `json:"originalOrigin,omitempty"`
	PostMessageData    Text `json:"postMessageData,omitempty"`
	Severity           Text `json:"severity,omitempty"`
	Sink               Text `json:"sink,omitempty"`
	SinkValue          Text `json:"sinkValue,omitempty"`
	SourceAccessed     Text `json:"sourceAccessed,omitempty"`
	SourceID           Text `json:"sourceId,omitempty"`
	Spoofed            Text `json:"spoofed,omitempty"`
	Verified           Text `json:"verified,omitempty"`
	FramePathFrom      Text `json:"framePathFrom,omitempty"`
	FramePathTo        Text `json:"framePathTo,omitempty"`
}

// Decode parses a callback payload into a *Sink, *Source or *Message.
func Decode(typ Type, p []byte) (any, error) {
	var v any

	switch typ {
	case SinkType:
		v = new(Sink)
	case SourceType:
		v = new(Source)
	case MessageType:
		v = new(Message)
	default:
		return nil, errors.New("message type %q: %w", typ, errors.ErrUnknownKind)
	}

	if err := json.Unmarshal(p, v); err != nil {
		return nil, errors.New("failed to decode %s: %w", typ, err)
	}

	return v, nil
}
