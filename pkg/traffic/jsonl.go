package traffic

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"autovader.dev/cmd/pkg/errors"

	"github.com/google/uuid"
)

// jsonRecord is the line format: bodies travel as text so streams stay
// hand-editable.
type jsonRecord struct {
	ID     string      `json:"id,omitempty"`
	Method string      `json:"method,omitempty"`
	URL    string      `json:"url,omitempty"`
	Header http.Header `json:"header,omitempty"`
	Body   string      `json:"body,omitempty"`
	Status int         `json:"status,omitempty"`
	Tool   string      `json:"tool,omitempty"`
	Time   time.Time   `json:"time,omitempty"`
}

type jsonFlow struct {
	Request  *jsonRecord `json:"request"`
	Response *jsonRecord `json:"response,omitempty"`
}

// Decode reads a JSON-lines stream of flows. Each value is either a flow
// object or an array of flow objects.
func Decode(r io.Reader) ([]Flow, error) {
	var (
		dec   = json.NewDecoder(r)
		flows []Flow
	)

	for index := 0; ; index++ {
		var raw json.RawMessage

		err := dec.Decode(&raw)
		if isEOF(err) {
			return flows, nil
		}
		if err != nil {
			return nil, errors.New("value %d: %w", index, err)
		}

		switch raw[0] {
		case '{':
			f, err := decodeFlow(raw)
			if err != nil {
				return nil, errors.New("value %d: %w", index, err)
			}
			flows = append(flows, f)
		case '[':
			var msgs []json.RawMessage

			if err := json.Unmarshal(raw, &msgs); err != nil {
				return nil, errors.New("value %d: %w", index, err)
			}

			for i, msg := range msgs {
				f, err := decodeFlow(msg)
				if err != nil {
					return nil, errors.New("value %d[%d]: %w", index, i, err)
				}
				flows = append(flows, f)
			}
		default:
			return nil, errors.New("value %d: unexpected JSON input", index)
		}

		slog.Debug("traffic: decode",
			"index", index,
			"flows", len(flows),
		)
	}
}

func decodeFlow(raw json.RawMessage) (Flow, error) {
	var jf jsonFlow

	if err := json.Unmarshal(raw, &jf); err != nil {
		return Flow{}, err
	}
	if jf.Request == nil || jf.Request.URL == "" {
		return Flow{}, errors.New("flow has no request url")
	}

	f := Flow{Request: jf.Request.record(Request)}
	if jf.Response != nil {
		f.Response = jf.Response.record(Response)
		f.Response.Method = nonempty(f.Response.Method, f.Request.Method)
		f.Response.URL = nonempty(f.Response.URL, f.Request.URL)
	}

	return f, nil
}

func (jr *jsonRecord) record(dir Direction) *Record {
	rec := &Record{
		ID:        nonempty(jr.ID, uuid.NewString()),
		Direction: dir,
		Method:    strings.ToUpper(jr.Method),
		URL:       jr.URL,
		Header:    jr.Header,
		Status:    jr.Status,
		Tool:      nonempty(jr.Tool, "inline"),
		Time:      jr.Time,
	}
	if rec.Header == nil {
		rec.Header = make(http.Header)
	}
	if jr.Body != "" {
		rec.Body = []byte(jr.Body)
	}
	if dir == Request {
		rec.Method = nonempty(rec.Method, http.MethodGet)
	}
	return rec
}

func toJSON(r *Record) *jsonRecord {
	if r == nil {
		return nil
	}
	return &jsonRecord{
		ID:     r.ID,
		Method: r.Method,
		URL:    r.URL,
		Header: r.Header,
		Body:   string(r.Body),
		Status: r.Status,
		Tool:   r.Tool,
		Time:   r.Time,
	}
}

// Encoder writes flows in the format read by Decode, one per line.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

func (e *Encoder) Encode(f Flow) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.enc.Encode(jsonFlow{Request: toJSON(f.Request), Response: toJSON(f.Response)}); err != nil {
		return errors.New("failed to encode flow: %w", err)
	}
	return nil
}

func isEOF(err error) bool {
	const eof = "unexpected end of JSON input"

	if errors.Is(err, io.EOF) {
		return true
	}

	if e := new(json.SyntaxError); errors.As(err, &e) && strings.Contains(e.Error(), eof) {
		return true
	}

	return false
}
