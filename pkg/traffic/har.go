package traffic

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"autovader.dev/cmd/pkg/errors"

	"github.com/google/uuid"
)

type harLog struct {
	Log struct {
		Entries []harEntry `json:"entries"`
	} `json:"log"`
}

type harEntry struct {
	Started  time.Time   `json:"startedDateTime"`
	Request  harRequest  `json:"request"`
	Response harResponse `json:"response"`
}

type harHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type harRequest struct {
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Headers  []harHeader `json:"headers"`
	PostData *struct {
		MimeType string `json:"mimeType"`
		Text     string `json:"text"`
	} `json:"postData,omitempty"`
}

type harResponse struct {
	Status  int         `json:"status"`
	Headers []harHeader `json:"headers"`
	Content struct {
		MimeType string `json:"mimeType"`
		Text     string `json:"text"`
		Encoding string `json:"encoding,omitempty"`
	} `json:"content"`
}

// ReadHAR reads the entries of a HAR 1.2 document as flows. Entries whose
// response status is 0 (never answered) carry no response record.
func ReadHAR(r io.Reader) ([]Flow, error) {
	var doc harLog

	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.New("failed to decode har: %w", err)
	}

	flows := make([]Flow, 0, len(doc.Log.Entries))

	for i, e := range doc.Log.Entries {
		if e.Request.URL == "" {
			return nil, errors.New("har entry %d: missing request url", i)
		}

		req := &Record{
			ID:        uuid.NewString(),
			Direction: Request,
			Method:    nonempty(e.Request.Method, http.MethodGet),
			URL:       e.Request.URL,
			Header:    harHeaders(e.Request.Headers),
			Tool:      "har",
			Time:      e.Started,
		}
		if pd := e.Request.PostData; pd != nil {
			req.Body = []byte(pd.Text)
			if pd.MimeType != "" && req.Header.Get("Content-Type") == "" {
				req.Header.Set("Content-Type", pd.MimeType)
			}
		}

		flow := Flow{Request: req}

		if e.Response.Status != 0 {
			body := []byte(e.Response.Content.Text)
			if e.Response.Content.Encoding == "base64" {
				p, err := base64.StdEncoding.DecodeString(e.Response.Content.Text)
				if err != nil {
					return nil, errors.New("har entry %d: failed to decode response body: %w", i, err)
				}
				body = p
			}

			flow.Response = &Record{
				ID:        uuid.NewString(),
				Direction: Response,
				Method:    req.Method,
				URL:       req.URL,
				Status:    e.Response.Status,
				Header:    harHeaders(e.Response.Headers),
				Body:      body,
				Tool:      "har",
				Time:      e.Started,
			}
		}

		flows = append(flows, flow)
	}

	return flows, nil
}

func harHeaders(hs []harHeader) http.Header {
	h := make(http.Header, len(hs))
	for _, kv := range hs {
		// HTTP/2 pseudo headers are not replayable
		if len(kv.Name) > 0 && kv.Name[0] == ':' {
			continue
		}
		h.Add(kv.Name, kv.Value)
	}
	return h
}
