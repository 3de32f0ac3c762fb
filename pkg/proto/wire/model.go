package wire

import (
	"encoding/json"
	"log/slog"
)

type Plan struct {
	Jobs []Job `json:"jobs"`
}

type Job struct {
	ID      string   `json:"id,omitempty"`
	Plugins []Plugin `json:"plugins"`
	Steps   []Step   `json:"steps"`
}

type Generic = json.RawMessage

type Object map[string]Generic

func (o Object) LogValue() slog.Value {
	p, err := json.Marshal(o)
	if err != nil {
		panic("unexpected error: " + err.Error())
	}
	return slog.StringValue(string(p))
}

type Step struct {
	Uses    string          `json:"uses"`
	ID      string          `json:"id,omitempty"`
	Desc    string          `json:"desc,omitempty"`
	With    json.RawMessage `json:"with"`
	Timeout string          `json:"timeout,omitempty"`
}

type Plugin struct {
	Uses string          `json:"uses"`
	ID   string          `json:"id,omitempty"`
	With json.RawMessage `json:"with"`
}
