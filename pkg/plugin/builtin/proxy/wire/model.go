package wire // import "autovader.dev/cmd/pkg/plugin/builtin/proxy/wire"

import "encoding/json"

type Config struct {
	Addr    string `json:"addr"`
	MaxBody int64  `json:"maxBody,omitempty"`

	// Metrics serves the scan counters on /metrics of the proxy listener.
	Metrics bool `json:"metrics,omitempty"`
}

func (c Config) String() string {
	p, _ := json.Marshal(c)
	return string(p)
}
