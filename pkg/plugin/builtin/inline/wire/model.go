package wire // import "autovader.dev/cmd/pkg/plugin/builtin/inline/wire"

import "encoding/json"

type Config struct {
	File string `json:"file"`
}

func (c Config) String() string {
	p, _ := json.Marshal(c)
	return string(p)
}
