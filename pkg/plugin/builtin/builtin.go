package builtin // import "autovader.dev/cmd/pkg/plugin/builtin"

import (
	"autovader.dev/cmd/pkg/plugin/builtin/har"
	"autovader.dev/cmd/pkg/plugin/builtin/inline"
	"autovader.dev/cmd/pkg/plugin/builtin/proxy"
	"autovader.dev/cmd/pkg/plugin/builtin/scan"
	"autovader.dev/cmd/pkg/proto"
)

func Plugins() []proto.Interface {
	return []proto.Interface{
		har.New(),
		inline.New(),
		proxy.New(),
		scan.New(),
	}
}
