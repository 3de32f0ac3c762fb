// Package invader builds the DOM Invader configuration pushed into the
// browser before each scan.
package invader // import "autovader.dev/cmd/pkg/invader"

const DefaultCanary = "burpdomxss"

// Profile holds DOM Invader settings. Field tags are the keys DOM Invader
// reads from extension storage.
type Profile struct {
	Canary                               string   `json:"canary"`
	Enabled                              bool     `json:"enabled"`
	CrossDomainLeaks                     bool     `json:"crossDomainLeaks"`
	DisabledSinks                        []string `json:"disabledSinks"`
	DOMClobbering                        bool     `json:"domClobbering"`
	DuplicateValues                      bool     `json:"duplicateValues"`
	FilterStack                          bool     `json:"filterStack"`
	FireEvents                           bool     `json:"fireEvents"`
	GuessStrings                         bool     `json:"guessStrings"`
	InjectCanary                         bool     `json:"injectCanary"`
	InjectIntoSources                    bool     `json:"injectIntoSources"`
	PermissionsPolicy                    bool     `json:"permissionsPolicy"`
	Postmessage                          bool     `json:"postmessage"`
	PreventRedirection                   bool     `json:"preventRedirection"`
	PrototypePollution                   bool     `json:"prototypePollution"`
	PrototypePollutionAutoScale          bool     `json:"prototypePollutionAutoScale"`
	PrototypePollutionCSP                bool     `json:"prototypePollutionCSP"`
	PrototypePollutionDiscoverProperties bool     `json:"prototypePollutionDiscoverProperties"`
	PrototypePollutionHash               bool     `json:"prototypePollutionHash"`
	PrototypePollutionJSON               bool     `json:"prototypePollutionJson"`
	PrototypePollutionNested             bool     `json:"prototypePollutionNested"`
	PrototypePollutionQueryString        bool     `json:"prototypePollutionQueryString"`
	PrototypePollutionSeparateFrame      bool     `json:"prototypePollutionSeparateFrame"`
	PrototypePollutionVerify             bool     `json:"prototypePollutionVerify"`
	PrototypePollutionXFrameOptions      bool     `json:"prototypePollutionXFrameOptions"`
	RedirectBreakpoint                   bool     `json:"redirectBreakpoint"`
	SpoofOrigin                          bool     `json:"spoofOrigin"`
}

func DefaultProfile() Profile {
	return Profile{
		Canary:                        DefaultCanary,
		Enabled:                       true,
		DisabledSinks:                 []string{},
		PrototypePollutionAutoScale:   true,
		PrototypePollutionHash:        true,
		PrototypePollutionJSON:        true,
		PrototypePollutionNested:      true,
		PrototypePollutionQueryString: true,
		PrototypePollutionVerify:      true,
	}
}

// ProfileFor returns the profile a scan of the given kind runs under. An
// empty canary keeps the default one.
func ProfileFor(kind Kind, canary string) Profile {
	p := DefaultProfile()
	if canary != "" {
		p.Canary = canary
	}

	switch kind {
	case WebMessage:
		p.Postmessage = true
		p.SpoofOrigin = true
		p.InjectCanary = true
		p.DuplicateValues = true
		p.GuessStrings = true
		p.CrossDomainLeaks = true
	case InjectSources:
		p.InjectIntoSources = true
	case InjectSourcesClick:
		p.InjectIntoSources = true
		p.FireEvents = true
	case PrototypePollution:
		p.PrototypePollution = true
		p.PrototypePollutionAutoScale = true
		p.PrototypePollutionNested = true
		p.PrototypePollutionQueryString = true
		p.PrototypePollutionHash = true
		p.PrototypePollutionJSON = true
		p.PrototypePollutionVerify = true
		p.PrototypePollutionCSP = false
		p.PrototypePollutionXFrameOptions = false
		p.PrototypePollutionSeparateFrame = false
	case PrototypePollutionGadgets:
		p.PrototypePollution = true
		p.PrototypePollutionDiscoverProperties = true
		p.PrototypePollutionAutoScale = true
		p.PrototypePollutionNested = true
		p.PrototypePollutionQueryString = false
		p.PrototypePollutionHash = false
		p.PrototypePollutionJSON = false
		p.PrototypePollutionVerify = false
		p.PrototypePollutionCSP = true
		p.PrototypePollutionXFrameOptions = true
		p.PrototypePollutionSeparateFrame = false
	case Redirect:
		p.RedirectBreakpoint = true
	}

	return p
}
