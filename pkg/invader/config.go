package invader

import (
	"encoding/json"
	"strings"

	"autovader.dev/cmd/pkg/errors"
)

// BindingName is the page function the callbacks report through.
const BindingName = "sendToBurp"

// ReadyExpression holds once DOM Invader has finished with the page.
const ReadyExpression = `() => window.BurpDOMInvader && window.BurpDOMInvader.isComplete`

// SettingsPage is the extension page whose storage holds the settings.
func SettingsPage(extensionID string) string {
	return "chrome-extension://" + extensionID + "/settings/settings.html"
}

// Callbacks are the JavaScript functions DOM Invader calls for every sink,
// source and web message it observes.
type Callbacks struct {
	Sink    string `json:"sink,omitempty"`
	Source  string `json:"source,omitempty"`
	Message string `json:"message,omitempty"`
}

func DefaultCallbacks() Callbacks {
	return Callbacks{
		Sink:    sinkCallback,
		Source:  sourceCallback,
		Message: messageCallback,
	}
}

// WithDefaults fills every empty callback with its default.
func (c Callbacks) WithDefaults() Callbacks {
	d := DefaultCallbacks()
	if strings.TrimSpace(c.Sink) == "" {
		c.Sink = d.Sink
	}
	if strings.TrimSpace(c.Source) == "" {
		c.Source = d.Source
	}
	if strings.TrimSpace(c.Message) == "" {
		c.Message = d.Message
	}
	return c
}

type Config struct {
	Profile   Profile
	Callbacks Callbacks
}

func NewConfig(p Profile, cb Callbacks) Config {
	return Config{Profile: p, Callbacks: cb.WithDefaults()}
}

type settings struct {
	Profile
	SinkCallback    string `json:"sinkCallback"`
	SourceCallback  string `json:"sourceCallback"`
	MessageCallback string `json:"messageCallback"`
}

// SettingsScript returns a function expression that stores the config in
// the extension's local storage. It must be evaluated on the settings page.
func (c Config) SettingsScript() (string, error) {
	cb := c.Callbacks.WithDefaults()

	p := c.Profile
	if p.DisabledSinks == nil {
		p.DisabledSinks = []string{}
	}

	raw, err := json.Marshal(settings{
		Profile:         p,
		SinkCallback:    cb.Sink,
		SourceCallback:  cb.Source,
		MessageCallback: cb.Message,
	})
	if err != nil {
		return "", errors.New("failed to encode settings: %w", err)
	}

	var sb strings.Builder

	sb.WriteString("() => {\n\tchrome.storage.local.set(")
	sb.Write(raw)
	sb.WriteString(", () => {\n\t\tconsole.log('DOM Invader settings saved');\n\t});\n}")

	return sb.String(), nil
}

const sinkCallback = `function(sinkDetails, sinks, interestingSinks) {
    const payload = {
        isInteresting: sinkDetails.isInteresting,
        canary: sinkDetails.canary,
        sink: sinkDetails.sink,
        stackTrace: sinkDetails.stackTrace,
        value: sinkDetails.value,
        url: sinkDetails.url,
        framePath: sinkDetails.framePath,
        event: sinkDetails.event,
        outerHTML: sinkDetails.outerHTML
    };
    if(payload.isInteresting && payload.value.includes(payload.canary)) {
        sendToBurp(payload, "sink");
        return true;
    }
    return false;
}`

const sourceCallback = `function(sourceDetails, sources) {
    const payload = {
        isInteresting: sourceDetails.isInteresting,
        canary: sourceDetails.canary,
        source: sourceDetails.source,
        stackTrace: sourceDetails.stackTrace,
        value: sourceDetails.value,
        url: sourceDetails.url,
        framePath: sourceDetails.framePath,
        event: sourceDetails.event
    };
    if(payload.isInteresting) {
        sendToBurp(payload, "source");
        return true;
    }
    return false;
}`

const messageCallback = "function(msg) {\n" +
	"    const payload = {\n" +
	"        isInteresting: msg.isInteresting,\n" +
	"        canary: msg.canary,\n" +
	"        id: msg.id,\n" +
	"        title: msg.title,\n" +
	"        description: `Web message data is being sent via ${msg.description.originalOrigin} to origin ${msg.description.origin} from a postMessage request. ${msg.description.extra} This event listener ${msg.description.originCheckedFirst} check the origin before accessing data.`,\n" +
	"        url: msg.url,\n" +
	"        charactersEncoded: `${msg.charactersEncoded.sinkInjection}`,\n" +
	"        confidence: msg.confidence,\n" +
	"        dataAccessed: msg.dataAccessed,\n" +
	"        dataStackTrace: msg.dataStackTrace,\n" +
	"        eventListener: msg.eventListener,\n" +
	"        eventListenerStack: msg.eventListenerStack,\n" +
	"        followupVerified: msg.followupVerified,\n" +
	"        manipulatedData: msg.manipulatedData,\n" +
	"        messageType: msg.messageType,\n" +
	"        origin: msg.origin,\n" +
	"        originChecked: msg.originChecked,\n" +
	"        originCheckedFirst: msg.originCheckedFirst,\n" +
	"        originStackTrace: msg.originStackTrace,\n" +
	"        originalOrigin: msg.originalOrigin,\n" +
	"        postMessageData: msg.postMessageData,\n" +
	"        severity: msg.severity,\n" +
	"        sink: msg.sink,\n" +
	"        sinkValue: msg.sinkValue,\n" +
	"        sourceAccessed: msg.sourceAccessed,\n" +
	"        sourceId: msg.sourceId,\n" +
	"        spoofed: msg.spoofed,\n" +
	"        verified: msg.verified,\n" +
	"        framePathFrom: msg.framePathFrom,\n" +
	"        framePathTo: msg.framePathTo\n" +
	"    };\n" +
	"    if(payload.isInteresting) {\n" +
	"        sendToBurp(payload, \"message\");\n" +
	"        return true;\n" +
	"    }\n" +
	"    return false;\n" +
	"}"
