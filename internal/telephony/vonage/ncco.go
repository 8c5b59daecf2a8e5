package vonage

// Action is one step of a Vonage call control object (NCCO).
type Action struct {
	Action           string     `json:"action"`
	Text             string     `json:"text,omitempty"`
	Language         string     `json:"language,omitempty"`
	Style            int        `json:"style,omitempty"`
	From             string     `json:"from,omitempty"`
	Endpoint         []Endpoint `json:"endpoint,omitempty"`
	MachineDetection string     `json:"machineDetection,omitempty"`
	EventURL         []string   `json:"eventUrl,omitempty"`
	EventMethod      string     `json:"eventMethod,omitempty"`
}

// Endpoint is a connect target.
type Endpoint struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

// NCCO is an ordered list of call actions.
type NCCO []Action

// AnswerOptions shapes the document returned when a placed call is answered.
type AnswerOptions struct {
	Greeting  string
	From      string
	ForwardTo string
	AMDURL    string
}

// AnswerNCCO greets the callee and bridges them to the forwarding number with
// answering machine detection reporting to AMDURL.
func AnswerNCCO(opts AnswerOptions) NCCO {
	doc := NCCO{}
	if opts.Greeting != "" {
		doc = append(doc, Action{Action: "talk", Text: opts.Greeting})
	}
	if opts.ForwardTo == "" {
		return doc
	}
	connect := Action{
		Action:           "connect",
		From:             providerNumber(opts.From),
		Endpoint:         []Endpoint{{Type: "phone", Number: providerNumber(opts.ForwardTo)}},
		MachineDetection: "continue",
	}
	if opts.AMDURL != "" {
		connect.EventURL = []string{opts.AMDURL}
		connect.EventMethod = "POST"
	}
	return append(doc, connect)
}

// TalkNCCO speaks text; the call ends when the document runs out.
func TalkNCCO(text string) NCCO {
	return NCCO{{Action: "talk", Text: text}}
}

// HangupNCCO ends the call without further actions.
func HangupNCCO() NCCO {
	return NCCO{}
}
