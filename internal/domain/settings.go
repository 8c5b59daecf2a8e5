package domain

import (
	"strings"
	"time"
)

// Settings are the operator-editable dialer preferences.
type Settings struct {
	CallerID             string        `json:"callerId"`
	TimeZone             string        `json:"timeZone"`
	BulkDelay            time.Duration `json:"-"`
	VoicemailDropEnabled bool          `json:"enableVoicemailDrop"`
	VoicemailMessageID   string        `json:"voicemailMessageId,omitempty"`
	VoicemailTemplate    string        `json:"voicemailTemplate"`
	AgentName            string        `json:"agentName"`
	CompanyName          string        `json:"companyName"`
}

// BulkDelayMs is the bulk delay in milliseconds as exposed over the API.
func (s Settings) BulkDelayMs() int64 {
	return s.BulkDelay.Milliseconds()
}

// Location resolves TimeZone, falling back to UTC.
func (s Settings) Location() *time.Location {
	if s.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TemplateVars are the values substituted into voicemail and script templates.
type TemplateVars struct {
	Name    string
	Agent   string
	Company string
	Number  string
}

// VarsFor derives template values for a call, preferring call metadata over settings.
func (s Settings) VarsFor(call *Call) TemplateVars {
	vars := TemplateVars{
		Agent:   s.AgentName,
		Company: s.CompanyName,
		Number:  s.CallerID,
	}
	if call == nil {
		return vars
	}
	vars.Name = call.MetadataString("name")
	if agent := call.MetadataString("agent"); agent != "" {
		vars.Agent = agent
	}
	if company := call.MetadataString("company"); company != "" {
		vars.Company = company
	}
	return vars
}

// RenderTemplate replaces [Name], [Agent], [Company] and [Number] placeholders.
// Missing values collapse to an empty string and surplus whitespace is squeezed.
func RenderTemplate(tpl string, vars TemplateVars) string {
	r := strings.NewReplacer(
		"[Name]", vars.Name,
		"[Agent]", vars.Agent,
		"[Company]", vars.Company,
		"[Number]", vars.Number,
	)
	return strings.Join(strings.Fields(r.Replace(tpl)), " ")
}
