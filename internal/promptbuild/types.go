package promptbuild

import "strings"

// Stage is the caller-declared phase of a conversation.
type Stage string

const (
	StageStartup         Stage = "startup"
	StageMidConversation Stage = "mid_conversation"
	StageClosing         Stage = "closing"
	// StageActive selects the same sections as StageMidConversation.
	StageActive Stage = "active"
)

// ParseStage normalizes s. Unknown values are returned as-is; they select no
// stage-specific sections.
func ParseStage(s string) Stage {
	return Stage(strings.ToLower(strings.TrimSpace(s)))
}

// Known reports whether the stage has its own section list.
func (s Stage) Known() bool {
	_, ok := stageSections[s]
	return ok
}

// Request defines inputs for one prompt assembly.
type Request struct {
	Stage Stage `json:"stage"`

	// DateTime, when set, is rendered as a trailing date/time block.
	DateTime *DateTimeInfo `json:"datetime,omitempty"`
	// Guardrails is appended verbatim as the final block.
	Guardrails string `json:"guardrails,omitempty"`

	// Include replaces the stage-derived selection entirely when non-nil,
	// including the always-included sections. An empty, non-nil slice selects
	// nothing.
	Include []string `json:"include_sections,omitempty"`
	// Exclude removes keys from the selection no matter how they got there.
	Exclude []string `json:"exclude_sections,omitempty"`
}

// DateTimeInfo holds preformatted date/time fields. Empty fields render as a
// placeholder.
type DateTimeInfo struct {
	ReadableDate     string `json:"readable_date,omitempty"`
	DayOfWeek        string `json:"day_of_week,omitempty"`
	CurrentDate      string `json:"current_date,omitempty"`
	CurrentTime      string `json:"current_time,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
	TomorrowReadable string `json:"tomorrow_readable,omitempty"`
	TomorrowDay      string `json:"tomorrow_day,omitempty"`
	TomorrowDate     string `json:"tomorrow_date,omitempty"`
}
