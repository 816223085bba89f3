package transport

import "time"

type DashboardQuery struct {
	Period     string `form:"period" validate:"omitempty,oneof=daily weekly monthly all"`
	AssignedTo string `form:"assignedTo" validate:"omitempty,uuid"`
	Source     string `form:"source" validate:"omitempty,max=50"`
}

type ExportQuery struct {
	DashboardQuery
	Format string `form:"format" validate:"omitempty,oneof=xlsx csv"`
}

type LeadSummary struct {
	Total          int     `json:"total"`
	Converted      int     `json:"converted"`
	ConversionRate float64 `json:"conversionRate"`
}

type StageDuration struct {
	Stage    string  `json:"stage"`
	AvgHours float64 `json:"avgHours"`
	Samples  int     `json:"samples"`
}

type ActivitySummary struct {
	Total         int            `json:"total"`
	Successful    int            `json:"successful"`
	Effectiveness float64        `json:"effectiveness"`
	ByOutcome     map[string]int `json:"byOutcome"`
}

type RevenueForecast struct {
	Expected float64 `json:"expected"`
}

type DocumentEngagement struct {
	Views int     `json:"views"`
	Rate  float64 `json:"rate"`
}

type Dashboard struct {
	Period             string             `json:"period"`
	Since              *time.Time         `json:"since,omitempty"`
	GeneratedAt        time.Time          `json:"generatedAt"`
	Leads              LeadSummary        `json:"leads"`
	StageDurations     []StageDuration    `json:"stageDurations"`
	Activities         ActivitySummary    `json:"activities"`
	Revenue            RevenueForecast    `json:"revenue"`
	DocumentEngagement DocumentEngagement `json:"documentEngagement"`
}
