// Package domain holds the sale record created for a lead.
package domain

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Stage string

const (
	StageProspecting   Stage = "prospecting"
	StageQualification Stage = "qualification"
	StageProposal      Stage = "proposal"
	StageNegotiation   Stage = "negotiation"
	StageClosedWon     Stage = "closed-won"
	StageClosedLost    Stage = "closed-lost"
)

// IsClosed reports whether the stage ends the sale.
func (s Stage) IsClosed() bool {
	return s == StageClosedWon || s == StageClosedLost
}

type Source string

const (
	SourceManual     Source = "manual"
	SourceConversion Source = "conversion"
)

type Sale struct {
	ID                uuid.UUID  `json:"id"`
	TenantID          uuid.UUID  `json:"tenantId"`
	LeadID            uuid.UUID  `json:"leadId"`
	Title             string     `json:"title"`
	Stage             Stage      `json:"stage"`
	Value             float64    `json:"value"`
	Probability       int        `json:"probability"`
	ExpectedRevenue   float64    `json:"expectedRevenue"`
	ExpectedCloseDate *time.Time `json:"expectedCloseDate,omitempty"`
	ClosedAt          *time.Time `json:"closedAt,omitempty"`
	Owner             *uuid.UUID `json:"owner,omitempty"`
	Source            Source     `json:"source"`
	CreatedBy         *uuid.UUID `json:"createdBy,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Initialize stamps identity and derives the figures that follow from the
// stage. Closed-won sales are certain, closed-lost ones are worth nothing.
func (s *Sale) Initialize(now time.Time) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Title = strings.TrimSpace(s.Title)
	if s.Stage == "" {
		s.Stage = StageProspecting
	}
	if s.Source == "" {
		s.Source = SourceManual
	}
	switch s.Stage {
	case StageClosedWon:
		s.Probability = 100
	case StageClosedLost:
		s.Probability = 0
	}
	s.Probability = min(max(s.Probability, 0), 100)
	s.ExpectedRevenue = math.Round(s.Value*float64(s.Probability)) / 100
	if s.Stage.IsClosed() && s.ClosedAt == nil {
		closed := now
		s.ClosedAt = &closed
	}
	s.CreatedAt = now
	s.UpdatedAt = now
}

// FromConversion builds the closed-won sale recorded when a lead converts.
func FromConversion(tenantID, leadID uuid.UUID, conversionType string, value float64, owner *uuid.UUID, convertedAt time.Time) Sale {
	title := "Converted lead"
	if conversionType != "" {
		title = "Converted lead (" + conversionType + ")"
	}
	s := Sale{
		TenantID: tenantID,
		LeadID:   leadID,
		Title:    title,
		Stage:    StageClosedWon,
		Value:    value,
		Owner:    owner,
		Source:   SourceConversion,
	}
	closed := convertedAt
	s.ClosedAt = &closed
	s.Initialize(convertedAt)
	return s
}
