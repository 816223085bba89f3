package transport

import (
	"time"

	"github.com/google/uuid"
)

type CreateSaleRequest struct {
	LeadID            uuid.UUID  `json:"leadId" validate:"required"`
	Title             string     `json:"title" validate:"required,min=1,max=200"`
	Stage             string     `json:"stage" validate:"omitempty,oneof=prospecting qualification proposal negotiation closed-won closed-lost"`
	Value             float64    `json:"value" validate:"min=0"`
	Probability       int        `json:"probability" validate:"min=0,max=100"`
	ExpectedCloseDate *time.Time `json:"expectedCloseDate"`
	Owner             *uuid.UUID `json:"owner"`
}
