// Package prediction defines autocomplete place predictions. A prediction
// starts as metadata-only (pending) and becomes resolved exactly once, when
// full geometry and details have been fetched from the provider and cached.
package prediction

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/placedex/internal/domain"
)

// Status is the resolution state of a prediction.
type Status string

const (
	// StatusPending means only prediction metadata is known.
	StatusPending Status = "pending"
	// StatusResolved means full details have been fetched and cached.
	// A prediction never reverts to pending.
	StatusResolved Status = "resolved"
)

// Prediction is an autocomplete place prediction record.
type Prediction struct {
	PlaceID string `json:"place_id"`

	Description        string `json:"description"`
	MainText           string `json:"main_text"`
	MainTextNormalized string `json:"main_text_normalized"`
	SecondaryText      string `json:"secondary_text,omitempty"`

	Terms []string `json:"terms,omitempty"`
	Types []string `json:"types,omitempty"`

	Status     Status `json:"status"`
	ClickCount int64  `json:"click_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the record is complete enough to enter the store.
func (p *Prediction) Validate() error {
	if p.PlaceID == "" {
		return fmt.Errorf("%w: place id is required", domain.ErrValidation)
	}
	if p.Description == "" && p.MainText == "" {
		return fmt.Errorf("%w: prediction has no display text", domain.ErrValidation)
	}
	switch p.Status {
	case StatusPending, StatusResolved:
	default:
		return fmt.Errorf("%w: unknown status %q", domain.ErrValidation, p.Status)
	}
	return nil
}
