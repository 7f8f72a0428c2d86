// Package fulfillment defines the downstream submission collaborator: the
// service that actually acquires an approved request.
package fulfillment

import (
	"context"

	"github.com/requestline/intake-bot/internal/catalog"
)

// Request is one confirmed selection ready for submission.
type Request struct {
	Candidate   catalog.Candidate `json:"candidate"`
	Subunits    []int             `json:"subunits,omitempty"`
	AllSubunits bool              `json:"allSubunits,omitempty"`
	RequestedBy string            `json:"requestedBy"`
}

type Submitter interface {
	Submit(ctx context.Context, req Request) error
}
