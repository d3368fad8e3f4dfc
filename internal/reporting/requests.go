package reporting

import (
	"errors"
	"fmt"
	"time"

	"github.com/edma-uni/reporter/internal/models"
)

// ErrInvalidRequest wraps every request validation failure so the transport
// layer can map it to a 400 response.
var ErrInvalidRequest = errors.New("invalid request")

// EventsRequest parameterizes the event statistics query. Zero values mean
// "no filter"; only the fields listed here are accepted as filters.
type EventsRequest struct {
	From        *time.Time
	To          *time.Time
	Source      string
	FunnelStage string
	EventType   string
}

func (r EventsRequest) Validate() error {
	if err := validateSource(r.Source); err != nil {
		return err
	}
	if err := validateFunnelStage(r.FunnelStage); err != nil {
		return err
	}
	return validateRange(r.From, r.To)
}

func (r EventsRequest) cacheFields() []string {
	return []string{fmtTime(r.From), fmtTime(r.To), r.Source, r.FunnelStage, r.EventType}
}

// RevenueRequest parameterizes the revenue statistics query.
type RevenueRequest struct {
	From       *time.Time
	To         *time.Time
	Source     string
	CampaignID string
}

func (r RevenueRequest) Validate() error {
	if err := validateSource(r.Source); err != nil {
		return err
	}
	return validateRange(r.From, r.To)
}

func (r RevenueRequest) cacheFields() []string {
	return []string{fmtTime(r.From), fmtTime(r.To), r.Source, r.CampaignID}
}

// DemographicsRequest parameterizes the demographics query.
type DemographicsRequest struct {
	From   *time.Time
	To     *time.Time
	Source string
}

func (r DemographicsRequest) Validate() error {
	if err := validateSource(r.Source); err != nil {
		return err
	}
	return validateRange(r.From, r.To)
}

func (r DemographicsRequest) cacheFields() []string {
	return []string{fmtTime(r.From), fmtTime(r.To), r.Source}
}

func validateSource(source string) error {
	switch source {
	case "", models.SourceFacebook, models.SourceTiktok:
		return nil
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidRequest, source)
	}
}

func validateFunnelStage(stage string) error {
	switch stage {
	case "", models.FunnelStageTop, models.FunnelStageBottom:
		return nil
	default:
		return fmt.Errorf("%w: unknown funnel stage %q", ErrInvalidRequest, stage)
	}
}

func validateRange(from, to *time.Time) error {
	if from != nil && to != nil && from.After(*to) {
		return fmt.Errorf("%w: from is after to", ErrInvalidRequest)
	}
	return nil
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
