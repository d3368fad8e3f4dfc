package storage

import (
	"context"
	"time"

	"github.com/edma-uni/reporter/internal/models"
)

// =============================================
// EVENT STORE
// =============================================

// EventStore defines the denormalized write target of ingestion. All saves
// are idempotent on event_id: a redelivered event is a no-op and existing
// rows are never modified.
type EventStore interface {
	SaveStatistic(ctx context.Context, stat *models.EventStatistic) error
	SaveRevenue(ctx context.Context, rec *models.RevenueRecord) error
	SaveDemographic(ctx context.Context, rec *models.DemographicRecord) error
}

// =============================================
// VIEW STORE
// =============================================

// ViewStore owns the precomputed aggregate views. Each Refresh* fully
// recomputes one view from the event store and swaps the result in without
// blocking concurrent readers; List* methods only ever read a fully-old or
// fully-new result set.
type ViewStore interface {
	RefreshHourlyEventStats(ctx context.Context) error
	RefreshHourlyRevenue(ctx context.Context) error
	RefreshFacebookDemographics(ctx context.Context) error
	RefreshTiktokDemographics(ctx context.Context) error

	ListHourlyEventStats(ctx context.Context, f EventStatsFilter) ([]*models.HourlyEventStat, error)
	ListHourlyRevenue(ctx context.Context, f RevenueFilter) ([]*models.HourlyRevenue, error)
	ListFacebookDemographics(ctx context.Context, f DemographicsFilter) ([]*models.FacebookDemographic, error)
	ListTiktokDemographics(ctx context.Context, f DemographicsFilter) ([]*models.TiktokDemographic, error)
}

// =============================================
// FILTERS
// =============================================

// EventStatsFilter narrows hourly event stat rows. Nil time bounds are open;
// empty string fields match everything.
type EventStatsFilter struct {
	From        *time.Time
	To          *time.Time
	Source      string
	FunnelStage string
	EventType   string
}

// RevenueFilter narrows hourly revenue rows.
type RevenueFilter struct {
	From       *time.Time
	To         *time.Time
	Source     string
	CampaignID string
}

// DemographicsFilter narrows daily demographic rows by day bucket.
type DemographicsFilter struct {
	From *time.Time
	To   *time.Time
}
