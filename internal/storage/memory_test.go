package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edma-uni/reporter/internal/models"
)

func ts(hour, minute int) time.Time {
	return time.Date(2026, 8, 30, hour, minute, 0, 0, time.UTC)
}

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }
func i64p(i int64) *int64   { return &i }

func TestInMemoryStore_SaveStatisticIdempotent(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	first := &models.EventStatistic{
		EventID:     "ev-1",
		Timestamp:   ts(10, 0),
		Source:      models.SourceFacebook,
		FunnelStage: models.FunnelStageTop,
		EventType:   "ad.view",
	}
	require.NoError(t, store.SaveStatistic(ctx, first))

	// Redelivered create with different contents must not replace the row.
	redelivered := &models.EventStatistic{
		EventID:   "ev-1",
		Timestamp: ts(11, 0),
		Source:    models.SourceTiktok,
		EventType: "like",
	}
	require.NoError(t, store.SaveStatistic(ctx, redelivered))

	assert.Equal(t, 1, store.StatisticCount())
	assert.Equal(t, "ad.view", store.GetStatistic("ev-1").EventType)
}

func TestInMemoryStore_RefreshHourlyEventStats(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.SaveStatistic(ctx, &models.EventStatistic{
			EventID:     id,
			Timestamp:   ts(10, i*10),
			Source:      models.SourceFacebook,
			FunnelStage: models.FunnelStageTop,
			EventType:   "ad.view",
		}))
	}
	require.NoError(t, store.SaveStatistic(ctx, &models.EventStatistic{
		EventID:     "d",
		Timestamp:   ts(11, 0),
		Source:      models.SourceTiktok,
		FunnelStage: models.FunnelStageBottom,
		EventType:   "purchase",
	}))

	require.NoError(t, store.RefreshHourlyEventStats(ctx))

	rows, err := store.ListHourlyEventStats(ctx, EventStatsFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Most recent hour first
	assert.Equal(t, ts(11, 0), rows[0].Hour)
	assert.Equal(t, int64(1), rows[0].Count)
	assert.Equal(t, ts(10, 0), rows[1].Hour)
	assert.Equal(t, int64(3), rows[1].Count)
	assert.Equal(t, models.SourceFacebook, rows[1].Source)
}

func TestInMemoryStore_RefreshHourlyRevenue(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	amounts := []string{"10.00", "49.99"}
	for i, amt := range amounts {
		d, err := decimal.NewFromString(amt)
		require.NoError(t, err)
		require.NoError(t, store.SaveRevenue(ctx, &models.RevenueRecord{
			EventID:        "rev-" + amt,
			Timestamp:      ts(10, i),
			Source:         models.SourceFacebook,
			EventType:      models.FacebookRevenueEventType,
			PurchaseAmount: d,
			CampaignID:     strp("camp-1"),
		}))
	}

	require.NoError(t, store.RefreshHourlyRevenue(ctx))

	rows, err := store.ListHourlyRevenue(ctx, RevenueFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].Transactions)
	assert.Equal(t, "59.99", rows[0].Revenue.StringFixed(2))
	assert.Equal(t, "camp-1", rows[0].CampaignID)
}

func TestInMemoryStore_RefreshFacebookDemographics_DistinctUsers(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	// Same user appearing twice in one group counts once.
	for _, id := range []string{"ev-1", "ev-2", "ev-3"} {
		user := "u1"
		if id == "ev-3" {
			user = "u2"
		}
		require.NoError(t, store.SaveDemographic(ctx, &models.DemographicRecord{
			EventID:   id,
			Timestamp: ts(9, 0),
			Source:    models.SourceFacebook,
			EventType: "ad.view",
			UserID:    user,
			Age:       intp(30),
			Gender:    strp("male"),
			Country:   strp("DE"),
			City:      strp("Berlin"),
		}))
	}

	require.NoError(t, store.RefreshFacebookDemographics(ctx))

	rows, err := store.ListFacebookDemographics(ctx, DemographicsFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].Users)
	assert.Equal(t, "DE", rows[0].Country)
}

func TestInMemoryStore_RefreshTiktokDemographics_Segments(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	followers := []int64{999, 1000, 99999, 100000}
	for i, f := range followers {
		require.NoError(t, store.SaveDemographic(ctx, &models.DemographicRecord{
			EventID:       "tt-" + string(rune('a'+i)),
			Timestamp:     ts(9, 0),
			Source:        models.SourceTiktok,
			EventType:     "video.view",
			UserID:        "user-" + string(rune('a'+i)),
			Followers:     i64p(f),
			TiktokCountry: strp("US"),
		}))
	}

	require.NoError(t, store.RefreshTiktokDemographics(ctx))

	rows, err := store.ListTiktokDemographics(ctx, DemographicsFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 4)

	segments := make(map[string]int64)
	for _, r := range rows {
		segments[r.FollowerSegment] += r.Users
	}
	assert.Equal(t, int64(1), segments[models.FollowerSegmentSmall])
	assert.Equal(t, int64(1), segments[models.FollowerSegmentMedium])
	assert.Equal(t, int64(1), segments[models.FollowerSegmentLarge])
	assert.Equal(t, int64(1), segments[models.FollowerSegmentHuge])
}

func TestInMemoryStore_RefreshSwapsAtomically(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.SaveStatistic(ctx, &models.EventStatistic{
		EventID:     "ev-1",
		Timestamp:   ts(10, 0),
		Source:      models.SourceFacebook,
		FunnelStage: models.FunnelStageTop,
		EventType:   "ad.view",
	}))
	require.NoError(t, store.RefreshHourlyEventStats(ctx))

	// A result set handed out before a refresh stays internally consistent
	// while the refresh rebuilds the view.
	before, err := store.ListHourlyEventStats(ctx, EventStatsFilter{})
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, int64(1), before[0].Count)

	require.NoError(t, store.SaveStatistic(ctx, &models.EventStatistic{
		EventID:     "ev-2",
		Timestamp:   ts(10, 30),
		Source:      models.SourceFacebook,
		FunnelStage: models.FunnelStageTop,
		EventType:   "ad.view",
	}))
	require.NoError(t, store.RefreshHourlyEventStats(ctx))

	// Old snapshot is untouched, new reads see the new set.
	assert.Equal(t, int64(1), before[0].Count)
	after, err := store.ListHourlyEventStats(ctx, EventStatsFilter{})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, int64(2), after[0].Count)
}

func TestInMemoryStore_ListFilters(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	events := []struct {
		id     string
		hour   time.Time
		source string
		stage  string
		typ    string
	}{
		{"1", ts(8, 0), models.SourceFacebook, models.FunnelStageTop, "ad.view"},
		{"2", ts(9, 0), models.SourceFacebook, models.FunnelStageBottom, "checkout.complete"},
		{"3", ts(10, 0), models.SourceTiktok, models.FunnelStageTop, "video.view"},
	}
	for _, e := range events {
		require.NoError(t, store.SaveStatistic(ctx, &models.EventStatistic{
			EventID: e.id, Timestamp: e.hour, Source: e.source, FunnelStage: e.stage, EventType: e.typ,
		}))
	}
	require.NoError(t, store.RefreshHourlyEventStats(ctx))

	from := ts(9, 0)
	rows, err := store.ListHourlyEventStats(ctx, EventStatsFilter{From: &from})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = store.ListHourlyEventStats(ctx, EventStatsFilter{Source: models.SourceTiktok})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "video.view", rows[0].EventType)

	rows, err = store.ListHourlyEventStats(ctx, EventStatsFilter{FunnelStage: models.FunnelStageBottom})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "checkout.complete", rows[0].EventType)
}
