package reporting

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edma-uni/reporter/internal/config"
	"github.com/edma-uni/reporter/internal/ingest"
	"github.com/edma-uni/reporter/internal/metrics"
	"github.com/edma-uni/reporter/internal/models"
	"github.com/edma-uni/reporter/internal/storage"
)

type recordedMessage struct {
	data  []byte
	acked bool
}

func (m *recordedMessage) Subject() string { return "events" }
func (m *recordedMessage) Data() []byte    { return m.data }
func (m *recordedMessage) Ack() error      { m.acked = true; return nil }
func (m *recordedMessage) Nak() error      { return nil }
func (m *recordedMessage) Term() error     { return nil }

func newTestService(views storage.ViewStore) *Service {
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	cfg := config.ReportConfig{PageSize: 500, CacheTTL: 0}
	return NewService(views, nil, cfg, m, zap.NewNop())
}

// ingestAll pushes raw payloads through the ingestion consumer into the store
// and refreshes every view, the way a deployment would between writes and a
// report query.
func ingestAll(t *testing.T, store *storage.InMemoryStore, payloads ...[]byte) {
	t.Helper()
	ctx := context.Background()

	m := metrics.NewMetrics("ingest_test", prometheus.NewRegistry())
	consumer := ingest.NewConsumer(store, m, zap.NewNop())
	for _, p := range payloads {
		msg := &recordedMessage{data: p}
		consumer.Handle(ctx, msg)
		require.True(t, msg.acked, "payload not acknowledged: %s", p)
	}

	require.NoError(t, store.RefreshHourlyEventStats(ctx))
	require.NoError(t, store.RefreshHourlyRevenue(ctx))
	require.NoError(t, store.RefreshFacebookDemographics(ctx))
	require.NoError(t, store.RefreshTiktokDemographics(ctx))
}

func fbPayload(id, eventType, amount, userID string, age int) []byte {
	return []byte(fmt.Sprintf(`{
		"eventId": %q,
		"timestamp": "2026-08-30T10:15:00Z",
		"source": "facebook",
		"funnelStage": "top",
		"eventType": %q,
		"user": {
			"userId": %q, "age": %d, "gender": "female",
			"location": {"country": "NL", "city": "Amsterdam"}
		},
		"engagement": {"campaignId": "camp-1", "adId": "ad-1", "purchaseAmount": %q}
	}`, id, eventType, userID, age, amount))
}

func ttPayload(id, eventType, amount, userID string, followers int64) []byte {
	return []byte(fmt.Sprintf(`{
		"eventId": %q,
		"timestamp": "2026-08-30T12:00:00Z",
		"source": "tiktok",
		"funnelStage": "bottom",
		"eventType": %q,
		"user": {"userId": %q, "followers": %d},
		"engagement": {"country": "US", "purchasedItem": "cap", "purchaseAmount": %q}
	}`, id, eventType, userID, followers, amount))
}

func TestService_EventsAndRevenueEndToEnd(t *testing.T) {
	store := storage.NewInMemoryStore()
	ingestAll(t, store,
		fbPayload("e1", "ad.view", "", "u1", 30),
		fbPayload("e2", "ad.view", "", "u2", 30),
		fbPayload("e3", "ad.view", "", "u3", 30),
		fbPayload("e4", "checkout.complete", "10.00", "u1", 30),
	)
	svc := newTestService(store)
	ctx := context.Background()

	events, err := svc.Events(ctx, EventsRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), events.Total)
	require.Len(t, events.Aggregated, 2)
	byType := make(map[string]int64)
	for _, a := range events.Aggregated {
		byType[a.EventType] = a.Count
	}
	assert.Equal(t, int64(3), byType["ad.view"])
	assert.Equal(t, int64(1), byType["checkout.complete"])

	revenue, err := svc.Revenue(ctx, RevenueRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), revenue.Total)
	assert.Equal(t, "10.00", revenue.TotalRevenue)
	require.Len(t, revenue.AggregatedBySource, 1)
	assert.Equal(t, models.SourceFacebook, revenue.AggregatedBySource[0].Source)
}

func TestService_RevenuePerSourceBreakdown(t *testing.T) {
	store := storage.NewInMemoryStore()
	ingestAll(t, store,
		fbPayload("r1", "checkout.complete", "10.00", "u1", 30),
		fbPayload("r2", "checkout.complete", "5.50", "u2", 30),
		ttPayload("r3", "purchase", "20.25", "tt1", 500),
	)
	svc := newTestService(store)

	report, err := svc.Revenue(context.Background(), RevenueRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.Total)
	assert.Equal(t, "35.75", report.TotalRevenue)

	bySource := make(map[string]SourceRevenue)
	for _, s := range report.AggregatedBySource {
		bySource[s.Source] = s
	}
	assert.Equal(t, "15.50", bySource[models.SourceFacebook].Revenue.StringFixed(2))
	assert.Equal(t, "20.25", bySource[models.SourceTiktok].Revenue.StringFixed(2))

	fbOnly, err := svc.Revenue(context.Background(), RevenueRequest{Source: models.SourceFacebook})
	require.NoError(t, err)
	assert.Equal(t, int64(2), fbOnly.Total)
	assert.Equal(t, "15.50", fbOnly.TotalRevenue)
}

func TestService_RevenueCampaignFilter(t *testing.T) {
	store := storage.NewInMemoryStore()
	ingestAll(t, store,
		fbPayload("c1", "checkout.complete", "10.00", "u1", 30),
		ttPayload("c2", "purchase", "20.00", "tt1", 500),
	)
	svc := newTestService(store)

	report, err := svc.Revenue(context.Background(), RevenueRequest{CampaignID: "camp-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Total)
	assert.Equal(t, "10.00", report.TotalRevenue)
}

func TestService_Demographics(t *testing.T) {
	store := storage.NewInMemoryStore()
	ingestAll(t, store,
		fbPayload("d1", "ad.view", "", "u1", 22),
		fbPayload("d2", "ad.view", "", "u2", 30),
		fbPayload("d3", "ad.view", "", "u3", 61),
		ttPayload("d4", "video.view", "", "tt1", 500),
		ttPayload("d5", "video.view", "", "tt2", 50000),
	)
	svc := newTestService(store)

	report, err := svc.Demographics(context.Background(), DemographicsRequest{})
	require.NoError(t, err)
	require.NotNil(t, report.Facebook)
	require.NotNil(t, report.Tiktok)

	assert.Equal(t, int64(1), report.Facebook.ByAgeBand["18-24"])
	assert.Equal(t, int64(1), report.Facebook.ByAgeBand["25-34"])
	assert.Equal(t, int64(1), report.Facebook.ByAgeBand["55+"])
	assert.Equal(t, int64(3), report.Facebook.ByGender["female"])
	assert.Equal(t, int64(3), report.Facebook.ByCountry["NL"])

	assert.Equal(t, int64(2), report.Tiktok.TotalUsers)
	assert.Equal(t, int64(1), report.Tiktok.ByFollowerSegment[models.FollowerSegmentSmall])
	assert.Equal(t, int64(1), report.Tiktok.ByFollowerSegment[models.FollowerSegmentLarge])
	assert.Equal(t, int64(2), report.Tiktok.ByCountry["US"])
}

func TestService_DemographicsSourceFilter(t *testing.T) {
	store := storage.NewInMemoryStore()
	ingestAll(t, store,
		fbPayload("s1", "ad.view", "", "u1", 30),
		ttPayload("s2", "video.view", "", "tt1", 500),
	)
	svc := newTestService(store)

	report, err := svc.Demographics(context.Background(), DemographicsRequest{Source: models.SourceTiktok})
	require.NoError(t, err)
	assert.Nil(t, report.Facebook)
	require.NotNil(t, report.Tiktok)
	assert.Equal(t, int64(1), report.Tiktok.TotalUsers)
}

func TestService_EmptyStoreReturnsEmptyReports(t *testing.T) {
	store := storage.NewInMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	events, err := svc.Events(ctx, EventsRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), events.Total)
	assert.NotNil(t, events.Aggregated)
	assert.NotNil(t, events.HourlyData)

	revenue, err := svc.Revenue(ctx, RevenueRequest{})
	require.NoError(t, err)
	assert.Equal(t, "0.00", revenue.TotalRevenue)
}

func TestService_RequestValidation(t *testing.T) {
	svc := newTestService(storage.NewInMemoryStore())
	ctx := context.Background()

	_, err := svc.Events(ctx, EventsRequest{Source: "snapchat"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Events(ctx, EventsRequest{FunnelStage: "middle"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	from := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	_, err = svc.Revenue(ctx, RevenueRequest{From: &from, To: &to})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Demographics(ctx, DemographicsRequest{Source: "snapchat"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestService_TimeRangeFilter(t *testing.T) {
	store := storage.NewInMemoryStore()
	ingestAll(t, store,
		fbPayload("t1", "ad.view", "", "u1", 30),      // 10:15
		ttPayload("t2", "video.view", "", "tt1", 500), // 12:00
	)
	svc := newTestService(store)

	from := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	report, err := svc.Events(context.Background(), EventsRequest{From: &from})
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Total)
	require.Len(t, report.HourlyData, 1)
	assert.Equal(t, models.SourceTiktok, report.HourlyData[0].Source)
}

func TestPageRows(t *testing.T) {
	rows := []int{1, 2, 3, 4, 5}
	assert.Len(t, pageRows(rows, 3), 3)
	assert.Len(t, pageRows(rows, 10), 5)
	assert.Equal(t, []int{}, pageRows[int](nil, 3))
}
