package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/edma-uni/reporter/internal/config"
	"github.com/edma-uni/reporter/internal/metrics"
	"github.com/edma-uni/reporter/internal/models"
	"github.com/edma-uni/reporter/internal/storage"
)

// Service answers report queries from the aggregate views. It never touches
// the event tables directly: views bound the cost of every query, and the
// refresh loop bounds their staleness. Responses may additionally be cached
// in Redis for a short TTL when a client is available.
type Service struct {
	views    storage.ViewStore
	cache    *redis.Client
	cacheTTL time.Duration
	pageSize int
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewService constructs a reporting service. cache may be nil; queries then
// always hit the view store.
func NewService(views storage.ViewStore, cache *redis.Client, cfg config.ReportConfig, m *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{
		views:    views,
		cache:    cache,
		cacheTTL: cfg.CacheTTL,
		pageSize: cfg.PageSize,
		metrics:  m,
		log:      log,
	}
}

// ===========================================
// EVENT STATISTICS
// ===========================================

// EventAggregate is one row of the (source, funnelStage, eventType) breakdown.
type EventAggregate struct {
	Source      string `json:"source"`
	FunnelStage string `json:"funnelStage"`
	EventType   string `json:"eventType"`
	Count       int64  `json:"count"`
}

// EventsReport is the response of the event statistics query.
type EventsReport struct {
	Total      int64                     `json:"total"`
	Aggregated []EventAggregate          `json:"aggregated"`
	HourlyData []*models.HourlyEventStat `json:"hourlyData"`
}

// Events returns total event counts, the per-group breakdown and the most
// recent hourly rows matching the request.
func (s *Service) Events(ctx context.Context, req EventsRequest) (*EventsReport, error) {
	start := time.Now()
	report, err := s.eventsCached(ctx, req)
	s.recordQuery("events", start, err)
	return report, err
}

func (s *Service) eventsCached(ctx context.Context, req EventsRequest) (*EventsReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := cacheKey("events", req.cacheFields())
	var cached EventsReport
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	rows, err := s.views.ListHourlyEventStats(ctx, storage.EventStatsFilter{
		From:        req.From,
		To:          req.To,
		Source:      req.Source,
		FunnelStage: req.FunnelStage,
		EventType:   req.EventType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query event stats: %w", err)
	}

	report := &EventsReport{
		Aggregated: make([]EventAggregate, 0),
		HourlyData: pageRows(rows, s.pageSize),
	}

	groups := make(map[EventAggregate]int64)
	order := make([]EventAggregate, 0)
	for _, r := range rows {
		report.Total += r.Count
		group := EventAggregate{Source: r.Source, FunnelStage: r.FunnelStage, EventType: r.EventType}
		if _, ok := groups[group]; !ok {
			order = append(order, group)
		}
		groups[group] += r.Count
	}
	for _, g := range order {
		g.Count = groups[EventAggregate{Source: g.Source, FunnelStage: g.FunnelStage, EventType: g.EventType}]
		report.Aggregated = append(report.Aggregated, g)
	}

	s.cacheSet(ctx, key, report)
	return report, nil
}

// ===========================================
// REVENUE STATISTICS
// ===========================================

// SourceRevenue is one row of the per-source revenue breakdown.
type SourceRevenue struct {
	Source       string          `json:"source"`
	Revenue      decimal.Decimal `json:"revenue"`
	Transactions int64           `json:"transactions"`
}

// RevenueReport is the response of the revenue statistics query. Revenue
// totals are exact decimals rendered with two fraction digits.
type RevenueReport struct {
	Total              int64                   `json:"total"`
	TotalRevenue       string                  `json:"totalRevenue"`
	AggregatedBySource []SourceRevenue         `json:"aggregatedBySource"`
	HourlyData         []*models.HourlyRevenue `json:"hourlyData"`
}

// Revenue returns transaction counts, decimal-precise revenue totals, the
// per-source breakdown and the most recent hourly rows.
func (s *Service) Revenue(ctx context.Context, req RevenueRequest) (*RevenueReport, error) {
	start := time.Now()
	report, err := s.revenueCached(ctx, req)
	s.recordQuery("revenue", start, err)
	return report, err
}

func (s *Service) revenueCached(ctx context.Context, req RevenueRequest) (*RevenueReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := cacheKey("revenue", req.cacheFields())
	var cached RevenueReport
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	rows, err := s.views.ListHourlyRevenue(ctx, storage.RevenueFilter{
		From:       req.From,
		To:         req.To,
		Source:     req.Source,
		CampaignID: req.CampaignID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query revenue stats: %w", err)
	}

	report := &RevenueReport{
		AggregatedBySource: make([]SourceRevenue, 0),
		HourlyData:         pageRows(rows, s.pageSize),
	}

	total := decimal.Zero
	bySource := make(map[string]*SourceRevenue)
	order := make([]string, 0, 2)
	for _, r := range rows {
		report.Total += r.Transactions
		total = total.Add(r.Revenue)

		agg, ok := bySource[r.Source]
		if !ok {
			agg = &SourceRevenue{Source: r.Source}
			bySource[r.Source] = agg
			order = append(order, r.Source)
		}
		agg.Transactions += r.Transactions
		agg.Revenue = agg.Revenue.Add(r.Revenue)
	}
	report.TotalRevenue = total.StringFixed(2)
	for _, src := range order {
		report.AggregatedBySource = append(report.AggregatedBySource, *bySource[src])
	}

	s.cacheSet(ctx, key, report)
	return report, nil
}

// ===========================================
// DEMOGRAPHICS
// ===========================================

// Facebook age bands reported by the demographics query.
var ageBands = []struct {
	label string
	min   int
	max   int
}{
	{"18-24", 18, 24},
	{"25-34", 25, 34},
	{"35-44", 35, 44},
	{"45-54", 45, 54},
	{"55+", 55, 1 << 30},
}

// FacebookDemographicsReport aggregates the facebook daily rows.
type FacebookDemographicsReport struct {
	DailyData []*models.FacebookDemographic `json:"dailyData"`
	ByGender  map[string]int64              `json:"byGender"`
	ByCountry map[string]int64              `json:"byCountry"`
	ByAgeBand map[string]int64              `json:"byAgeBand"`
}

// TiktokDemographicsReport aggregates the tiktok daily rows.
type TiktokDemographicsReport struct {
	TotalUsers        int64                       `json:"totalUsers"`
	DailyData         []*models.TiktokDemographic `json:"dailyData"`
	ByCountry         map[string]int64            `json:"byCountry"`
	ByFollowerSegment map[string]int64            `json:"byFollowerSegment"`
}

// DemographicsReport is the response of the demographics query. A source
// excluded by the filter is nil.
type DemographicsReport struct {
	Facebook *FacebookDemographicsReport `json:"facebook"`
	Tiktok   *TiktokDemographicsReport   `json:"tiktok"`
}

// Demographics returns per-source demographic rollups, independently for
// each source the filter does not exclude.
func (s *Service) Demographics(ctx context.Context, req DemographicsRequest) (*DemographicsReport, error) {
	start := time.Now()
	report, err := s.demographicsCached(ctx, req)
	s.recordQuery("demographics", start, err)
	return report, err
}

func (s *Service) demographicsCached(ctx context.Context, req DemographicsRequest) (*DemographicsReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := cacheKey("demographics", req.cacheFields())
	var cached DemographicsReport
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	report := &DemographicsReport{}
	filter := storage.DemographicsFilter{From: req.From, To: req.To}

	if req.Source == "" || req.Source == models.SourceFacebook {
		rows, err := s.views.ListFacebookDemographics(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to query facebook demographics: %w", err)
		}
		report.Facebook = buildFacebookDemographics(rows, s.pageSize)
	}

	if req.Source == "" || req.Source == models.SourceTiktok {
		rows, err := s.views.ListTiktokDemographics(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to query tiktok demographics: %w", err)
		}
		report.Tiktok = buildTiktokDemographics(rows, s.pageSize)
	}

	s.cacheSet(ctx, key, report)
	return report, nil
}

func buildFacebookDemographics(rows []*models.FacebookDemographic, pageSize int) *FacebookDemographicsReport {
	report := &FacebookDemographicsReport{
		DailyData: pageRows(rows, pageSize),
		ByGender:  make(map[string]int64),
		ByCountry: make(map[string]int64),
		ByAgeBand: make(map[string]int64),
	}
	for _, r := range rows {
		if r.Gender != "" {
			report.ByGender[r.Gender] += r.Users
		}
		if r.Country != "" {
			report.ByCountry[r.Country] += r.Users
		}
		for _, band := range ageBands {
			if r.Age >= band.min && r.Age <= band.max {
				report.ByAgeBand[band.label] += r.Users
				break
			}
		}
	}
	return report
}

func buildTiktokDemographics(rows []*models.TiktokDemographic, pageSize int) *TiktokDemographicsReport {
	report := &TiktokDemographicsReport{
		DailyData:         pageRows(rows, pageSize),
		ByCountry:         make(map[string]int64),
		ByFollowerSegment: make(map[string]int64),
	}
	for _, r := range rows {
		report.TotalUsers += r.Users
		if r.Country != "" {
			report.ByCountry[r.Country] += r.Users
		}
		report.ByFollowerSegment[r.FollowerSegment] += r.Users
	}
	return report
}

// ===========================================
// Helpers
// ===========================================

func pageRows[T any](rows []T, pageSize int) []T {
	if rows == nil {
		return []T{}
	}
	if len(rows) > pageSize {
		return rows[:pageSize]
	}
	return rows
}

func (s *Service) recordQuery(report string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordQuery(report, status, time.Since(start))
}

func cacheKey(report string, fields []string) string {
	key := "report:" + report
	for _, f := range fields {
		key += ":" + f
	}
	return key
}

func (s *Service) cacheGet(ctx context.Context, key string, out any) bool {
	if s.cache == nil || s.cacheTTL <= 0 {
		return false
	}
	data, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.log.Warn("failed to decode cached report", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *Service) cacheSet(ctx context.Context, key string, report any) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
		s.log.Warn("failed to cache report", zap.String("key", key), zap.Error(err))
	}
}
