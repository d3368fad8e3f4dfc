package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edma-uni/reporter/internal/models"
)

// InMemoryStore provides in-memory storage for events and views. It backs
// tests and degraded single-process runs when PostgreSQL is unavailable.
type InMemoryStore struct {
	mu           sync.RWMutex
	statistics   map[string]*models.EventStatistic
	revenues     map[string]*models.RevenueRecord
	demographics map[string]*models.DemographicRecord

	// Views are rebuilt into fresh slices and swapped in under viewMu, so
	// readers see either the old or the new result set, never a mix.
	viewMu           sync.RWMutex
	hourlyEventStats []*models.HourlyEventStat
	hourlyRevenue    []*models.HourlyRevenue
	facebookDemo     []*models.FacebookDemographic
	tiktokDemo       []*models.TiktokDemographic
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		statistics:   make(map[string]*models.EventStatistic),
		revenues:     make(map[string]*models.RevenueRecord),
		demographics: make(map[string]*models.DemographicRecord),
	}
}

// =============================================
// EVENT STORE
// =============================================

func (s *InMemoryStore) SaveStatistic(ctx context.Context, stat *models.EventStatistic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Existing row wins over a redelivered create.
	if _, ok := s.statistics[stat.EventID]; ok {
		return nil
	}
	s.statistics[stat.EventID] = stat
	return nil
}

func (s *InMemoryStore) SaveRevenue(ctx context.Context, rec *models.RevenueRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.revenues[rec.EventID]; ok {
		return nil
	}
	s.revenues[rec.EventID] = rec
	return nil
}

func (s *InMemoryStore) SaveDemographic(ctx context.Context, rec *models.DemographicRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.demographics[rec.EventID]; ok {
		return nil
	}
	s.demographics[rec.EventID] = rec
	return nil
}

// StatisticCount reports the number of stored statistic rows.
func (s *InMemoryStore) StatisticCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.statistics)
}

// RevenueCount reports the number of stored revenue rows.
func (s *InMemoryStore) RevenueCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.revenues)
}

// DemographicCount reports the number of stored demographic rows.
func (s *InMemoryStore) DemographicCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.demographics)
}

// GetStatistic returns a stored statistic row, or nil when absent.
func (s *InMemoryStore) GetStatistic(eventID string) *models.EventStatistic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statistics[eventID]
}

// GetRevenue returns a stored revenue row, or nil when absent.
func (s *InMemoryStore) GetRevenue(eventID string) *models.RevenueRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revenues[eventID]
}

// GetDemographic returns a stored demographic row, or nil when absent.
func (s *InMemoryStore) GetDemographic(eventID string) *models.DemographicRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.demographics[eventID]
}

// =============================================
// VIEW REFRESH
// =============================================

type eventStatKey struct {
	hour        time.Time
	source      string
	funnelStage string
	eventType   string
}

func (s *InMemoryStore) RefreshHourlyEventStats(ctx context.Context) error {
	s.mu.RLock()
	counts := make(map[eventStatKey]int64)
	for _, stat := range s.statistics {
		key := eventStatKey{
			hour:        stat.Timestamp.UTC().Truncate(time.Hour),
			source:      stat.Source,
			funnelStage: stat.FunnelStage,
			eventType:   stat.EventType,
		}
		counts[key]++
	}
	s.mu.RUnlock()

	rows := make([]*models.HourlyEventStat, 0, len(counts))
	for key, count := range counts {
		rows = append(rows, &models.HourlyEventStat{
			Hour:        key.hour,
			Source:      key.source,
			FunnelStage: key.funnelStage,
			EventType:   key.eventType,
			Count:       count,
		})
	}
	sortByHourDesc(rows, func(r *models.HourlyEventStat) time.Time { return r.Hour })

	s.viewMu.Lock()
	s.hourlyEventStats = rows
	s.viewMu.Unlock()
	return nil
}

type revenueKey struct {
	hour       time.Time
	source     string
	campaignID string
}

func (s *InMemoryStore) RefreshHourlyRevenue(ctx context.Context) error {
	type agg struct {
		transactions int64
		revenue      decimal.Decimal
	}

	s.mu.RLock()
	sums := make(map[revenueKey]*agg)
	for _, rec := range s.revenues {
		campaignID := ""
		if rec.CampaignID != nil {
			campaignID = *rec.CampaignID
		}
		key := revenueKey{
			hour:       rec.Timestamp.UTC().Truncate(time.Hour),
			source:     rec.Source,
			campaignID: campaignID,
		}
		a, ok := sums[key]
		if !ok {
			a = &agg{}
			sums[key] = a
		}
		a.transactions++
		a.revenue = a.revenue.Add(rec.PurchaseAmount)
	}
	s.mu.RUnlock()

	rows := make([]*models.HourlyRevenue, 0, len(sums))
	for key, a := range sums {
		rows = append(rows, &models.HourlyRevenue{
			Hour:         key.hour,
			Source:       key.source,
			CampaignID:   key.campaignID,
			Transactions: a.transactions,
			Revenue:      a.revenue,
		})
	}
	sortByHourDesc(rows, func(r *models.HourlyRevenue) time.Time { return r.Hour })

	s.viewMu.Lock()
	s.hourlyRevenue = rows
	s.viewMu.Unlock()
	return nil
}

type facebookDemoKey struct {
	day       time.Time
	eventType string
	gender    string
	age       int
	country   string
	city      string
}

func (s *InMemoryStore) RefreshFacebookDemographics(ctx context.Context) error {
	s.mu.RLock()
	users := make(map[facebookDemoKey]map[string]struct{})
	for _, rec := range s.demographics {
		if rec.Source != models.SourceFacebook {
			continue
		}
		key := facebookDemoKey{
			day:       rec.Timestamp.UTC().Truncate(24 * time.Hour),
			eventType: rec.EventType,
			gender:    strDeref(rec.Gender),
			age:       intDeref(rec.Age),
			country:   strDeref(rec.Country),
			city:      strDeref(rec.City),
		}
		set, ok := users[key]
		if !ok {
			set = make(map[string]struct{})
			users[key] = set
		}
		set[rec.UserID] = struct{}{}
	}
	s.mu.RUnlock()

	rows := make([]*models.FacebookDemographic, 0, len(users))
	for key, set := range users {
		rows = append(rows, &models.FacebookDemographic{
			Day:       key.day,
			EventType: key.eventType,
			Gender:    key.gender,
			Age:       key.age,
			Country:   key.country,
			City:      key.city,
			Users:     int64(len(set)),
		})
	}
	sortByHourDesc(rows, func(r *models.FacebookDemographic) time.Time { return r.Day })

	s.viewMu.Lock()
	s.facebookDemo = rows
	s.viewMu.Unlock()
	return nil
}

type tiktokDemoKey struct {
	day             time.Time
	eventType       string
	country         string
	followerSegment string
}

func (s *InMemoryStore) RefreshTiktokDemographics(ctx context.Context) error {
	s.mu.RLock()
	users := make(map[tiktokDemoKey]map[string]struct{})
	for _, rec := range s.demographics {
		if rec.Source != models.SourceTiktok {
			continue
		}
		var followers int64
		if rec.Followers != nil {
			followers = *rec.Followers
		}
		key := tiktokDemoKey{
			day:             rec.Timestamp.UTC().Truncate(24 * time.Hour),
			eventType:       rec.EventType,
			country:         strDeref(rec.TiktokCountry),
			followerSegment: models.FollowerSegment(followers),
		}
		set, ok := users[key]
		if !ok {
			set = make(map[string]struct{})
			users[key] = set
		}
		set[rec.UserID] = struct{}{}
	}
	s.mu.RUnlock()

	rows := make([]*models.TiktokDemographic, 0, len(users))
	for key, set := range users {
		rows = append(rows, &models.TiktokDemographic{
			Day:             key.day,
			EventType:       key.eventType,
			Country:         key.country,
			FollowerSegment: key.followerSegment,
			Users:           int64(len(set)),
		})
	}
	sortByHourDesc(rows, func(r *models.TiktokDemographic) time.Time { return r.Day })

	s.viewMu.Lock()
	s.tiktokDemo = rows
	s.viewMu.Unlock()
	return nil
}

// =============================================
// VIEW QUERIES
// =============================================

func (s *InMemoryStore) ListHourlyEventStats(ctx context.Context, f EventStatsFilter) ([]*models.HourlyEventStat, error) {
	s.viewMu.RLock()
	rows := s.hourlyEventStats
	s.viewMu.RUnlock()

	var result []*models.HourlyEventStat
	for _, r := range rows {
		if !inRange(r.Hour, f.From, f.To) {
			continue
		}
		if f.Source != "" && r.Source != f.Source {
			continue
		}
		if f.FunnelStage != "" && r.FunnelStage != f.FunnelStage {
			continue
		}
		if f.EventType != "" && r.EventType != f.EventType {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

func (s *InMemoryStore) ListHourlyRevenue(ctx context.Context, f RevenueFilter) ([]*models.HourlyRevenue, error) {
	s.viewMu.RLock()
	rows := s.hourlyRevenue
	s.viewMu.RUnlock()

	var result []*models.HourlyRevenue
	for _, r := range rows {
		if !inRange(r.Hour, f.From, f.To) {
			continue
		}
		if f.Source != "" && r.Source != f.Source {
			continue
		}
		if f.CampaignID != "" && r.CampaignID != f.CampaignID {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

func (s *InMemoryStore) ListFacebookDemographics(ctx context.Context, f DemographicsFilter) ([]*models.FacebookDemographic, error) {
	s.viewMu.RLock()
	rows := s.facebookDemo
	s.viewMu.RUnlock()

	var result []*models.FacebookDemographic
	for _, r := range rows {
		if !inRange(r.Day, f.From, f.To) {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

func (s *InMemoryStore) ListTiktokDemographics(ctx context.Context, f DemographicsFilter) ([]*models.TiktokDemographic, error) {
	s.viewMu.RLock()
	rows := s.tiktokDemo
	s.viewMu.RUnlock()

	var result []*models.TiktokDemographic
	for _, r := range rows {
		if !inRange(r.Day, f.From, f.To) {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

// =============================================
// Helpers
// =============================================

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

func sortByHourDesc[T any](rows []T, key func(T) time.Time) {
	sort.SliceStable(rows, func(i, j int) bool {
		return key(rows[i]).After(key(rows[j]))
	})
}

func strDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intDeref(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
