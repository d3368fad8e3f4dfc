package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edma-uni/reporter/internal/models"
)

// PostgresStore implements EventStore and ViewStore using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InitSchema creates the event tables and view tables if they do not exist.
// Each view carries a uniqueness constraint over its full grouping key.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS event_statistics (
			event_id           TEXT PRIMARY KEY,
			ts                 TIMESTAMPTZ NOT NULL,
			source             TEXT NOT NULL,
			funnel_stage       TEXT NOT NULL,
			event_type         TEXT NOT NULL,
			user_id            TEXT,
			followers          BIGINT,
			watch_time         BIGINT,
			percentage_watched INT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_event_statistics_ts ON event_statistics (ts)`,
		`CREATE TABLE IF NOT EXISTS revenue_records (
			event_id        TEXT PRIMARY KEY,
			ts              TIMESTAMPTZ NOT NULL,
			source          TEXT NOT NULL,
			event_type      TEXT NOT NULL,
			purchase_amount NUMERIC(18,2) NOT NULL,
			campaign_id     TEXT,
			ad_id           TEXT,
			purchased_item  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_revenue_records_ts ON revenue_records (ts)`,
		`CREATE TABLE IF NOT EXISTS demographic_records (
			event_id       TEXT PRIMARY KEY,
			ts             TIMESTAMPTZ NOT NULL,
			source         TEXT NOT NULL,
			event_type     TEXT NOT NULL,
			user_id        TEXT NOT NULL,
			age            INT,
			gender         TEXT,
			country        TEXT,
			city           TEXT,
			followers      BIGINT,
			tiktok_country TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_demographic_records_ts ON demographic_records (ts)`,
		`CREATE TABLE IF NOT EXISTS hourly_event_stats (
			hour         TIMESTAMPTZ NOT NULL,
			source       TEXT NOT NULL,
			funnel_stage TEXT NOT NULL,
			event_type   TEXT NOT NULL,
			count        BIGINT NOT NULL,
			UNIQUE (hour, source, funnel_stage, event_type)
		)`,
		`CREATE TABLE IF NOT EXISTS hourly_revenue (
			hour         TIMESTAMPTZ NOT NULL,
			source       TEXT NOT NULL,
			campaign_id  TEXT NOT NULL DEFAULT '',
			transactions BIGINT NOT NULL,
			revenue      NUMERIC(18,2) NOT NULL,
			UNIQUE (hour, source, campaign_id)
		)`,
		`CREATE TABLE IF NOT EXISTS daily_facebook_demographics (
			day        TIMESTAMPTZ NOT NULL,
			event_type TEXT NOT NULL,
			gender     TEXT NOT NULL,
			age        INT NOT NULL,
			country    TEXT NOT NULL,
			city       TEXT NOT NULL,
			users      BIGINT NOT NULL,
			UNIQUE (day, event_type, gender, age, country, city)
		)`,
		`CREATE TABLE IF NOT EXISTS daily_tiktok_demographics (
			day              TIMESTAMPTZ NOT NULL,
			event_type       TEXT NOT NULL,
			country          TEXT NOT NULL,
			follower_segment TEXT NOT NULL,
			users            BIGINT NOT NULL,
			UNIQUE (day, event_type, country, follower_segment)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

// =============================================
// EVENT STORE
// =============================================

// SaveStatistic inserts one event statistic row. Redelivery of the same
// event_id is a no-op: the existing row wins.
func (s *PostgresStore) SaveStatistic(ctx context.Context, stat *models.EventStatistic) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_statistics (event_id, ts, source, funnel_stage, event_type, user_id, followers, watch_time, percentage_watched)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING
	`, stat.EventID, stat.Timestamp, stat.Source, stat.FunnelStage, stat.EventType,
		stat.UserID, stat.Followers, stat.WatchTime, stat.PercentageWatched)

	if err != nil {
		return fmt.Errorf("failed to save statistic: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRevenue(ctx context.Context, rec *models.RevenueRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO revenue_records (event_id, ts, source, event_type, purchase_amount, campaign_id, ad_id, purchased_item)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`, rec.EventID, rec.Timestamp, rec.Source, rec.EventType, rec.PurchaseAmount,
		rec.CampaignID, rec.AdID, rec.PurchasedItem)

	if err != nil {
		return fmt.Errorf("failed to save revenue record: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveDemographic(ctx context.Context, rec *models.DemographicRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO demographic_records (event_id, ts, source, event_type, user_id, age, gender, country, city, followers, tiktok_country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id) DO NOTHING
	`, rec.EventID, rec.Timestamp, rec.Source, rec.EventType, rec.UserID,
		rec.Age, rec.Gender, rec.Country, rec.City, rec.Followers, rec.TiktokCountry)

	if err != nil {
		return fmt.Errorf("failed to save demographic record: %w", err)
	}
	return nil
}

// =============================================
// VIEW REFRESH
// =============================================

// rebuildView replaces a view's contents inside one transaction. Concurrent
// readers keep seeing the pre-commit rows until the rebuild commits, so the
// swap is atomic from their point of view.
func (s *PostgresStore) rebuildView(ctx context.Context, table, insertSQL string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin refresh of %s: %w", table, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	if _, err := tx.Exec(ctx, insertSQL); err != nil {
		return fmt.Errorf("failed to rebuild %s: %w", table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit refresh of %s: %w", table, err)
	}
	return nil
}

func (s *PostgresStore) RefreshHourlyEventStats(ctx context.Context) error {
	return s.rebuildView(ctx, "hourly_event_stats", `
		INSERT INTO hourly_event_stats (hour, source, funnel_stage, event_type, count)
		SELECT date_trunc('hour', ts), source, funnel_stage, event_type, COUNT(*)
		FROM event_statistics
		GROUP BY 1, 2, 3, 4
	`)
}

func (s *PostgresStore) RefreshHourlyRevenue(ctx context.Context) error {
	// revenue_records already holds only revenue-qualifying events.
	return s.rebuildView(ctx, "hourly_revenue", `
		INSERT INTO hourly_revenue (hour, source, campaign_id, transactions, revenue)
		SELECT date_trunc('hour', ts), source, COALESCE(campaign_id, ''), COUNT(*), SUM(purchase_amount)
		FROM revenue_records
		GROUP BY 1, 2, 3
	`)
}

func (s *PostgresStore) RefreshFacebookDemographics(ctx context.Context) error {
	return s.rebuildView(ctx, "daily_facebook_demographics", `
		INSERT INTO daily_facebook_demographics (day, event_type, gender, age, country, city, users)
		SELECT date_trunc('day', ts), event_type, COALESCE(gender, ''), COALESCE(age, 0),
		       COALESCE(country, ''), COALESCE(city, ''), COUNT(DISTINCT user_id)
		FROM demographic_records
		WHERE source = 'facebook'
		GROUP BY 1, 2, 3, 4, 5, 6
	`)
}

func (s *PostgresStore) RefreshTiktokDemographics(ctx context.Context) error {
	return s.rebuildView(ctx, "daily_tiktok_demographics", `
		INSERT INTO daily_tiktok_demographics (day, event_type, country, follower_segment, users)
		SELECT date_trunc('day', ts), event_type, COALESCE(tiktok_country, ''),
		       CASE
		           WHEN COALESCE(followers, 0) < 1000 THEN '0-1k'
		           WHEN followers < 10000 THEN '1k-10k'
		           WHEN followers < 100000 THEN '10k-100k'
		           ELSE '100k+'
		       END,
		       COUNT(DISTINCT user_id)
		FROM demographic_records
		WHERE source = 'tiktok'
		GROUP BY 1, 2, 3, 4
	`)
}

// =============================================
// VIEW QUERIES
// =============================================

// appendRange adds inclusive time-range predicates for the given column.
func appendRange(where []string, args []any, column string, from, to *time.Time) ([]string, []any) {
	if from != nil {
		args = append(args, *from)
		where = append(where, fmt.Sprintf("%s >= $%d", column, len(args)))
	}
	if to != nil {
		args = append(args, *to)
		where = append(where, fmt.Sprintf("%s <= $%d", column, len(args)))
	}
	return where, args
}

func buildWhere(where []string) string {
	if len(where) == 0 {
		return ""
	}
	clause := " WHERE " + where[0]
	for _, w := range where[1:] {
		clause += " AND " + w
	}
	return clause
}

func (s *PostgresStore) ListHourlyEventStats(ctx context.Context, f EventStatsFilter) ([]*models.HourlyEventStat, error) {
	var where []string
	var args []any
	where, args = appendRange(where, args, "hour", f.From, f.To)
	if f.Source != "" {
		args = append(args, f.Source)
		where = append(where, fmt.Sprintf("source = $%d", len(args)))
	}
	if f.FunnelStage != "" {
		args = append(args, f.FunnelStage)
		where = append(where, fmt.Sprintf("funnel_stage = $%d", len(args)))
	}
	if f.EventType != "" {
		args = append(args, f.EventType)
		where = append(where, fmt.Sprintf("event_type = $%d", len(args)))
	}

	rows, err := s.pool.Query(ctx, `
		SELECT hour, source, funnel_stage, event_type, count
		FROM hourly_event_stats`+buildWhere(where)+`
		ORDER BY hour DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list hourly event stats: %w", err)
	}
	defer rows.Close()

	var result []*models.HourlyEventStat
	for rows.Next() {
		var r models.HourlyEventStat
		if err := rows.Scan(&r.Hour, &r.Source, &r.FunnelStage, &r.EventType, &r.Count); err != nil {
			return nil, err
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ListHourlyRevenue(ctx context.Context, f RevenueFilter) ([]*models.HourlyRevenue, error) {
	var where []string
	var args []any
	where, args = appendRange(where, args, "hour", f.From, f.To)
	if f.Source != "" {
		args = append(args, f.Source)
		where = append(where, fmt.Sprintf("source = $%d", len(args)))
	}
	if f.CampaignID != "" {
		args = append(args, f.CampaignID)
		where = append(where, fmt.Sprintf("campaign_id = $%d", len(args)))
	}

	rows, err := s.pool.Query(ctx, `
		SELECT hour, source, campaign_id, transactions, revenue
		FROM hourly_revenue`+buildWhere(where)+`
		ORDER BY hour DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list hourly revenue: %w", err)
	}
	defer rows.Close()

	var result []*models.HourlyRevenue
	for rows.Next() {
		var r models.HourlyRevenue
		if err := rows.Scan(&r.Hour, &r.Source, &r.CampaignID, &r.Transactions, &r.Revenue); err != nil {
			return nil, err
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ListFacebookDemographics(ctx context.Context, f DemographicsFilter) ([]*models.FacebookDemographic, error) {
	var where []string
	var args []any
	where, args = appendRange(where, args, "day", f.From, f.To)

	rows, err := s.pool.Query(ctx, `
		SELECT day, event_type, gender, age, country, city, users
		FROM daily_facebook_demographics`+buildWhere(where)+`
		ORDER BY day DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list facebook demographics: %w", err)
	}
	defer rows.Close()

	var result []*models.FacebookDemographic
	for rows.Next() {
		var r models.FacebookDemographic
		if err := rows.Scan(&r.Day, &r.EventType, &r.Gender, &r.Age, &r.Country, &r.City, &r.Users); err != nil {
			return nil, err
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ListTiktokDemographics(ctx context.Context, f DemographicsFilter) ([]*models.TiktokDemographic, error) {
	var where []string
	var args []any
	where, args = appendRange(where, args, "day", f.From, f.To)

	rows, err := s.pool.Query(ctx, `
		SELECT day, event_type, country, follower_segment, users
		FROM daily_tiktok_demographics`+buildWhere(where)+`
		ORDER BY day DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tiktok demographics: %w", err)
	}
	defer rows.Close()

	var result []*models.TiktokDemographic
	for rows.Next() {
		var r models.TiktokDemographic
		if err := rows.Scan(&r.Day, &r.EventType, &r.Country, &r.FollowerSegment, &r.Users); err != nil {
			return nil, err
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}
