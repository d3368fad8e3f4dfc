package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ===========================================
// EVENT STATISTIC
// ===========================================

// EventStatistic is the denormalized row written for every accepted event.
// Source-specific fields are nil for the other source.
type EventStatistic struct {
	EventID     string    `json:"event_id"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
	FunnelStage string    `json:"funnel_stage"`
	EventType   string    `json:"event_type"`

	// Facebook only
	UserID *string `json:"user_id,omitempty"`

	// TikTok only
	Followers         *int64 `json:"followers,omitempty"`
	WatchTime         *int64 `json:"watch_time,omitempty"`
	PercentageWatched *int   `json:"percentage_watched,omitempty"`
}

// ===========================================
// REVENUE RECORD
// ===========================================

// RevenueRecord exists only for revenue-qualifying events with a positive
// parseable purchase amount.
type RevenueRecord struct {
	EventID        string          `json:"event_id"`
	Timestamp      time.Time       `json:"timestamp"`
	Source         string          `json:"source"`
	EventType      string          `json:"event_type"`
	PurchaseAmount decimal.Decimal `json:"purchase_amount"`

	// Facebook attribution
	CampaignID *string `json:"campaign_id,omitempty"`
	AdID       *string `json:"ad_id,omitempty"`

	// TikTok attribution
	PurchasedItem *string `json:"purchased_item,omitempty"`
}

// ===========================================
// DEMOGRAPHIC RECORD
// ===========================================

// DemographicRecord captures the audience attributes of one event.
type DemographicRecord struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	EventType string    `json:"event_type"`
	UserID    string    `json:"user_id"`

	// Facebook only
	Age     *int    `json:"age,omitempty"`
	Gender  *string `json:"gender,omitempty"`
	Country *string `json:"country,omitempty"`
	City    *string `json:"city,omitempty"`

	// TikTok only
	Followers     *int64  `json:"followers,omitempty"`
	TiktokCountry *string `json:"tiktok_country,omitempty"`
}
