package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Follower segment labels for the tiktok daily demographics view.
const (
	FollowerSegmentSmall  = "0-1k"
	FollowerSegmentMedium = "1k-10k"
	FollowerSegmentLarge  = "10k-100k"
	FollowerSegmentHuge   = "100k+"
)

// FollowerSegment buckets a raw follower count into its view segment.
func FollowerSegment(followers int64) string {
	switch {
	case followers < 1_000:
		return FollowerSegmentSmall
	case followers < 10_000:
		return FollowerSegmentMedium
	case followers < 100_000:
		return FollowerSegmentLarge
	default:
		return FollowerSegmentHuge
	}
}

// HourlyEventStat is one row of the hourly event counts view, grouped by
// (hour, source, funnel_stage, event_type).
type HourlyEventStat struct {
	Hour        time.Time `json:"hour"`
	Source      string    `json:"source"`
	FunnelStage string    `json:"funnelStage"`
	EventType   string    `json:"eventType"`
	Count       int64     `json:"count"`
}

// HourlyRevenue is one row of the hourly revenue view, grouped by
// (hour, source, campaign_id). CampaignID is empty for tiktok rows.
type HourlyRevenue struct {
	Hour         time.Time       `json:"hour"`
	Source       string          `json:"source"`
	CampaignID   string          `json:"campaignId,omitempty"`
	Transactions int64           `json:"transactions"`
	Revenue      decimal.Decimal `json:"revenue"`
}

// FacebookDemographic is one row of the daily facebook demographics view
// with an exact distinct-user count.
type FacebookDemographic struct {
	Day       time.Time `json:"day"`
	EventType string    `json:"eventType"`
	Gender    string    `json:"gender"`
	Age       int       `json:"age"`
	Country   string    `json:"country"`
	City      string    `json:"city"`
	Users     int64     `json:"users"`
}

// TiktokDemographic is one row of the daily tiktok demographics view.
type TiktokDemographic struct {
	Day             time.Time `json:"day"`
	EventType       string    `json:"eventType"`
	Country         string    `json:"country"`
	FollowerSegment string    `json:"followerSegment"`
	Users           int64     `json:"users"`
}
