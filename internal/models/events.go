package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Event sources and funnel stages as delivered by the upstream collectors.
const (
	SourceFacebook = "facebook"
	SourceTiktok   = "tiktok"

	FunnelStageTop    = "top"
	FunnelStageBottom = "bottom"
)

// Revenue-qualifying event types per source. Only these produce revenue
// records, and only when a positive purchase amount parses.
const (
	FacebookRevenueEventType = "checkout.complete"
	TiktokRevenueEventType   = "purchase"
)

// ErrUnknownSource marks payloads whose source discriminator is missing or
// not one of the supported sources. Such messages are unprocessable and must
// never be redelivered.
var ErrUnknownSource = errors.New("unknown event source")

// ===========================================
// FACEBOOK EVENT
// ===========================================

type FacebookUser struct {
	UserID   string           `json:"userId"`
	Name     string           `json:"name,omitempty"`
	Age      int              `json:"age"`
	Gender   string           `json:"gender"`
	Location FacebookLocation `json:"location"`
}

type FacebookLocation struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// FacebookEngagement carries stage-specific fields; top-funnel events
// populate referrer/video fields, bottom-funnel events the ad attribution
// and purchase fields. Absent fields stay zero.
type FacebookEngagement struct {
	ActionTime     string `json:"actionTime,omitempty"`
	Referrer       string `json:"referrer,omitempty"`
	VideoID        string `json:"videoId,omitempty"`
	AdID           string `json:"adId,omitempty"`
	CampaignID     string `json:"campaignId,omitempty"`
	ClickPosition  string `json:"clickPosition,omitempty"`
	Device         string `json:"device,omitempty"`
	Browser        string `json:"browser,omitempty"`
	PurchaseAmount string `json:"purchaseAmount,omitempty"`
}

type FacebookEvent struct {
	EventID     string             `json:"eventId"`
	Timestamp   time.Time          `json:"timestamp"`
	Source      string             `json:"source"`
	FunnelStage string             `json:"funnelStage"`
	EventType   string             `json:"eventType"`
	User        FacebookUser       `json:"user"`
	Engagement  FacebookEngagement `json:"engagement"`
}

// ===========================================
// TIKTOK EVENT
// ===========================================

type TiktokUser struct {
	UserID    string `json:"userId"`
	Username  string `json:"username,omitempty"`
	Followers int64  `json:"followers"`
}

type TiktokEngagement struct {
	WatchTime         int64  `json:"watchTime,omitempty"`
	PercentageWatched int    `json:"percentageWatched,omitempty"`
	Device            string `json:"device,omitempty"`
	Country           string `json:"country,omitempty"`
	VideoID           string `json:"videoId,omitempty"`
	ActionTime        string `json:"actionTime,omitempty"`
	ProfileID         string `json:"profileId,omitempty"`
	PurchasedItem     string `json:"purchasedItem,omitempty"`
	PurchaseAmount    string `json:"purchaseAmount,omitempty"`
}

type TiktokEvent struct {
	EventID     string           `json:"eventId"`
	Timestamp   time.Time        `json:"timestamp"`
	Source      string           `json:"source"`
	FunnelStage string           `json:"funnelStage"`
	EventType   string           `json:"eventType"`
	User        TiktokUser       `json:"user"`
	Engagement  TiktokEngagement `json:"engagement"`
}

// ===========================================
// ENVELOPE DECODING
// ===========================================

// Event is the tagged union produced by DecodeEvent. Exactly one of the two
// variants is non-nil.
type Event struct {
	Facebook *FacebookEvent
	Tiktok   *TiktokEvent
}

// Source returns the discriminator of the decoded variant.
func (e *Event) Source() string {
	if e.Facebook != nil {
		return SourceFacebook
	}
	return SourceTiktok
}

// EventID returns the upstream-assigned identifier of the decoded variant.
func (e *Event) EventID() string {
	if e.Facebook != nil {
		return e.Facebook.EventID
	}
	return e.Tiktok.EventID
}

type envelope struct {
	Source string `json:"source"`
}

// DecodeEvent decodes a payload into its source-specific variant based on
// the top-level source discriminator. A payload that does not decode, lacks
// an eventId, or names an unknown source is unprocessable.
func DecodeEvent(payload []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to decode event envelope: %w", err)
	}

	switch env.Source {
	case SourceFacebook:
		var ev FacebookEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode facebook event: %w", err)
		}
		if ev.EventID == "" {
			return nil, errors.New("facebook event missing eventId")
		}
		return &Event{Facebook: &ev}, nil

	case SourceTiktok:
		var ev TiktokEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode tiktok event: %w", err)
		}
		if ev.EventID == "" {
			return nil, errors.New("tiktok event missing eventId")
		}
		return &Event{Tiktok: &ev}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, env.Source)
	}
}

// ParsePurchaseAmount parses an exact decimal purchase amount. It returns
// ok=false for empty, unparseable, zero or negative amounts; callers
// suppress the revenue record in that case without failing the event.
func ParsePurchaseAmount(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if !amount.IsPositive() {
		return decimal.Zero, false
	}
	return amount, true
}
