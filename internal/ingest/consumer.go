package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edma-uni/reporter/internal/metrics"
	"github.com/edma-uni/reporter/internal/models"
	"github.com/edma-uni/reporter/internal/queue"
	"github.com/edma-uni/reporter/internal/storage"
)

// Consumer is the durable, at-least-once ingestion worker. It classifies
// each delivered payload by source and performs idempotent writes into the
// event store, then acknowledges. Because every write is an insert-or-no-op
// keyed by event id, redelivery after a partial failure converges on exactly
// the rows a single clean delivery would have produced.
type Consumer struct {
	store   storage.EventStore
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewConsumer constructs a Consumer writing into the given store.
func NewConsumer(store storage.EventStore, m *metrics.Metrics, log *zap.Logger) *Consumer {
	return &Consumer{
		store:   store,
		metrics: m,
		log:     log,
	}
}

// Run consumes from the subscription until the context is canceled.
func (c *Consumer) Run(ctx context.Context, sub queue.Subscription) error {
	c.log.Info("ingestion consumer started")
	return sub.Consume(ctx, func(msg queue.Message) {
		c.Handle(ctx, msg)
	})
}

// Handle processes one delivery and decides its acknowledgement:
//
//   - malformed or unknown-source payloads are terminated so the transport
//     never redelivers them;
//   - storage failures leave the message unacknowledged (Nak) and the
//     transport redelivers after its ack-wait timeout;
//   - success acknowledges and releases the message.
func (c *Consumer) Handle(ctx context.Context, msg queue.Message) {
	start := time.Now()

	ev, err := models.DecodeEvent(msg.Data())
	if err != nil {
		reason := "decode"
		if errors.Is(err, models.ErrUnknownSource) {
			reason = "unknown_source"
		}
		c.log.Warn("dropping unprocessable message",
			zap.String("subject", msg.Subject()),
			zap.String("reason", reason),
			zap.Error(err),
		)
		c.metrics.RecordDrop(reason)
		if termErr := msg.Term(); termErr != nil {
			c.log.Error("failed to terminate message", zap.Error(termErr))
		}
		return
	}

	if ev.Facebook != nil {
		err = c.processFacebook(ctx, ev.Facebook)
	} else {
		err = c.processTiktok(ctx, ev.Tiktok)
	}

	if err != nil {
		c.log.Error("failed to process event, leaving for redelivery",
			zap.String("event_id", ev.EventID()),
			zap.String("source", ev.Source()),
			zap.Error(err),
		)
		c.metrics.RecordIngest(ev.Source(), "error", time.Since(start))
		if nakErr := msg.Nak(); nakErr != nil {
			c.log.Error("failed to nak message", zap.Error(nakErr))
		}
		return
	}

	c.metrics.RecordIngest(ev.Source(), "ok", time.Since(start))
	if ackErr := msg.Ack(); ackErr != nil {
		// The write already landed; a lost ack only means one extra
		// redelivery, which the idempotent store absorbs.
		c.log.Warn("failed to ack message", zap.String("event_id", ev.EventID()), zap.Error(ackErr))
	}
}

func (c *Consumer) processFacebook(ctx context.Context, ev *models.FacebookEvent) error {
	stat := &models.EventStatistic{
		EventID:     ev.EventID,
		Timestamp:   ev.Timestamp,
		Source:      models.SourceFacebook,
		FunnelStage: ev.FunnelStage,
		EventType:   ev.EventType,
		UserID:      strPtr(ev.User.UserID),
	}
	if err := c.store.SaveStatistic(ctx, stat); err != nil {
		return fmt.Errorf("statistic write: %w", err)
	}

	demo := &models.DemographicRecord{
		EventID:   ev.EventID,
		Timestamp: ev.Timestamp,
		Source:    models.SourceFacebook,
		EventType: ev.EventType,
		UserID:    ev.User.UserID,
		Age:       intPtr(ev.User.Age),
		Gender:    strPtr(ev.User.Gender),
		Country:   strPtr(ev.User.Location.Country),
		City:      strPtr(ev.User.Location.City),
	}
	if err := c.store.SaveDemographic(ctx, demo); err != nil {
		return fmt.Errorf("demographic write: %w", err)
	}

	if ev.EventType != models.FacebookRevenueEventType {
		return nil
	}
	amount, ok := models.ParsePurchaseAmount(ev.Engagement.PurchaseAmount)
	if !ok {
		// Data-shape failure: suppress only the revenue record.
		c.log.Debug("skipping revenue record for unparseable amount",
			zap.String("event_id", ev.EventID),
			zap.String("amount", ev.Engagement.PurchaseAmount),
		)
		return nil
	}

	rev := &models.RevenueRecord{
		EventID:        ev.EventID,
		Timestamp:      ev.Timestamp,
		Source:         models.SourceFacebook,
		EventType:      ev.EventType,
		PurchaseAmount: amount,
		CampaignID:     strPtr(ev.Engagement.CampaignID),
		AdID:           strPtr(ev.Engagement.AdID),
	}
	if err := c.store.SaveRevenue(ctx, rev); err != nil {
		return fmt.Errorf("revenue write: %w", err)
	}
	c.metrics.RecordRevenue(models.SourceFacebook)
	return nil
}

func (c *Consumer) processTiktok(ctx context.Context, ev *models.TiktokEvent) error {
	stat := &models.EventStatistic{
		EventID:           ev.EventID,
		Timestamp:         ev.Timestamp,
		Source:            models.SourceTiktok,
		FunnelStage:       ev.FunnelStage,
		EventType:         ev.EventType,
		Followers:         int64Ptr(ev.User.Followers),
		WatchTime:         int64Ptr(ev.Engagement.WatchTime),
		PercentageWatched: intPtr(ev.Engagement.PercentageWatched),
	}
	if err := c.store.SaveStatistic(ctx, stat); err != nil {
		return fmt.Errorf("statistic write: %w", err)
	}

	demo := &models.DemographicRecord{
		EventID:       ev.EventID,
		Timestamp:     ev.Timestamp,
		Source:        models.SourceTiktok,
		EventType:     ev.EventType,
		UserID:        ev.User.UserID,
		Followers:     int64Ptr(ev.User.Followers),
		TiktokCountry: strPtr(ev.Engagement.Country),
	}
	if err := c.store.SaveDemographic(ctx, demo); err != nil {
		return fmt.Errorf("demographic write: %w", err)
	}

	if ev.EventType != models.TiktokRevenueEventType {
		return nil
	}
	amount, ok := models.ParsePurchaseAmount(ev.Engagement.PurchaseAmount)
	if !ok {
		c.log.Debug("skipping revenue record for unparseable amount",
			zap.String("event_id", ev.EventID),
			zap.String("amount", ev.Engagement.PurchaseAmount),
		)
		return nil
	}

	rev := &models.RevenueRecord{
		EventID:        ev.EventID,
		Timestamp:      ev.Timestamp,
		Source:         models.SourceTiktok,
		EventType:      ev.EventType,
		PurchaseAmount: amount,
		PurchasedItem:  strPtr(ev.Engagement.PurchasedItem),
	}
	if err := c.store.SaveRevenue(ctx, rev); err != nil {
		return fmt.Errorf("revenue write: %w", err)
	}
	c.metrics.RecordRevenue(models.SourceTiktok)
	return nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intPtr(i int) *int {
	if i == 0 {
		return nil
	}
	return &i
}

func int64Ptr(i int64) *int64 {
	if i == 0 {
		return nil
	}
	return &i
}
