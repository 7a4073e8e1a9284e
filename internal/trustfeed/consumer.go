// Package trustfeed consumes the trust-data change topic: ASPA object
// upserts/flushes and ROA-change notifications, feeding the ASPA trust
// store and the RPKI change-notification queue (spec §6 collaborator
// contracts). Architecture mirrors the teacher's
// internal/kafka/state_consumer.go: manual offset commit driven off
// OnPartitionsAssigned/Revoked/Lost, committed once each fetched batch has
// been applied.
package trustfeed

import (
	"context"
	"crypto/tls"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"go.uber.org/zap"

	"github.com/srx-go/rpki-validator/internal/afi"
	"github.com/srx-go/rpki-validator/internal/aspatrie"
	"github.com/srx-go/rpki-validator/internal/metrics"
	"github.com/srx-go/rpki-validator/internal/updatecache"
)

// Consumer drives the ASPA trust store and the RPKI change-notification
// queue from a Kafka topic.
type Consumer struct {
	client *kgo.Client
	trust  *aspatrie.Store
	logger *zap.Logger

	changes chan updatecache.UpdateID
	joined  atomic.Bool
}

// New builds a Consumer against the given trust store. changeBuffer sizes
// the channel the notification fan-out drains via Changes().
func New(brokers []string, groupID string, topics []string, clientID string, fetchMaxBytes int32,
	tlsCfg *tls.Config, saslMech sasl.Mechanism, trust *aspatrie.Store, changeBuffer int, logger *zap.Logger) (*Consumer, error) {
	c := &Consumer{
		trust:   trust,
		logger:  logger,
		changes: make(chan updatecache.UpdateID, changeBuffer),
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.ClientID(clientID),
		kgo.FetchMaxBytes(fetchMaxBytes),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, _ map[string][]int32) {
			c.joined.Store(true)
			logger.Info("trust feed: partitions assigned")
		}),
		kgo.OnPartitionsRevoked(func(ctx context.Context, cl *kgo.Client, _ map[string][]int32) {
			if err := cl.CommitMarkedOffsets(ctx); err != nil {
				logger.Error("trust feed: commit on revoke failed", zap.Error(err))
			}
			c.joined.Store(false)
			logger.Info("trust feed: partitions revoked")
		}),
		kgo.OnPartitionsLost(func(_ context.Context, _ *kgo.Client, _ map[string][]int32) {
			c.joined.Store(false)
			logger.Info("trust feed: partitions lost")
		}),
	}
	if tlsCfg != nil {
		opts = append(opts, kgo.DialTLSConfig(tlsCfg))
	}
	if saslMech != nil {
		opts = append(opts, kgo.SASL(saslMech))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	c.client = client
	return c, nil
}

// Changes implements rpki.ChangeQueue: UpdateIDs whose ROA outcome may
// have changed because the trust data moved.
func (c *Consumer) Changes() <-chan updatecache.UpdateID {
	return c.changes
}

// IsJoined implements the /readyz ConsumerStatus contract.
func (c *Consumer) IsJoined() bool {
	return c.joined.Load()
}

func (c *Consumer) Close() {
	close(c.changes)
	c.client.Close()
}

// Run polls fetches until ctx is cancelled, applying each record's effect
// and committing the batch's offsets once applied.
func (c *Consumer) Run(ctx context.Context) {
	for {
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				c.logger.Error("trust feed: fetch error",
					zap.String("topic", e.Topic),
					zap.Int32("partition", e.Partition),
					zap.Error(e.Err),
				)
			}
		}

		fetches.EachRecord(func(r *kgo.Record) {
			c.apply(r.Topic, r.Value)
			c.client.MarkCommitRecords(r)
		})

		commitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := c.client.CommitMarkedOffsets(commitCtx); err != nil {
			c.logger.Error("trust feed: commit offsets failed", zap.Error(err))
		}
		cancel()
	}
}

// apply decodes one raw Kafka record value and applies its effect. Kept
// independent of *kgo.Record so it can be exercised without a broker.
func (c *Consumer) apply(topic string, value []byte) {
	rec, err := decodeRecord(value)
	if err != nil {
		metrics.ParseErrorsTotal.WithLabelValues("trustfeed").Inc()
		c.logger.Warn("trust feed: malformed record", zap.Error(err))
		return
	}

	switch rec.Type {
	case typeASPAUpsert:
		c.trust.Insert(aspatrie.NewObject(rec.CustomerAS, rec.Providers, afi.Family(rec.Family)))
		metrics.ASPAObjectsTotal.Set(float64(c.trust.Count()))
		metrics.TrustFeedRecordsTotal.WithLabelValues(topic, "apply").Inc()

	case typeASPAFlush:
		c.trust.Flush()
		metrics.ASPAObjectsTotal.Set(0)
		metrics.TrustFeedRecordsTotal.WithLabelValues(topic, "flush").Inc()

	case typeROAChange:
		for _, id := range rec.UpdateIDs {
			select {
			case c.changes <- updatecache.UpdateID(id):
			default:
				c.logger.Warn("trust feed: change queue full, dropping notification", zap.Uint32("update_id", id))
			}
		}
		metrics.TrustFeedRecordsTotal.WithLabelValues(topic, "apply").Inc()

	default:
		c.logger.Warn("trust feed: unknown record type", zap.String("type", rec.Type))
	}
}
