package eventlog

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Record is the value this package hands back to callers, decoupling them
// from the underlying kgo.Record type.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte

	raw *kgo.Record
}

// RebalanceListener is notified when partitions are assigned to or revoked
// from this consumer instance. Implementations must not block long: the
// hot path uses this to drop in-memory position state for revoked
// partitions and rebuild it by replay for newly assigned ones.
type RebalanceListener interface {
	OnPartitionsAssigned(topic string, partitions []int32)
	OnPartitionsRevoked(topic string, partitions []int32)
}

// ConsumerConfig parameterizes a consumer-group consumer.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	Group   string
}

// Consumer is a consumer-group member with manual offset commit: offsets
// advance only after the caller has finished processing a batch, giving
// at-least-once delivery semantics.
type Consumer struct {
	client *kgo.Client
}

// NewConsumer constructs a consumer-group consumer. listener may be nil if
// the caller doesn't need rebalance notifications.
func NewConsumer(cfg ConsumerConfig, listener RebalanceListener) (*Consumer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
	}
	if listener != nil {
		opts = append(opts,
			kgo.OnPartitionsAssigned(func(ctx context.Context, client *kgo.Client, assigned map[string][]int32) {
				for topic, partitions := range assigned {
					listener.OnPartitionsAssigned(topic, partitions)
				}
			}),
			kgo.OnPartitionsRevoked(func(ctx context.Context, client *kgo.Client, revoked map[string][]int32) {
				for topic, partitions := range revoked {
					listener.OnPartitionsRevoked(topic, partitions)
				}
			}),
		)
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("eventlog: new consumer client: %w", err)
	}
	return &Consumer{client: client}, nil
}

// Poll fetches the next batch of records, blocking until at least one
// record is available, ctx is done, or a fatal fetch error occurs.
func (c *Consumer) Poll(ctx context.Context) ([]Record, error) {
	fetches := c.client.PollFetches(ctx)
	if errs := fetches.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("eventlog: poll fetches: %w", errs[0].Err)
	}

	var records []Record
	fetches.EachRecord(func(r *kgo.Record) {
		records = append(records, Record{
			Topic:     r.Topic,
			Partition: r.Partition,
			Offset:    r.Offset,
			Key:       r.Key,
			Value:     r.Value,
			raw:       r,
		})
	})
	return records, nil
}

// Commit marks the given records' offsets committed. Call this only after
// every side effect of processing them (archive write, position update,
// cache publish) has completed.
func (c *Consumer) Commit(ctx context.Context, records []Record) error {
	raws := make([]*kgo.Record, 0, len(records))
	for _, r := range records {
		raws = append(raws, r.raw)
	}
	if err := c.client.CommitRecords(ctx, raws...); err != nil {
		return fmt.Errorf("eventlog: commit offsets: %w", err)
	}
	return nil
}

// Close leaves the consumer group and releases the underlying client.
func (c *Consumer) Close() {
	c.client.Close()
}
