package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// DefaultMaxMessageBytes is used when a topic is created without a size
// limit.
const DefaultMaxMessageBytes = 1048588

type TopicSummary struct {
	Name       string `json:"name"`
	Partitions int    `json:"partitions"`
	Messages   int64  `json:"messages"`
}

type PartitionInfo struct {
	ID       int32   `json:"id"`
	Leader   int32   `json:"leader"`
	Replicas []int32 `json:"replicas"`
	Low      int64   `json:"low"`
	High     int64   `json:"high"`
	Messages int64   `json:"messages"`
}

type TopicDetail struct {
	Name       string          `json:"name"`
	Partitions []PartitionInfo `json:"partitions"`
}

type TopicSpec struct {
	Name              string `json:"name" validate:"required"`
	Partitions        int32  `json:"partitions" validate:"min=1"`
	ReplicationFactor int16  `json:"replication_factor" validate:"min=1"`
	CleanupPolicy     string `json:"cleanup_policy"`
	InsyncReplicas    int    `json:"insync_replicas" validate:"min=0"`
	RetentionMs       int64  `json:"retention_time"`
	SizeLimit         int    `json:"size_limit" validate:"min=0"`
}

// configEntries renders the topic level settings sent on creation.
func (s TopicSpec) configEntries() map[string]*string {
	str := func(v string) *string { return &v }
	maxBytes := DefaultMaxMessageBytes
	if s.SizeLimit > 0 {
		maxBytes = s.SizeLimit
	}
	entries := map[string]*string{
		"max.message.bytes": str(strconv.Itoa(maxBytes)),
	}
	if s.RetentionMs != 0 {
		entries["retention.ms"] = str(strconv.FormatInt(s.RetentionMs, 10))
	}
	if p := cleanupPolicy(s.CleanupPolicy); p != "" {
		entries["cleanup.policy"] = str(p)
	}
	if s.InsyncReplicas > 0 {
		entries["min.insync.replicas"] = str(strconv.Itoa(s.InsyncReplicas))
	}
	return entries
}

func cleanupPolicy(p string) string {
	switch p = strings.ToLower(strings.TrimSpace(p)); p {
	case "compactdelete", "compact_delete", "delete,compact":
		return "compact,delete"
	default:
		return p
	}
}

// Admin implements TopicAdmin on a sarama ClusterAdmin plus the client it
// was built from.
type Admin struct {
	client  sarama.Client
	admin   sarama.ClusterAdmin
	timeout time.Duration
}

func newAdmin(client sarama.Client, admin sarama.ClusterAdmin, timeout time.Duration) *Admin {
	if timeout <= 0 {
		timeout = DefaultMetadataTimeout
	}
	return &Admin{client: client, admin: admin, timeout: timeout}
}

// ListTopics returns the non-internal topics whose name contains filter,
// with the number of retained messages per topic.
func (a *Admin) ListTopics(ctx context.Context, filter string) ([]TopicSummary, error) {
	topics, err := callCtx(ctx, a.admin.ListTopics)
	if err != nil {
		return nil, metadataErr(err)
	}
	out := make([]TopicSummary, 0, len(topics))
	for name, detail := range topics {
		if strings.HasPrefix(name, "_") || !strings.Contains(name, filter) {
			continue
		}
		ts := TopicSummary{Name: name, Partitions: int(detail.NumPartitions)}
		parts, err := a.partitions(ctx, name)
		if err != nil {
			return nil, err
		}
		for _, p := range parts {
			ts.Messages += p.Messages
		}
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (a *Admin) DescribeTopic(ctx context.Context, name string) (TopicDetail, error) {
	parts, err := a.partitions(ctx, name)
	if err != nil {
		return TopicDetail{}, err
	}
	return TopicDetail{Name: name, Partitions: parts}, nil
}

func (a *Admin) partitions(ctx context.Context, topic string) ([]PartitionInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return callCtx(ctx, func() ([]PartitionInfo, error) {
		ids, err := a.client.Partitions(topic)
		if err != nil {
			return nil, err
		}
		out := make([]PartitionInfo, 0, len(ids))
		for _, id := range ids {
			info := PartitionInfo{ID: id, Leader: -1}
			if b, err := a.client.Leader(topic, id); err == nil {
				info.Leader = b.ID()
			}
			if r, err := a.client.Replicas(topic, id); err == nil {
				info.Replicas = r
			}
			// Partitions whose watermarks cannot be read are listed as empty.
			if wm, err := watermarks(a.client, topic, id); err == nil {
				info.Low, info.High = wm.Low, wm.High
				info.Messages = max(wm.High-wm.Low, 0)
			}
			out = append(out, info)
		}
		return out, nil
	})
}

func (a *Admin) CreateTopic(ctx context.Context, spec TopicSpec) error {
	if spec.Name == "" {
		return errors.New("kafka: topic name is required")
	}
	detail := &sarama.TopicDetail{
		NumPartitions:     spec.Partitions,
		ReplicationFactor: spec.ReplicationFactor,
		ConfigEntries:     spec.configEntries(),
	}
	_, err := callCtx(ctx, func() (struct{}, error) {
		return struct{}{}, a.admin.CreateTopic(spec.Name, detail, false)
	})
	if err != nil {
		return fmt.Errorf("create topic %q: %w", spec.Name, err)
	}
	return nil
}

func (a *Admin) DeleteTopics(ctx context.Context, names []string) error {
	var errs []error
	for _, name := range names {
		_, err := callCtx(ctx, func() (struct{}, error) {
			return struct{}{}, a.admin.DeleteTopic(name)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("delete topic %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Close also closes the underlying client.
func (a *Admin) Close() error { return a.admin.Close() }
