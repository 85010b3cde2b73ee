package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/mangopay-gateway/pkg/config"
	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
)

var (
	ErrNotInitialized = errors.New("pubsub client not initialized")
	errNoProject      = errors.New("gcp project id is required")
	errNoTopic        = errors.New("pubsub topic name is required")
)

// Client fans processor events out to the configured topic. The publisher
// handle is created once and flushed on Close.
type Client struct {
	ps    *pubsub.Client
	topic string

	once sync.Once
	pub  *pubsub.Publisher
}

// NewClient connects to Pub/Sub and requires the processor events topic to
// exist already.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errNoProject
	}
	topic := topicResourceName(project, cfg.ProcessorEventsTopic)
	if topic == "" {
		return nil, errNoTopic
	}

	ps, err := pubsub.NewClient(ctx, project, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("open pubsub %s: %w", project, err)
	}
	c := &Client{ps: ps, topic: topic}
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", topic), "pubsub ready")
	}
	return c, nil
}

// Ping confirms the topic is still there.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return ErrNotInitialized
	}
	_, err := c.ps.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topic})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub topic %s does not exist", c.topic)
	default:
		return fmt.Errorf("get pubsub topic %s: %w", c.topic, err)
	}
}

// ProcessorEventsPublisher returns the shared publisher for Mangopay
// notifications, or nil on a nil client.
func (c *Client) ProcessorEventsPublisher() *pubsub.Publisher {
	if c == nil || c.ps == nil {
		return nil
	}
	c.once.Do(func() {
		c.pub = c.ps.Publisher(c.topic)
	})
	return c.pub
}

// Topic is the fully qualified topic name.
func (c *Client) Topic() string {
	if c == nil {
		return ""
	}
	return c.topic
}

// Close flushes pending publishes before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	if c.pub != nil {
		c.pub.Stop()
	}
	return c.ps.Close()
}

// topicResourceName expands a short topic id to projects/<p>/topics/<id>.
// Fully qualified names pass through untouched.
func topicResourceName(project, name string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/"):
		return name
	case strings.TrimSpace(project) == "":
		return ""
	}
	return "projects/" + strings.TrimSpace(project) + "/topics/" + name
}
