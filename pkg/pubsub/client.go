package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/library-loans-backend/pkg/config"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
)

const (
	kindTopic        = "topics"
	kindSubscription = "subscriptions"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("pubsub loans topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client holds the Pub/Sub connection used for loan events. PUBSUB_EMULATOR_HOST
// is honoured by the underlying SDK for local runs.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

// NewClient connects and fails when the loans topic, or the loans
// subscription if one is configured, does not exist.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	raw, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	c := &Client{client: raw, projectID: projectID, cfg: cfg}
	if err := c.verify(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, logger.Fields{
			"project":      projectID,
			"topic":        cfg.LoansTopic,
			"subscription": cfg.LoansSubscription,
		}), "pubsub.connected")
	}
	return c, nil
}

// verify looks up the configured topic and subscription concurrently.
func (c *Client) verify(ctx context.Context) error {
	topic := strings.TrimSpace(c.cfg.LoansTopic)
	if topic == "" {
		return errTopicRequired
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.lookup(kindTopic, topic, func(name string) error {
			_, err := c.client.TopicAdminClient.GetTopic(gctx, &pubsubpb.GetTopicRequest{Topic: name})
			return err
		})
	})
	if sub := strings.TrimSpace(c.cfg.LoansSubscription); sub != "" {
		g.Go(func() error {
			return c.lookup(kindSubscription, sub, func(name string) error {
				_, err := c.client.SubscriptionAdminClient.GetSubscription(gctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
				return err
			})
		})
	}
	return g.Wait()
}

func (c *Client) lookup(kind, name string, get func(string) error) error {
	full := resourcePath(c.projectID, kind, name)
	if full == "" {
		return fmt.Errorf("%s %q not configured", kind, name)
	}
	err := get(full)
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("look up %s %q: %w", kind, name, err)
	}
}

// Publisher returns a handle for topic, given as an id or a full resource name.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourcePath(c.projectID, kindTopic, topic)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

// Subscription returns a subscriber for name, given as an id or a full
// resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourcePath(c.projectID, kindSubscription, name)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

// LoansSubscription is nil when no loans subscription is configured.
func (c *Client) LoansSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.Subscription(c.cfg.LoansSubscription)
}

// Ping re-checks that the configured resources still exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	return c.verify(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourcePath expands an id to projects/<project>/<kind>/<id>. Full names
// of the right kind pass through unchanged.
func resourcePath(project, kind, name string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/"):
		return name
	case project == "":
		return ""
	}
	return "projects/" + project + "/" + kind + "/" + name
}
