// Package mqtt mirrors sunrise lifecycle events to an MQTT broker and
// accepts on-demand sync commands.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sunrised/internal/eventbus"
	"github.com/dokzlo13/sunrised/internal/syncsvc"
)

const (
	defaultConnectTimeout = 10 * time.Second
	subscribeTimeout      = 10 * time.Second
	publishTimeout        = 3 * time.Second
	syncTimeout           = time.Minute
	disconnectMs          = 500
)

// SyncRequester runs an on-demand sync.
type SyncRequester interface {
	RequestSync(ctx context.Context) (syncsvc.Result, error)
}

// Options configures the broker connection.
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte

	ConnectTimeout time.Duration // Defaults to 10s
}

// newPahoClient is replaced in tests.
var newPahoClient = paho.NewClient

// Client publishes events and serves the sync command topic.
type Client struct {
	client paho.Client
	topics Topics
	qos    byte
	syncer SyncRequester

	ctx    context.Context
	cancel context.CancelFunc
}

// Connect dials the broker. The sync command subscription is restored on
// every reconnect.
func Connect(opts Options, syncer SyncRequester) (*Client, error) {
	c := newClient(nil, opts, syncer)

	pahoOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(pc paho.Client) {
			log.Info().Str("broker", opts.Broker).Msg("Connected to MQTT broker")
			c.subscribe(pc)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost, will reconnect")
		})

	c.client = newPahoClient(pahoOpts)
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	// With connect retry on, the token only completes once connected. Stop
	// the background retries before giving up on the broker.
	tok := c.client.Connect()
	if ok := tok.WaitTimeout(timeout); !ok {
		c.abandon()
		return nil, errors.New("MQTT connect timed out")
	}
	if err := tok.Error(); err != nil {
		c.abandon()
		return nil, fmt.Errorf("MQTT connect: %w", err)
	}
	return c, nil
}

func newClient(client paho.Client, opts Options, syncer SyncRequester) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		client: client,
		topics: NewTopics(opts.TopicPrefix),
		qos:    opts.QoS,
		syncer: syncer,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Client) subscribe(pc paho.Client) {
	if c.syncer == nil || c.ctx.Err() != nil {
		return
	}
	topic := c.topics.SyncCommand()
	tok := pc.Subscribe(topic, c.qos, c.onSyncCommand)
	if ok := tok.WaitTimeout(subscribeTimeout); !ok {
		log.Warn().Str("topic", topic).Msg("MQTT subscribe timed out")
		return
	}
	if err := tok.Error(); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("MQTT subscribe failed")
		return
	}
	log.Info().Str("topic", topic).Msg("Subscribed to MQTT sync commands")
}

// onSyncCommand runs on paho's router goroutine, so the sync is handed off.
func (c *Client) onSyncCommand(_ paho.Client, msg paho.Message) {
	log.Info().Str("topic", msg.Topic()).Msg("MQTT sync command received")
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, syncTimeout)
		defer cancel()

		res, err := c.syncer.RequestSync(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("MQTT sync request failed")
			return
		}
		payload, err := encodeSyncResult(res)
		if err != nil {
			log.Error().Err(err).Msg("Failed to encode sync result")
			return
		}
		c.publish(c.topics.SyncResult(), false, payload)
	}()
}

// HandleEvent publishes an event, and the retained active config when the
// event carries one. It is an eventbus.Handler.
func (c *Client) HandleEvent(e eventbus.Event) {
	payload, err := encodeEvent(e)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(e.Type)).Msg("Failed to encode event")
		return
	}
	c.publish(c.topics.Event(e.Type), false, payload)

	if e.Type == eventbus.EventTypeConfigApplied {
		cfg, err := encodeFields(e.Fields)
		if err != nil {
			log.Error().Err(err).Msg("Failed to encode config")
			return
		}
		c.publish(c.topics.Config(), true, cfg)
	}
}

// PublishConfig publishes the active config as the retained config message.
func (c *Client) PublishConfig(fields map[string]any) {
	payload, err := encodeFields(fields)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode config")
		return
	}
	c.publish(c.topics.Config(), true, payload)
}

func (c *Client) publish(topic string, retained bool, payload []byte) {
	tok := c.client.Publish(topic, c.qos, retained, payload)
	if ok := tok.WaitTimeout(publishTimeout); !ok {
		log.Warn().Str("topic", topic).Msg("MQTT publish timed out")
		return
	}
	if err := tok.Error(); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("MQTT publish failed")
	}
}

func (c *Client) abandon() {
	c.cancel()
	c.client.Disconnect(0)
}

// Close cancels pending sync commands and disconnects.
func (c *Client) Close() {
	c.cancel()
	c.client.Disconnect(disconnectMs)
	log.Info().Msg("MQTT client disconnected")
}
