package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sunrised/internal/config"
	"github.com/dokzlo13/sunrised/internal/eventbus"
	"github.com/dokzlo13/sunrised/internal/mqtt"
	"github.com/dokzlo13/sunrised/internal/sunrise"
)

// connectMQTT is replaced in tests.
var connectMQTT = mqtt.Connect

// MQTTService bridges the event bus to a broker.
type MQTTService struct {
	cfg    *config.Config
	bus    *eventbus.Bus
	store  ConfigView
	syncer mqtt.SyncRequester

	mu     sync.Mutex
	client *mqtt.Client
	closed bool
	done   chan struct{}
}

// NewMQTTService creates a new MQTTService.
func NewMQTTService(cfg *config.Config, bus *eventbus.Bus, store ConfigView, syncer mqtt.SyncRequester) *MQTTService {
	return &MQTTService{
		cfg:    cfg,
		bus:    bus,
		store:  store,
		syncer: syncer,
		done:   make(chan struct{}),
	}
}

// Start connects to the broker in the background if enabled. Connection
// failures are logged and leave the daemon running without MQTT.
func (s *MQTTService) Start(ctx context.Context) {
	if !s.cfg.MQTT.Enabled {
		close(s.done)
		return
	}
	go s.connect(ctx)
}

func (s *MQTTService) connect(ctx context.Context) {
	defer close(s.done)

	client, err := connectMQTT(mqtt.Options{
		Broker:      s.cfg.MQTT.Broker,
		ClientID:    s.cfg.MQTT.ClientID,
		TopicPrefix: s.cfg.MQTT.TopicPrefix,
		QoS:         byte(s.cfg.MQTT.QoS),
	}, s.syncer)
	if err != nil {
		log.Error().Err(err).Str("broker", s.cfg.MQTT.Broker).Msg("Failed to connect to MQTT broker, continuing without it")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || ctx.Err() != nil {
		client.Close()
		return
	}
	s.client = client

	s.bus.SubscribeAll(client.HandleEvent)
	client.PublishConfig(sunrise.Fields(s.store.Current()))
}

// Connected reports whether the broker connection is up.
func (s *MQTTService) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// Close disconnects from the broker. A connect still in progress is
// dropped once it returns.
func (s *MQTTService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
}
