package publisher

import (
	"encoding/json"
	"sync"
	"time"

	"codeberg.org/mutker/sensorsim/internal/errors"
	"codeberg.org/mutker/sensorsim/internal/logger"
	"codeberg.org/mutker/sensorsim/internal/sensor"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250
)

type MQTTConfig struct {
	Broker      string
	TopicPrefix string
	ClientID    string
	QoS         byte
}

func (c MQTTConfig) Validate() error {
	errFactory := errors.New()

	if c.Broker == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "MQTT broker is required")
	}
	if c.QoS > 2 {
		return errFactory.WithData(ErrInvalidConfig, struct{ QoS byte }{c.QoS})
	}
	return nil
}

// mqttClient is the subset of mqtt.Client used for publishing.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes each measurement as a JSON document.
type MQTT struct {
	client   mqttClient
	prefix   string
	qos      byte
	sensorID string
	log      logger.Logger

	// watchers tracks in-flight publish tokens
	watchers  sync.WaitGroup
	closeOnce sync.Once
}

// NewMQTT connects to the configured broker.
func NewMQTT(cfg MQTTConfig, sensorID string, log logger.Logger) (*MQTT, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "sensorsim-" + sensorID
	}

	log = log.With("broker", cfg.Broker)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Msg("Connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("Lost connection to MQTT broker")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errFactory.WithMessage(ErrConnectFailed, "timed out connecting to MQTT broker")
	}
	if err := token.Error(); err != nil {
		return nil, errFactory.Wrap(ErrConnectFailed, err)
	}

	return newMQTT(client, cfg, sensorID, log), nil
}

func newMQTT(client mqttClient, cfg MQTTConfig, sensorID string, log logger.Logger) *MQTT {
	return &MQTT{
		client:   client,
		prefix:   cfg.TopicPrefix,
		qos:      cfg.QoS,
		sensorID: sensorID,
		log:      log,
	}
}

// OnMeasurement publishes m without waiting for the broker.
func (p *MQTT) OnMeasurement(m sensor.Measurement) error {
	payload, err := json.Marshal(NewPayload(p.sensorID, m))
	if err != nil {
		return errors.New().Wrap(ErrEncodeFailed, err)
	}

	topic := Topic(p.prefix, m, p.sensorID)
	token := p.client.Publish(topic, p.qos, false, payload)

	p.watchers.Add(1)
	go p.watch(topic, token)

	return nil
}

func (p *MQTT) watch(topic string, token mqtt.Token) {
	defer p.watchers.Done()

	if !token.WaitTimeout(publishTimeout) {
		p.log.Warn().Str("topic", topic).Msg("MQTT publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		p.log.Warn().Err(err).Str("topic", topic).Msg("MQTT publish failed")
	}
}

// Close waits for in-flight publishes and disconnects.
func (p *MQTT) Close() error {
	p.closeOnce.Do(func() {
		p.watchers.Wait()
		p.client.Disconnect(disconnectQuiesce)
		p.log.Debug().Msg("MQTT publisher closed")
	})
	return nil
}
