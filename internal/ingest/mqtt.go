// Package ingest subscribes to machine telemetry on an MQTT broker and turns
// every message into a scored log record.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"maintenance-classifier/internal/features"
	"maintenance-classifier/internal/prediction"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

// Results recorded per message.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// ErrInvalidPayload is returned for messages that cannot be decoded.
var ErrInvalidPayload = errors.New("invalid telemetry payload")

// Creator scores and stores a reading.
type Creator interface {
	CreateWithPrediction(ctx context.Context, req prediction.CreateRequest) (prediction.Outcome, error)
}

// MetricsInterface defines metrics methods needed by the subscriber
type MetricsInterface interface {
	IngestMessageInc(result string)
}

type Config struct {
	Broker         string
	Topic          string
	ClientID       string
	QoS            byte
	Username       string
	Password       string
	ConnectTimeout time.Duration
	// HandleTimeout bounds scoring of a single message.
	HandleTimeout time.Duration
}

// Subscriber feeds MQTT telemetry into a Creator.
type Subscriber struct {
	cfg     Config
	creator Creator
	metrics MetricsInterface

	mu     sync.Mutex
	client mqtt.Client
	ctx    context.Context
}

func NewSubscriber(cfg Config, creator Creator, metrics MetricsInterface) *Subscriber {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = 30 * time.Second
	}
	return &Subscriber{cfg: cfg, creator: creator, metrics: metrics, ctx: context.Background()}
}

// Start connects to the broker and subscribes. Messages are handled until
// ctx is cancelled or Stop is called.
func (s *Subscriber) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(s.cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
	}
	if s.cfg.Password != "" {
		opts.SetPassword(s.cfg.Password)
	}

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", s.cfg.Broker).Msg("MQTT connection lost")
	})
	// Resubscribe after every (re)connect since the session is clean.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.onMessage)
		if token.WaitTimeout(s.cfg.ConnectTimeout) && token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", s.cfg.Topic).Msg("MQTT subscribe failed")
			return
		}
		log.Info().Str("broker", s.cfg.Broker).Str("topic", s.cfg.Topic).Msg("Subscribed to telemetry")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		return fmt.Errorf("connect to %s: timeout after %v", s.cfg.Broker, s.cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", s.cfg.Broker, err)
	}

	s.mu.Lock()
	s.client = client
	s.ctx = ctx
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop unsubscribes and disconnects. It is safe to call more than once.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return
	}
	client.Unsubscribe(s.cfg.Topic).WaitTimeout(time.Second)
	client.Disconnect(250)
	log.Info().Str("broker", s.cfg.Broker).Msg("MQTT subscriber stopped")
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	s.Handle(ctx, msg.Topic(), msg.Payload())
}

// Handle processes one telemetry message and reports its result.
func (s *Subscriber) Handle(ctx context.Context, topic string, payload []byte) string {
	result := s.handle(ctx, topic, payload)
	if s.metrics != nil {
		s.metrics.IngestMessageInc(result)
	}
	return result
}

func (s *Subscriber) handle(ctx context.Context, topic string, payload []byte) string {
	req, err := ParsePayload(topic, payload)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Rejected telemetry message")
		return ResultRejected
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.HandleTimeout)
	defer cancel()

	out, err := s.creator.CreateWithPrediction(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Uint64("machine_id", req.MachineID).Msg("Failed to score telemetry")
		if errors.Is(err, features.ErrInvalidReading) {
			return ResultRejected
		}
		return ResultFailed
	}

	log.Debug().Str("topic", topic).Uint64("log_id", out.Record.ID).Str("prediction", out.Record.Prediction).
		Msg("Telemetry scored")
	return ResultAccepted
}

// field aliases accepted in payloads, the first being canonical.
var fieldAliases = map[string][]string{
	"machine_id":          {"machine_id", "machineId"},
	"product_id":          {"product_id", "productId", "production_id"},
	"air_temperature":     {"air_temperature", "Air_temperature_K", "air_temperature_k"},
	"process_temperature": {"process_temperature", "Process_temperature_K", "process_temperature_k"},
	"rotational_speed":    {"rotational_speed", "Rotational_speed_rpm", "rotational_speed_rpm"},
	"torque":              {"torque", "Torque_Nm", "torque_nm"},
	"tool_wear":           {"tool_wear", "Tool_wear_min", "tool_wear_min"},
	"unit":                {"unit"},
}

// ParsePayload decodes a JSON telemetry message. Numbers may arrive as JSON
// numbers or strings. A missing machine_id is taken from a topic of the
// form machines/<id>/telemetry.
func ParsePayload(topic string, payload []byte) (prediction.CreateRequest, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return prediction.CreateRequest{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	req := prediction.CreateRequest{Source: prediction.SourceIngest}

	if v, ok := lookup(raw, "machine_id"); ok && !blank(v) {
		id, err := toID(v)
		if err != nil {
			return req, fmt.Errorf("%w: machine_id: %v", ErrInvalidPayload, err)
		}
		req.MachineID = id
	} else if id, ok := machineIDFromTopic(topic); ok {
		req.MachineID = id
	} else {
		return req, fmt.Errorf("%w: machine_id is missing", ErrInvalidPayload)
	}

	v, ok := lookup(raw, "product_id")
	if !ok || blank(v) {
		return req, fmt.Errorf("%w: product_id is missing", ErrInvalidPayload)
	}
	productID, err := toID(v)
	if err != nil {
		return req, fmt.Errorf("%w: product_id: %v", ErrInvalidPayload, err)
	}
	req.ProductID = productID

	targets := []struct {
		key string
		dst **float64
	}{
		{"air_temperature", &req.Reading.AirTemperature},
		{"process_temperature", &req.Reading.ProcessTemperature},
		{"rotational_speed", &req.Reading.RotationalSpeed},
		{"torque", &req.Reading.Torque},
		{"tool_wear", &req.Reading.ToolWear},
	}
	for _, t := range targets {
		v, ok := lookup(raw, t.key)
		if !ok || blank(v) {
			continue
		}
		f, err := toNumber(v)
		if err != nil {
			return req, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, t.key, err)
		}
		*t.dst = &f
	}

	if v, ok := lookup(raw, "unit"); ok {
		req.Reading.Unit = features.TemperatureUnit(strings.ToUpper(cast.ToString(v)))
	}

	return req, nil
}

// blank reports a null or whitespace-only value, which counts as absent.
func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// toNumber coerces JSON numbers and numeric strings. Booleans are rejected.
func toNumber(v any) (float64, error) {
	switch t := v.(type) {
	case bool:
		return 0, fmt.Errorf("boolean %v is not a number", t)
	case string:
		return cast.ToFloat64E(strings.TrimSpace(t))
	default:
		return cast.ToFloat64E(v)
	}
}

// toID accepts positive whole numbers only.
func toID(v any) (uint64, error) {
	f, err := toNumber(v)
	if err != nil {
		return 0, err
	}
	if f <= 0 || f != math.Trunc(f) || f > 1<<53 {
		return 0, fmt.Errorf("%v is not a positive whole number", v)
	}
	return cast.ToUint64E(f)
}

func lookup(raw map[string]any, key string) (any, bool) {
	for _, alias := range fieldAliases[key] {
		if v, ok := raw[alias]; ok {
			return v, true
		}
	}
	return nil, false
}

func machineIDFromTopic(topic string) (uint64, bool) {
	parts := strings.Split(topic, "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "machines" {
			id, err := cast.ToUint64E(parts[i+1])
			return id, err == nil && id > 0
		}
	}
	return 0, false
}
