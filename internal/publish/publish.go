// Package publish mirrors session status to an MQTT broker so dashboards
// and home automation can follow what is being drawn.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ayusman/airboard/internal/session"
)

// Config holds the broker settings.
type Config struct {
	Enabled        bool          `yaml:"enabled"`
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	QoS            byte          `yaml:"qos"`
	Retain         bool          `yaml:"retain"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// DefaultConfig returns a disabled publisher pointing at a local broker.
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		ClientID:       "airboard",
		TopicPrefix:    "airboard",
		ConnectTimeout: 5 * time.Second,
	}
}

// Client is the part of the paho client the publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

// Source is a session whose status can be followed. *session.Coordinator
// implements it.
type Source interface {
	ID() string
	Subscribe() *session.Subscriber
}

// Event is the payload published when a session ends.
type Event struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
}

const publishTimeout = 2 * time.Second

// Publisher forwards status changes of followed sessions.
type Publisher struct {
	cfg       Config
	client    Client
	conn      mqtt.Client
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	published atomic.Uint64
	errors    atomic.Uint64
	logger    *slog.Logger
}

// New creates a Publisher on an existing client.
func New(cfg Config, client Client) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		cfg:    cfg,
		client: client,
		ctx:    ctx,
		cancel: cancel,
		logger: slog.Default().With("component", "mqtt"),
	}
}

// Connect dials the broker and returns a Publisher using the connection.
// The client reconnects on its own after the first successful connect.
func Connect(cfg Config) (*Publisher, error) {
	logger := slog.Default().With("component", "mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connection established", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, will auto-reconnect", "broker", cfg.Broker, "error", err)
	}

	conn := mqtt.NewClient(opts)
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ConnectTimeout
	}

	logger.Info("connecting to mqtt broker", "broker", cfg.Broker)
	token := conn.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	p := New(cfg, conn)
	p.conn = conn
	return p, nil
}

// StatusTopic returns the topic status updates of a session go to.
func (p *Publisher) StatusTopic(sessionID string) string {
	return fmt.Sprintf("%s/%s/status", p.cfg.TopicPrefix, sessionID)
}

// EventTopic returns the topic session lifecycle events go to.
func (p *Publisher) EventTopic(sessionID string) string {
	return fmt.Sprintf("%s/%s/events", p.cfg.TopicPrefix, sessionID)
}

// Follow publishes the status of s whenever it changes, until the session
// ends or the publisher is closed. Frame-only updates are not published.
func (p *Publisher) Follow(s Source) {
	sub := s.Subscribe()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer sub.Close()
		p.follow(s.ID(), sub)
	}()
}

func (p *Publisher) follow(id string, sub *session.Subscriber) {
	var last session.Status
	first := true

	for {
		u, err := sub.Next(p.ctx)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			ev := Event{SessionID: id, State: "ended"}
			if !errors.Is(err, session.ErrSessionStopped) {
				ev.Reason = err.Error()
			}
			p.send(p.EventTopic(id), ev)
			return
		}
		if u.Snapshot == nil {
			continue
		}

		st := u.Snapshot.Status
		st.FrameSeq = 0
		if !first && st == last {
			continue
		}
		first = false
		last = st
		p.send(p.StatusTopic(id), u.Snapshot.Status)
	}
}

func (p *Publisher) send(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.errors.Add(1)
		p.logger.Error("failed to marshal payload", "topic", topic, "error", err)
		return
	}

	token := p.client.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.errors.Add(1)
		p.logger.Warn("publish timeout", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		p.errors.Add(1)
		p.logger.Warn("publish failed", "topic", topic, "error", err)
		return
	}

	p.published.Add(1)
	p.logger.Debug("status published", "topic", topic, "size", len(payload))
}

// Stats returns how many messages were published and how many failed.
func (p *Publisher) Stats() (published, failed uint64) {
	return p.published.Load(), p.errors.Load()
}

// Close stops following sessions and disconnects from the broker.
func (p *Publisher) Close() {
	p.cancel()
	p.wg.Wait()
	if p.conn != nil {
		p.conn.Disconnect(250)
	}
}
