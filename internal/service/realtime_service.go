package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kanbot-project/kanbot-sync-api/internal/dto"
	"github.com/kanbot-project/kanbot-sync-api/internal/observability"
)

const (
	realtimeSendBufferSize = 32
	heartbeatInterval      = 30 * time.Second
)

// Close codes for connections rejected before admission.
const (
	CloseUnauthenticated = 4001
	CloseForbidden       = 4003
)

// Frames exchanged for client-driven liveness checks.
const (
	livenessPing = "ping"
	livenessPong = "pong"
)

// RealtimeConn is the transport surface a live connection must provide.
// *websocket.Conn satisfies it; tests substitute in-memory fakes.
type RealtimeConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v interface{}) error
	Close() error
}

// The message type constant for text frames, mirrored from the websocket
// package so RealtimeConn stays transport-agnostic.
const textMessage = 1

// RealtimeConnectionOptions wraps metadata resolved during the HTTP upgrade.
type RealtimeConnectionOptions struct {
	UserID        string
	SpaceID       string
	CorrelationID string
	Context       context.Context
}

// RealtimeService owns the space-scoped connection registry and fan-out.
// Delivery is best-effort and at-most-once: Publish is only called after the
// owning transaction committed, and a connection that fails a send is removed
// from its space without affecting delivery to the others.
type RealtimeService interface {
	ServeConnection(conn RealtimeConn, opts RealtimeConnectionOptions)
	Publish(ctx context.Context, spaceID string, event dto.RealtimeEvent)
	ConnectionCount(spaceID string) int
	Start(ctx context.Context)
}

type realtimeService struct {
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	tracer      trace.Tracer
	hub         *realtimeHub
	nodeID      string
}

type realtimeHub struct {
	mu     sync.RWMutex
	spaces map[string]map[*realtimeClient]struct{}
	log    zerolog.Logger
}

type realtimeClient struct {
	conn    RealtimeConn
	send    chan outboundFrame
	options RealtimeConnectionOptions
	service *realtimeService
	closed  chan struct{}
	once    sync.Once
}

// outboundFrame is either a JSON event or a literal text frame.
type outboundFrame struct {
	event *dto.RealtimeEvent
	text  string
}

type relayEvent struct {
	Source  string            `json:"source"`
	SpaceID string            `json:"space_id"`
	Event   dto.RealtimeEvent `json:"event"`
	SentAt  time.Time         `json:"sent_at"`
}

// NewRealtimeService creates the connection registry. The redis client and
// NATS connection are optional cross-node relays; either may be nil, leaving
// the registry purely process-local.
func NewRealtimeService(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) RealtimeService {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":realtime"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".realtime"
	}

	return &realtimeService{
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "realtime_service").Logger(),
		tracer:      otel.Tracer("github.com/kanbot-project/kanbot-sync-api/internal/service/realtime"),
		hub: &realtimeHub{
			spaces: make(map[string]map[*realtimeClient]struct{}),
			log:    logger.With().Str("component", "realtime_hub").Logger(),
		},
		nodeID: uuid.NewString(),
	}
}

func (s *realtimeService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// ServeConnection admits an already-authenticated connection into its space
// and blocks until the connection closes. Authentication and the membership
// check happen before this call; rejected sockets never reach the registry.
func (s *realtimeService) ServeConnection(conn RealtimeConn, opts RealtimeConnectionOptions) {
	client := &realtimeClient{
		conn:    conn,
		send:    make(chan outboundFrame, realtimeSendBufferSize),
		options: opts,
		service: s,
		closed:  make(chan struct{}),
	}

	s.hub.register(client)
	observability.RealtimeConnectionsActive().Inc()

	go client.writer()
	client.reader()
}

// Publish fans the event out to every connection registered for the space.
// Each send is attempted independently; a failed one removes only that
// connection. The caller's mutation has already committed, so failures here
// are never surfaced to it.
func (s *realtimeService) Publish(ctx context.Context, spaceID string, event dto.RealtimeEvent) {
	_, span := s.tracer.Start(ctx, "realtime.publish", trace.WithAttributes(
		attribute.String("realtime.space_id", spaceID),
		attribute.String("realtime.event_type", event.Type),
	))
	defer span.End()

	s.hub.broadcast(spaceID, event)
	observability.RealtimeEvents().WithLabelValues(event.Type).Inc()

	if err := s.relay(ctx, spaceID, event); err != nil {
		s.logger.Warn().Err(err).Str("space_id", spaceID).Msg("failed to relay realtime event")
	}
}

func (s *realtimeService) ConnectionCount(spaceID string) int {
	return s.hub.count(spaceID)
}

func (s *realtimeService) relay(ctx context.Context, spaceID string, event dto.RealtimeEvent) error {
	if (s.redis == nil || s.redisStream == "") && (s.nats == nil || s.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(relayEvent{
		Source:  s.nodeID,
		SpaceID: spaceID,
		Event:   event,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *realtimeService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("realtime redis subscription closed")
			return
		}
		s.handleRelay([]byte(msg.Payload))
	}
}

func (s *realtimeService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "kanbot-realtime", func(msg *nats.Msg) {
		s.handleRelay(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats realtime subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain realtime nats subscription")
		}
	}()
}

func (s *realtimeService) handleRelay(data []byte) {
	var event relayEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid realtime relay payload")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	observability.RealtimeEvents().WithLabelValues(event.Event.Type).Inc()
	s.hub.broadcast(event.SpaceID, event.Event)
}

func (h *realtimeHub) register(client *realtimeClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	space := client.options.SpaceID
	if _, exists := h.spaces[space]; !exists {
		h.spaces[space] = make(map[*realtimeClient]struct{})
	}
	h.spaces[space][client] = struct{}{}
	h.log.Debug().Str("space_id", space).Str("user_id", client.options.UserID).Msg("realtime client connected")
}

func (h *realtimeHub) unregister(client *realtimeClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	space := client.options.SpaceID
	if clients, ok := h.spaces[space]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.spaces, space)
		}
	}
	h.log.Debug().Str("space_id", space).Str("user_id", client.options.UserID).Msg("realtime client disconnected")
}

func (h *realtimeHub) broadcast(spaceID string, event dto.RealtimeEvent) {
	h.mu.RLock()
	var failed []*realtimeClient
	for client := range h.spaces[spaceID] {
		select {
		case client.send <- outboundFrame{event: &event}:
		default:
			failed = append(failed, client)
		}
	}
	h.mu.RUnlock()

	// Closing takes the write lock via unregister, so it happens outside
	// the read-locked sweep above.
	for _, client := range failed {
		h.log.Warn().Str("space_id", spaceID).Str("user_id", client.options.UserID).Msg("dropping realtime client after failed send")
		observability.RealtimeSendFailures().Inc()
		client.close()
	}
}

func (h *realtimeHub) count(spaceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.spaces[spaceID])
}

func (c *realtimeClient) reader() {
	defer c.close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		if strings.TrimSpace(string(data)) == livenessPing {
			select {
			case c.send <- outboundFrame{text: livenessPong}:
			case <-c.closed:
				return
			default:
			}
		}
	}
}

func (c *realtimeClient) writer() {
	defer c.close()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			var err error
			if frame.event != nil {
				err = c.conn.WriteJSON(frame.event)
			} else {
				err = c.conn.WriteMessage(textMessage, []byte(frame.text))
			}
			if err != nil {
				c.service.logger.Debug().Err(err).Msg("realtime write loop terminated")
				observability.RealtimeSendFailures().Inc()
				return
			}
		case <-time.After(heartbeatInterval):
			// Unsolicited liveness probe so idle intermediaries keep
			// the connection open.
			if err := c.conn.WriteMessage(textMessage, []byte(livenessPong)); err != nil {
				c.service.logger.Debug().Err(err).Msg("realtime heartbeat failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *realtimeClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.service.hub.unregister(c)
		observability.RealtimeConnectionsActive().Dec()
		_ = c.conn.Close()
	})
}
