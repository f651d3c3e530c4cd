package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kanbot-project/kanbot-sync-api/internal/dto"
	"github.com/kanbot-project/kanbot-sync-api/internal/models"
	"github.com/kanbot-project/kanbot-sync-api/internal/observability"
	"github.com/kanbot-project/kanbot-sync-api/internal/repository"
)

const (
	webhookTimeout      = 10 * time.Second
	webhookBodyMaxBytes = 1000
	webhookSecretHeader = "X-Kanbot-Secret"
)

// ErrWebhookNotFound indicates the subscription does not exist.
var ErrWebhookNotFound = errors.New("webhook not found")

// WebhookService manages subscriptions and dispatches outbound deliveries.
// Dispatch never fails the originating mutation: every attempt, successful
// or not, is visible only through its delivery log entry.
type WebhookService interface {
	Dispatch(ctx context.Context, spaceID, event string, payload map[string]interface{})
	Create(ctx context.Context, callerID string, payload dto.WebhookCreateRequest) (dto.WebhookResponse, error)
	Update(ctx context.Context, callerID, id string, payload dto.WebhookUpdateRequest) (dto.WebhookResponse, error)
	Delete(ctx context.Context, callerID, id string) error
	ListBySpace(ctx context.Context, callerID, spaceID string) ([]dto.WebhookResponse, error)
	Logs(ctx context.Context, callerID, id string, limit int) ([]dto.WebhookLogResponse, error)
}

type webhookService struct {
	repo      repository.WebhookRepository
	spaces    repository.SpaceRepository
	client    *http.Client
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewWebhookService constructs the dispatcher. A nil client gets the default
// fixed-timeout client.
func NewWebhookService(repo repository.WebhookRepository, spaces repository.SpaceRepository, client *http.Client, validate *validator.Validate, logger zerolog.Logger) WebhookService {
	if client == nil {
		client = &http.Client{Timeout: webhookTimeout}
	}
	return &webhookService{
		repo:      repo,
		spaces:    spaces,
		client:    client,
		validator: validate,
		logger:    logger.With().Str("component", "webhook_service").Logger(),
		tracer:    otel.Tracer("github.com/kanbot-project/kanbot-sync-api/internal/service/webhook"),
	}
}

// Dispatch delivers the event to every matching active subscription in the
// space. Deliveries run concurrently so a slow endpoint never delays the
// others, and each attempt is logged independently. There is no retry.
func (s *webhookService) Dispatch(ctx context.Context, spaceID, event string, payload map[string]interface{}) {
	spanCtx, span := s.tracer.Start(ctx, "webhooks.dispatch", trace.WithAttributes(
		attribute.String("webhook.space_id", spaceID),
		attribute.String("webhook.event", event),
	))
	defer span.End()

	webhooks, err := s.repo.ListActiveBySpace(spanCtx, spaceID)
	if err != nil {
		s.logger.Error().Err(err).Str("space_id", spaceID).Msg("failed to load webhook subscriptions")
		return
	}

	var wg sync.WaitGroup
	for _, webhook := range webhooks {
		if !matchesEvent(webhook.Events, event) {
			continue
		}

		wg.Add(1)
		go func(webhook models.Webhook) {
			defer wg.Done()
			s.deliver(spanCtx, webhook, spaceID, event, payload)
		}(webhook)
	}
	wg.Wait()
}

func (s *webhookService) deliver(ctx context.Context, webhook models.Webhook, spaceID, event string, payload map[string]interface{}) {
	log := models.WebhookLog{
		WebhookID: webhook.ID,
		Event:     event,
		Payload:   datatypes.JSONMap(payload),
	}

	body, err := json.Marshal(map[string]interface{}{
		"event":    event,
		"space_id": spaceID,
		"payload":  payload,
	})
	if err != nil {
		log.ResponseBody = truncate(err.Error())
		s.recordDelivery(ctx, &log)
		return
	}

	deliverCtx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	request, err := http.NewRequestWithContext(deliverCtx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		log.ResponseBody = truncate(err.Error())
		s.recordDelivery(ctx, &log)
		return
	}

	request.Header.Set("Content-Type", "application/json")
	if webhook.Secret != "" {
		request.Header.Set(webhookSecretHeader, webhook.Secret)
	}

	response, err := s.client.Do(request)
	if err != nil {
		log.ResponseBody = truncate(err.Error())
		s.logger.Warn().Err(err).Str("webhook_id", webhook.ID).Msg("webhook delivery failed")
		s.recordDelivery(ctx, &log)
		return
	}
	defer func() { _ = response.Body.Close() }()

	responseBody, _ := io.ReadAll(io.LimitReader(response.Body, webhookBodyMaxBytes))
	status := response.StatusCode
	log.ResponseStatus = &status
	log.ResponseBody = string(responseBody)
	log.Success = status >= 200 && status < 300

	s.recordDelivery(ctx, &log)
}

func (s *webhookService) recordDelivery(ctx context.Context, log *models.WebhookLog) {
	outcome := "failure"
	if log.Success {
		outcome = "success"
	}
	observability.WebhookDeliveries().WithLabelValues(outcome).Inc()

	if err := s.repo.CreateLog(ctx, log); err != nil {
		s.logger.Error().Err(err).Str("webhook_id", log.WebhookID).Msg("failed to persist webhook delivery log")
	}
}

func (s *webhookService) Create(ctx context.Context, callerID string, payload dto.WebhookCreateRequest) (dto.WebhookResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.WebhookResponse{}, err
	}

	if err := s.requireMembership(ctx, payload.SpaceID, callerID); err != nil {
		return dto.WebhookResponse{}, err
	}

	webhook := models.Webhook{
		SpaceID: payload.SpaceID,
		URL:     payload.URL,
		Events:  datatypes.JSONSlice[string](payload.Events),
		Secret:  payload.Secret,
		Active:  true,
	}
	if err := s.repo.Create(ctx, &webhook); err != nil {
		return dto.WebhookResponse{}, err
	}

	return dto.NewWebhookResponse(webhook), nil
}

func (s *webhookService) Update(ctx context.Context, callerID, id string, payload dto.WebhookUpdateRequest) (dto.WebhookResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.WebhookResponse{}, err
	}

	webhook, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.WebhookResponse{}, ErrWebhookNotFound
		}
		return dto.WebhookResponse{}, err
	}

	if err := s.requireMembership(ctx, webhook.SpaceID, callerID); err != nil {
		return dto.WebhookResponse{}, err
	}

	if payload.URL != nil {
		webhook.URL = *payload.URL
	}
	if payload.Events != nil {
		webhook.Events = datatypes.JSONSlice[string](*payload.Events)
	}
	if payload.Secret != nil {
		webhook.Secret = *payload.Secret
	}
	if payload.Active != nil {
		webhook.Active = *payload.Active
	}

	if err := s.repo.Save(ctx, &webhook); err != nil {
		return dto.WebhookResponse{}, err
	}

	return dto.NewWebhookResponse(webhook), nil
}

func (s *webhookService) Delete(ctx context.Context, callerID, id string) error {
	webhook, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrWebhookNotFound
		}
		return err
	}

	if err := s.requireMembership(ctx, webhook.SpaceID, callerID); err != nil {
		return err
	}

	return s.repo.Delete(ctx, id)
}

func (s *webhookService) ListBySpace(ctx context.Context, callerID, spaceID string) ([]dto.WebhookResponse, error) {
	if err := s.requireMembership(ctx, spaceID, callerID); err != nil {
		return nil, err
	}

	webhooks, err := s.repo.ListBySpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	return dto.NewWebhookResponseSlice(webhooks), nil
}

func (s *webhookService) Logs(ctx context.Context, callerID, id string, limit int) ([]dto.WebhookLogResponse, error) {
	webhook, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWebhookNotFound
		}
		return nil, err
	}

	if err := s.requireMembership(ctx, webhook.SpaceID, callerID); err != nil {
		return nil, err
	}

	logs, err := s.repo.ListLogs(ctx, id, limit)
	if err != nil {
		return nil, err
	}

	return dto.NewWebhookLogResponseSlice(logs), nil
}

func (s *webhookService) requireMembership(ctx context.Context, spaceID, userID string) error {
	if _, err := s.spaces.FindByID(ctx, spaceID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSpaceNotFound
		}
		return err
	}

	member, err := s.spaces.IsMember(ctx, spaceID, userID)
	if err != nil {
		return err
	}
	if !member {
		return ErrSpaceForbidden
	}
	return nil
}

// matchesEvent applies the subscription filter: an empty list subscribes to
// every event.
func matchesEvent(events []string, event string) bool {
	if len(events) == 0 {
		return true
	}
	for _, candidate := range events {
		if candidate == event {
			return true
		}
	}
	return false
}

func truncate(body string) string {
	if len(body) > webhookBodyMaxBytes {
		return body[:webhookBodyMaxBytes]
	}
	return body
}
