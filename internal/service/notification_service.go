package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kanbot-project/kanbot-sync-api/internal/dto"
	"github.com/kanbot-project/kanbot-sync-api/internal/models"
	"github.com/kanbot-project/kanbot-sync-api/internal/observability"
	"github.com/kanbot-project/kanbot-sync-api/internal/repository"
)

// ErrNotificationNotFound indicates the record does not exist or belongs to
// another recipient.
var ErrNotificationNotFound = errors.New("notification not found")

// ErrAgentOnly indicates an operation reserved for automated actors.
var ErrAgentOnly = errors.New("only automated actors may perform this operation")

// ErrCardNotFound indicates the referenced card does not exist.
var ErrCardNotFound = errors.New("card not found")

// NotificationService owns the per-recipient inbox and the agent fanout.
// Fanout only fires for automated actors; human mutations are already visible
// to their author and broadcasting them back would be noise.
type NotificationService interface {
	Fanout(ctx context.Context, spaceID, notifType, title, message string, data map[string]interface{}, actor ActorContext) (int, error)
	List(ctx context.Context, userID string, limit, offset int) ([]dto.NotificationResponse, error)
	MarkRead(ctx context.Context, userID, id string) (dto.NotificationResponse, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, userID, id string) error
	Delegate(ctx context.Context, actor ActorContext, payload dto.DelegationRequest) (dto.DelegationResponse, error)
}

type notificationService struct {
	repo      repository.NotificationRepository
	spaces    repository.SpaceRepository
	cards     repository.CardRepository
	realtime  RealtimeService
	sanitizer *bluemonday.Policy
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewNotificationService constructs the fanout service.
func NewNotificationService(repo repository.NotificationRepository, spaces repository.SpaceRepository, cards repository.CardRepository, realtime RealtimeService, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	return &notificationService{
		repo:      repo,
		spaces:    spaces,
		cards:     cards,
		realtime:  realtime,
		sanitizer: bluemonday.StrictPolicy(),
		validator: validate,
		logger:    logger.With().Str("component", "notification_service").Logger(),
	}
}

// Fanout writes one inbox record per space member except the acting agent's
// owner, then announces each record on the live channel. Human actors are
// skipped entirely. The returned count is the number of records created.
func (s *notificationService) Fanout(ctx context.Context, spaceID, notifType, title, message string, data map[string]interface{}, actor ActorContext) (int, error) {
	if !actor.IsAgent {
		return 0, nil
	}

	memberIDs, err := s.spaces.MemberIDs(ctx, spaceID)
	if err != nil {
		return 0, err
	}

	title = s.sanitizer.Sanitize(title)
	message = s.sanitizer.Sanitize(message)

	if data == nil {
		data = map[string]interface{}{}
	}
	data["space_id"] = spaceID
	data["actor_id"] = actor.UserID
	data["actor_name"] = actor.DisplayName()

	notifications := make([]*models.Notification, 0, len(memberIDs))
	for _, memberID := range memberIDs {
		if memberID == actor.UserID {
			continue
		}
		notifications = append(notifications, &models.Notification{
			UserID:  memberID,
			Type:    notifType,
			Title:   title,
			Message: message,
			Data:    datatypes.JSONMap(data),
		})
	}

	if len(notifications) == 0 {
		return 0, nil
	}

	if err := s.repo.CreateBatch(ctx, notifications); err != nil {
		s.logger.Error().Err(err).Str("space_id", spaceID).Msg("failed to create notification batch")
		return 0, err
	}

	observability.NotificationsFanout().WithLabelValues(notifType).Add(float64(len(notifications)))

	for _, notification := range notifications {
		s.realtime.Publish(ctx, spaceID, dto.NewRealtimeEvent(dto.EventNotificationCreated, map[string]interface{}{
			"user_id":      notification.UserID,
			"notification": dto.NewNotificationResponse(*notification),
		}))
	}

	return len(notifications), nil
}

func (s *notificationService) List(ctx context.Context, userID string, limit, offset int) ([]dto.NotificationResponse, error) {
	notifications, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) MarkRead(ctx context.Context, userID, id string) (dto.NotificationResponse, error) {
	notification, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.NotificationResponse{}, ErrNotificationNotFound
		}
		return dto.NotificationResponse{}, err
	}
	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *notificationService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotificationNotFound
		}
		return err
	}
	return nil
}

// Delegate hands a card to another member on behalf of an agent. The target
// gets a single inbox record plus a live announcement; card ownership itself
// does not change.
func (s *notificationService) Delegate(ctx context.Context, actor ActorContext, payload dto.DelegationRequest) (dto.DelegationResponse, error) {
	if !actor.IsAgent {
		return dto.DelegationResponse{}, ErrAgentOnly
	}

	if err := s.validator.Struct(payload); err != nil {
		return dto.DelegationResponse{}, err
	}

	card, err := s.cards.FindByID(ctx, payload.CardID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.DelegationResponse{}, ErrCardNotFound
		}
		return dto.DelegationResponse{}, err
	}

	spaceID := payload.SpaceID
	if spaceID == "" {
		spaceID, err = s.cards.SpaceIDForCard(ctx, card.ID)
		if err != nil {
			return dto.DelegationResponse{}, err
		}
	}

	member, err := s.spaces.IsMember(ctx, spaceID, payload.TargetUserID)
	if err != nil {
		return dto.DelegationResponse{}, err
	}
	if !member {
		return dto.DelegationResponse{}, ErrSpaceForbidden
	}

	data := map[string]interface{}{
		"card_id":    card.ID,
		"card_name":  card.Name,
		"space_id":   spaceID,
		"actor_id":   actor.UserID,
		"actor_name": actor.DisplayName(),
	}
	for key, value := range payload.Metadata {
		if _, reserved := data[key]; !reserved {
			data[key] = value
		}
	}

	notification := models.Notification{
		UserID:  payload.TargetUserID,
		Type:    "agent_delegation_request",
		Title:   s.sanitizer.Sanitize(fmt.Sprintf("%s delegated %q to you", actor.DisplayName(), card.Name)),
		Message: s.sanitizer.Sanitize(payload.Message),
		Data:    datatypes.JSONMap(data),
	}
	if err := s.repo.Create(ctx, &notification); err != nil {
		return dto.DelegationResponse{}, err
	}

	observability.NotificationsFanout().WithLabelValues("agent_delegation_request").Inc()

	s.realtime.Publish(ctx, spaceID, dto.NewRealtimeEvent(dto.EventNotificationCreated, map[string]interface{}{
		"user_id":      notification.UserID,
		"notification": dto.NewNotificationResponse(notification),
	}))

	return dto.DelegationResponse{
		Status:         "delegated",
		CardID:         card.ID,
		NotificationID: notification.ID,
	}, nil
}
