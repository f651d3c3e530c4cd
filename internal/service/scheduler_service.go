package service

import (
	"context"
	"errors"
	"fmt"
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

// ErrScheduledCardNotFound indicates the template does not exist.
var ErrScheduledCardNotFound = errors.New("scheduled card not found")

// Months never schedule past the 28th so every month of every year can host
// the occurrence.
const monthlyDayClamp = 28

// SchedulerService manages recurring card templates and materializes their
// occurrences. The sweep is safe to run concurrently from several nodes: each
// due occurrence is claimed with a conditional schedule update and only the
// claimant creates the card.
type SchedulerService interface {
	Create(ctx context.Context, actor ActorContext, payload dto.ScheduledCardCreateRequest) (dto.ScheduledCardResponse, error)
	Update(ctx context.Context, actor ActorContext, id string, payload dto.ScheduledCardUpdateRequest) (dto.ScheduledCardResponse, error)
	Delete(ctx context.Context, actor ActorContext, id string) error
	Get(ctx context.Context, actor ActorContext, id string) (dto.ScheduledCardResponse, error)
	ListBySpace(ctx context.Context, actor ActorContext, spaceID string, activeOnly bool) ([]dto.ScheduledCardResponse, error)
	Trigger(ctx context.Context, actor ActorContext, id string) (dto.TriggerResponse, error)
	Sweep(ctx context.Context, actor ActorContext, spaceID string) (dto.SweepResponse, error)
}

type schedulerService struct {
	repo      repository.ScheduledCardRepository
	cards     repository.CardRepository
	spaces    repository.SpaceRepository
	realtime  RealtimeService
	notifier  NotificationService
	webhooks  WebhookService
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	clock     func() time.Time
}

// NewSchedulerService constructs the recurrence scheduler.
func NewSchedulerService(
	repo repository.ScheduledCardRepository,
	cards repository.CardRepository,
	spaces repository.SpaceRepository,
	realtime RealtimeService,
	notifier NotificationService,
	webhooks WebhookService,
	validate *validator.Validate,
	logger zerolog.Logger,
) SchedulerService {
	return &schedulerService{
		repo:      repo,
		cards:     cards,
		spaces:    spaces,
		realtime:  realtime,
		notifier:  notifier,
		webhooks:  webhooks,
		validator: validate,
		logger:    logger.With().Str("component", "scheduler_service").Logger(),
		tracer:    otel.Tracer("github.com/kanbot-project/kanbot-sync-api/internal/service/scheduler"),
		clock:     time.Now,
	}
}

// NextOccurrence advances the schedule one interval from the anchor, keeping
// the anchor's time of day. Monthly and quarterly steps clamp the day to the
// 28th so no month is ever skipped.
func NextOccurrence(interval models.RecurrenceInterval, from time.Time) time.Time {
	switch interval {
	case models.IntervalDaily:
		return from.AddDate(0, 0, 1)
	case models.IntervalWeekly:
		return from.AddDate(0, 0, 7)
	case models.IntervalBiweekly:
		return from.AddDate(0, 0, 14)
	case models.IntervalMonthly:
		return addMonthsClamped(from, 1)
	case models.IntervalQuarterly:
		return addMonthsClamped(from, 3)
	case models.IntervalYearly:
		return from.AddDate(1, 0, 0)
	default:
		return from
	}
}

func addMonthsClamped(from time.Time, months int) time.Time {
	year, month, day := from.Date()
	if day > monthlyDayClamp {
		day = monthlyDayClamp
	}

	total := int(month) - 1 + months
	year += total / 12
	month = time.Month(total%12 + 1)

	return time.Date(year, month, day, from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
}

func (s *schedulerService) Create(ctx context.Context, actor ActorContext, payload dto.ScheduledCardCreateRequest) (dto.ScheduledCardResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ScheduledCardResponse{}, err
	}

	if err := s.requireMembership(ctx, payload.SpaceID, actor.UserID); err != nil {
		return dto.ScheduledCardResponse{}, err
	}

	template := models.ScheduledCard{
		SpaceID:     payload.SpaceID,
		ColumnName:  payload.ColumnName,
		Name:        payload.Name,
		Description: payload.Description,
		Interval:    models.RecurrenceInterval(payload.Interval),
		StartDate:   payload.StartDate,
		EndDate:     payload.EndDate,
		NextRun:     payload.StartDate,
		TagIDs:      datatypes.JSONSlice[string](payload.TagIDs),
		AssigneeIDs: datatypes.JSONSlice[string](payload.AssigneeIDs),
		Tasks:       datatypes.JSONSlice[string](payload.Tasks),
		Location:    payload.Location,
		Active:      true,
		CreatedBy:   actor.UserID,
	}
	if payload.ColumnID != "" {
		template.ColumnID = &payload.ColumnID
	}

	if err := s.repo.Create(ctx, &template); err != nil {
		return dto.ScheduledCardResponse{}, err
	}

	return dto.NewScheduledCardResponse(template), nil
}

func (s *schedulerService) Update(ctx context.Context, actor ActorContext, id string, payload dto.ScheduledCardUpdateRequest) (dto.ScheduledCardResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ScheduledCardResponse{}, err
	}

	template, err := s.findTemplate(ctx, id)
	if err != nil {
		return dto.ScheduledCardResponse{}, err
	}

	if err := s.requireMembership(ctx, template.SpaceID, actor.UserID); err != nil {
		return dto.ScheduledCardResponse{}, err
	}

	if payload.ColumnID != nil {
		template.ColumnID = payload.ColumnID
	}
	if payload.ColumnName != nil {
		template.ColumnName = *payload.ColumnName
	}
	if payload.Name != nil {
		template.Name = *payload.Name
	}
	if payload.Description != nil {
		template.Description = *payload.Description
	}
	if payload.Interval != nil {
		template.Interval = models.RecurrenceInterval(*payload.Interval)
	}
	if payload.StartDate != nil {
		template.StartDate = *payload.StartDate
		// Raising the anchor past the pending occurrence pushes it out,
		// lowering it never pulls already-scheduled work forward.
		if template.NextRun.Before(template.StartDate) {
			template.NextRun = template.StartDate
		}
	}
	if payload.EndDate != nil {
		template.EndDate = payload.EndDate
	}
	if payload.TagIDs != nil {
		template.TagIDs = datatypes.JSONSlice[string](*payload.TagIDs)
	}
	if payload.AssigneeIDs != nil {
		template.AssigneeIDs = datatypes.JSONSlice[string](*payload.AssigneeIDs)
	}
	if payload.Tasks != nil {
		template.Tasks = datatypes.JSONSlice[string](*payload.Tasks)
	}
	if payload.Location != nil {
		template.Location = *payload.Location
	}
	if payload.Active != nil {
		template.Active = *payload.Active
	}

	if err := s.repo.Save(ctx, &template); err != nil {
		return dto.ScheduledCardResponse{}, err
	}

	return dto.NewScheduledCardResponse(template), nil
}

func (s *schedulerService) Delete(ctx context.Context, actor ActorContext, id string) error {
	template, err := s.findTemplate(ctx, id)
	if err != nil {
		return err
	}

	if err := s.requireMembership(ctx, template.SpaceID, actor.UserID); err != nil {
		return err
	}

	return s.repo.Delete(ctx, id)
}

func (s *schedulerService) Get(ctx context.Context, actor ActorContext, id string) (dto.ScheduledCardResponse, error) {
	template, err := s.findTemplate(ctx, id)
	if err != nil {
		return dto.ScheduledCardResponse{}, err
	}

	if err := s.requireMembership(ctx, template.SpaceID, actor.UserID); err != nil {
		return dto.ScheduledCardResponse{}, err
	}

	return dto.NewScheduledCardResponse(template), nil
}

func (s *schedulerService) ListBySpace(ctx context.Context, actor ActorContext, spaceID string, activeOnly bool) ([]dto.ScheduledCardResponse, error) {
	if err := s.requireMembership(ctx, spaceID, actor.UserID); err != nil {
		return nil, err
	}

	templates, err := s.repo.ListBySpace(ctx, spaceID, activeOnly)
	if err != nil {
		return nil, err
	}

	return dto.NewScheduledCardResponseSlice(templates), nil
}

// Trigger materializes one occurrence immediately without touching the
// schedule. Unlike the sweep, a space without a board is a hard error here
// because the caller asked for this specific template.
func (s *schedulerService) Trigger(ctx context.Context, actor ActorContext, id string) (dto.TriggerResponse, error) {
	template, err := s.findTemplate(ctx, id)
	if err != nil {
		return dto.TriggerResponse{}, err
	}

	if err := s.requireMembership(ctx, template.SpaceID, actor.UserID); err != nil {
		return dto.TriggerResponse{}, err
	}

	card, err := s.materialize(ctx, &template, actor)
	if err != nil {
		return dto.TriggerResponse{}, err
	}

	return dto.TriggerResponse{Status: "created", CardID: card.ID}, nil
}

// Sweep materializes every due occurrence in the space. Templates whose end
// date has passed are deactivated without a card. A template whose space has
// lost its last board is skipped, not fatal, so one broken template can never
// starve the rest of the batch.
func (s *schedulerService) Sweep(ctx context.Context, actor ActorContext, spaceID string) (dto.SweepResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "scheduler.sweep", trace.WithAttributes(
		attribute.String("scheduler.space_id", spaceID),
	))
	defer span.End()

	if err := s.requireMembership(spanCtx, spaceID, actor.UserID); err != nil {
		return dto.SweepResponse{}, err
	}

	now := s.clock().UTC()
	due, err := s.repo.ListDue(spanCtx, spaceID, now)
	if err != nil {
		return dto.SweepResponse{}, err
	}

	created := 0
	for _, template := range due {
		if template.EndDate != nil && template.EndDate.Before(now) {
			if err := s.repo.Deactivate(spanCtx, template.ID); err != nil {
				s.logger.Error().Err(err).Str("scheduled_card_id", template.ID).Msg("failed to deactivate expired template")
			}
			continue
		}

		// The reschedule anchors at the sweep time, not the missed
		// occurrence, so a long-idle template does not burst-create a
		// backlog of cards.
		nextRun := NextOccurrence(template.Interval, now)
		claimed, err := s.repo.ClaimRun(spanCtx, template.ID, template.NextRun, now, nextRun)
		if err != nil {
			return dto.SweepResponse{}, err
		}
		if !claimed {
			continue
		}
		template.LastRun = &now
		template.NextRun = nextRun

		if _, err := s.materialize(spanCtx, &template, actor); err != nil {
			if errors.Is(err, repository.ErrNoBoardInSpace) {
				s.logger.Warn().Str("scheduled_card_id", template.ID).Str("space_id", spaceID).Msg("skipping template, space has no board")
				continue
			}
			return dto.SweepResponse{Status: "partial", CardsCreated: created}, err
		}
		created++
	}

	return dto.SweepResponse{Status: "ok", CardsCreated: created}, nil
}

// materialize creates the card, its audit entry and runs the post-commit
// pipeline: realtime broadcast, agent notification fanout, webhook dispatch.
func (s *schedulerService) materialize(ctx context.Context, template *models.ScheduledCard, actor ActorContext) (models.Card, error) {
	audit := models.CardHistory{
		Action: "created",
		Changes: datatypes.JSONMap{
			"source":            "scheduled",
			"scheduled_card_id": template.ID,
		},
		ActorType: actor.Type(),
		ActorID:   actor.UserID,
		ActorName: actor.DisplayName(),
	}

	card, err := s.cards.CreateFromTemplate(ctx, template, &audit)
	if err != nil {
		return models.Card{}, err
	}

	observability.ScheduledCardsCreated().Inc()

	fields := map[string]interface{}{
		"card_id":           card.ID,
		"column_id":         card.ColumnID,
		"name":              card.Name,
		"description":       card.Description,
		"start_date":        card.StartDate,
		"end_date":          card.EndDate,
		"position":          card.Position,
		"scheduled_card_id": template.ID,
		"actor_name":        actor.DisplayName(),
	}

	s.realtime.Publish(ctx, template.SpaceID, dto.NewRealtimeEvent(dto.EventCardCreated, fields))

	if _, err := s.notifier.Fanout(ctx, template.SpaceID, "agent_card_created",
		fmt.Sprintf("%s created card %q", actor.DisplayName(), card.Name),
		"", map[string]interface{}{"card_id": card.ID}, actor); err != nil {
		s.logger.Error().Err(err).Str("card_id", card.ID).Msg("notification fanout failed for scheduled card")
	}

	s.webhooks.Dispatch(ctx, template.SpaceID, dto.EventCardCreated, fields)

	return card, nil
}

func (s *schedulerService) findTemplate(ctx context.Context, id string) (models.ScheduledCard, error) {
	template, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ScheduledCard{}, ErrScheduledCardNotFound
		}
		return models.ScheduledCard{}, err
	}
	return template, nil
}

func (s *schedulerService) requireMembership(ctx context.Context, spaceID, userID string) error {
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
