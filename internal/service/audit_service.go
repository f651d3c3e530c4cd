package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kanbot-project/kanbot-sync-api/internal/dto"
	"github.com/kanbot-project/kanbot-sync-api/internal/models"
	"github.com/kanbot-project/kanbot-sync-api/internal/repository"
)

// ErrSpaceForbidden indicates the caller is not a member of the space.
var ErrSpaceForbidden = errors.New("not a member of this space")

// ErrSpaceNotFound indicates the space does not exist.
var ErrSpaceNotFound = errors.New("space not found")

// AuditService records and queries the append-only card change log. Record
// failures are fatal to the enclosing mutation; entries are never mutated.
type AuditService interface {
	Record(ctx context.Context, cardID, action string, changes map[string]interface{}, actor ActorContext) (dto.AuditEntryResponse, error)
	Query(ctx context.Context, callerID string, query dto.AuditQuery) ([]dto.AuditEntryResponse, error)
}

type auditService struct {
	repo      repository.AuditRepository
	spaces    repository.SpaceRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAuditService constructs the audit service.
func NewAuditService(repo repository.AuditRepository, spaces repository.SpaceRepository, validate *validator.Validate, logger zerolog.Logger) AuditService {
	return &auditService{
		repo:      repo,
		spaces:    spaces,
		validator: validate,
		logger:    logger.With().Str("component", "audit_service").Logger(),
	}
}

func (s *auditService) Record(ctx context.Context, cardID, action string, changes map[string]interface{}, actor ActorContext) (dto.AuditEntryResponse, error) {
	if strings.TrimSpace(cardID) == "" {
		return dto.AuditEntryResponse{}, fmt.Errorf("card id is required")
	}
	if strings.TrimSpace(action) == "" {
		return dto.AuditEntryResponse{}, fmt.Errorf("action is required")
	}

	entry := models.CardHistory{
		CardID:    cardID,
		Action:    strings.ToLower(strings.TrimSpace(action)),
		Changes:   datatypes.JSONMap(changes),
		ActorType: actor.Type(),
		ActorID:   actor.UserID,
		ActorName: actor.DisplayName(),
	}

	if err := s.repo.Create(ctx, &entry); err != nil {
		s.logger.Error().Err(err).Str("card_id", cardID).Msg("failed to append audit entry")
		return dto.AuditEntryResponse{}, err
	}

	return dto.NewAuditEntryResponse(entry), nil
}

func (s *auditService) Query(ctx context.Context, callerID string, query dto.AuditQuery) ([]dto.AuditEntryResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}

	if query.SpaceID != "" {
		if err := s.requireMembership(ctx, query.SpaceID, callerID); err != nil {
			return nil, err
		}
	}

	entries, err := s.repo.List(ctx, repository.AuditFilter{
		CardID:    query.CardID,
		SpaceID:   query.SpaceID,
		ActorType: query.ActorType,
		Since:     query.Since,
		Limit:     query.Limit,
	})
	if err != nil {
		return nil, err
	}

	return dto.NewAuditEntryResponseSlice(entries), nil
}

func (s *auditService) requireMembership(ctx context.Context, spaceID, userID string) error {
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
