package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kanbot-project/kanbot-sync-api/internal/dto"
	"github.com/kanbot-project/kanbot-sync-api/internal/models"
	"github.com/kanbot-project/kanbot-sync-api/internal/repository"
)

func TestNextOccurrenceTable(t *testing.T) {
	anchor := mustParseTime(t, "2026-03-10T09:30:00Z")

	cases := []struct {
		interval models.RecurrenceInterval
		want     string
	}{
		{models.IntervalDaily, "2026-03-11T09:30:00Z"},
		{models.IntervalWeekly, "2026-03-17T09:30:00Z"},
		{models.IntervalBiweekly, "2026-03-24T09:30:00Z"},
		{models.IntervalMonthly, "2026-04-10T09:30:00Z"},
		{models.IntervalQuarterly, "2026-06-10T09:30:00Z"},
		{models.IntervalYearly, "2027-03-10T09:30:00Z"},
	}

	for _, tc := range cases {
		got := NextOccurrence(tc.interval, anchor)
		require.Equal(t, mustParseTime(t, tc.want), got, "interval %s", tc.interval)
	}
}

func TestNextOccurrenceMonthlyClampsEndOfMonth(t *testing.T) {
	got := NextOccurrence(models.IntervalMonthly, mustParseTime(t, "2026-01-31T09:00:00Z"))
	require.Equal(t, mustParseTime(t, "2026-02-28T09:00:00Z"), got)
}

func TestNextOccurrenceQuarterlyRollsOverYear(t *testing.T) {
	got := NextOccurrence(models.IntervalQuarterly, mustParseTime(t, "2026-11-30T12:00:00Z"))
	require.Equal(t, mustParseTime(t, "2027-02-28T12:00:00Z"), got)
}

func TestNextOccurrenceAlwaysAdvances(t *testing.T) {
	intervals := []models.RecurrenceInterval{
		models.IntervalDaily, models.IntervalWeekly, models.IntervalBiweekly,
		models.IntervalMonthly, models.IntervalQuarterly, models.IntervalYearly,
	}

	for _, interval := range intervals {
		at := mustParseTime(t, "2026-01-31T23:59:59Z")
		for i := 0; i < 48; i++ {
			next := NextOccurrence(interval, at)
			require.True(t, next.After(at), "interval %s stalled at %s", interval, at)
			at = next
		}
	}
}

type fanoutRecord struct {
	spaceID  string
	eventTyp string
}

type realtimeStub struct {
	published []fanoutRecord
}

func (r *realtimeStub) ServeConnection(conn RealtimeConn, opts RealtimeConnectionOptions) {}
func (r *realtimeStub) Publish(ctx context.Context, spaceID string, event dto.RealtimeEvent) {
	r.published = append(r.published, fanoutRecord{spaceID: spaceID, eventTyp: event.Type})
}
func (r *realtimeStub) ConnectionCount(spaceID string) int { return 0 }
func (r *realtimeStub) Start(ctx context.Context)          {}

func setupScheduler(t *testing.T) (*schedulerService, *gorm.DB, models.Space, *realtimeStub, string) {
	t.Helper()

	db := setupTestDB(t)
	userID := uuid.NewString()
	space, _, _ := seedSpace(t, db, userID)

	validate := testValidator()
	realtime := &realtimeStub{}
	notificationRepo := repository.NewNotificationRepository(db)
	spaceRepo := repository.NewSpaceRepository(db)
	cardRepo := repository.NewCardRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)

	notifier := NewNotificationService(notificationRepo, spaceRepo, cardRepo, realtime, validate, testLogger())
	webhooks := NewWebhookService(webhookRepo, spaceRepo, nil, validate, testLogger())

	svc := NewSchedulerService(
		repository.NewScheduledCardRepository(db),
		cardRepo, spaceRepo, realtime, notifier, webhooks,
		validate, testLogger(),
	).(*schedulerService)

	return svc, db, space, realtime, userID
}

func TestSweepMaterializesDueTemplates(t *testing.T) {
	svc, db, space, realtime, userID := setupScheduler(t)
	actor := NewUserActor(userID, "owner")

	now := mustParseTime(t, "2026-02-01T08:00:00Z")
	svc.clock = func() time.Time { return now }

	start := mustParseTime(t, "2026-01-31T09:00:00Z")
	template := models.ScheduledCard{
		SpaceID:    space.ID,
		ColumnName: "Todo",
		Name:       "Weekly report",
		Interval:   models.IntervalMonthly,
		StartDate:  start,
		NextRun:    start,
		Tasks:      []string{"collect numbers", "write summary"},
		Active:     true,
		CreatedBy:  userID,
	}
	require.NoError(t, db.Create(&template).Error)

	result, err := svc.Sweep(context.Background(), actor, space.ID)
	require.NoError(t, err)
	require.Equal(t, 1, result.CardsCreated)
	require.Equal(t, "ok", result.Status)

	var card models.Card
	require.NoError(t, db.Where("name = ?", "Weekly report").First(&card).Error)
	require.NotNil(t, card.StartDate)
	require.NotNil(t, card.EndDate)
	require.Equal(t, card.StartDate.Add(time.Hour), *card.EndDate)

	var tasks []models.CardTask
	require.NoError(t, db.Where("card_id = ?", card.ID).Order("position ASC").Find(&tasks).Error)
	require.Len(t, tasks, 2)

	var history models.CardHistory
	require.NoError(t, db.Where("card_id = ?", card.ID).First(&history).Error)
	require.Equal(t, "created", history.Action)
	require.Equal(t, models.ActorTypeUser, history.ActorType)

	var updated models.ScheduledCard
	require.NoError(t, db.Where("id = ?", template.ID).First(&updated).Error)
	require.NotNil(t, updated.LastRun)
	require.Equal(t, now, updated.LastRun.UTC())
	// Reschedule anchors at sweep time, clamped to the 28th.
	require.Equal(t, mustParseTime(t, "2026-03-01T08:00:00Z"), updated.NextRun.UTC())

	require.NotEmpty(t, realtime.published)
	require.Equal(t, dto.EventCardCreated, realtime.published[0].eventTyp)
}

func TestSweepIsIdempotentAcrossRuns(t *testing.T) {
	svc, db, space, _, userID := setupScheduler(t)
	actor := NewUserActor(userID, "owner")

	now := mustParseTime(t, "2026-02-01T08:00:00Z")
	svc.clock = func() time.Time { return now }

	start := mustParseTime(t, "2026-01-30T09:00:00Z")
	template := models.ScheduledCard{
		SpaceID:    space.ID,
		ColumnName: "Todo",
		Name:       "Standup",
		Interval:   models.IntervalDaily,
		StartDate:  start,
		NextRun:    start,
		Active:     true,
		CreatedBy:  userID,
	}
	require.NoError(t, db.Create(&template).Error)

	first, err := svc.Sweep(context.Background(), actor, space.ID)
	require.NoError(t, err)
	require.Equal(t, 1, first.CardsCreated)

	// The schedule moved past now, so a second sweep finds nothing due.
	second, err := svc.Sweep(context.Background(), actor, space.ID)
	require.NoError(t, err)
	require.Equal(t, 0, second.CardsCreated)

	var count int64
	require.NoError(t, db.Model(&models.Card{}).Where("name = ?", "Standup").Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestSweepDeactivatesExpiredTemplateWithoutCard(t *testing.T) {
	svc, db, space, _, userID := setupScheduler(t)
	actor := NewUserActor(userID, "owner")

	now := mustParseTime(t, "2026-02-01T08:00:00Z")
	svc.clock = func() time.Time { return now }

	start := mustParseTime(t, "2026-01-01T09:00:00Z")
	end := mustParseTime(t, "2026-01-15T09:00:00Z")
	template := models.ScheduledCard{
		SpaceID:    space.ID,
		ColumnName: "Todo",
		Name:       "Retired ritual",
		Interval:   models.IntervalWeekly,
		StartDate:  start,
		EndDate:    &end,
		NextRun:    start,
		Active:     true,
		CreatedBy:  userID,
	}
	require.NoError(t, db.Create(&template).Error)

	result, err := svc.Sweep(context.Background(), actor, space.ID)
	require.NoError(t, err)
	require.Equal(t, 0, result.CardsCreated)

	var updated models.ScheduledCard
	require.NoError(t, db.Where("id = ?", template.ID).First(&updated).Error)
	require.False(t, updated.Active)

	var count int64
	require.NoError(t, db.Model(&models.Card{}).Where("name = ?", "Retired ritual").Count(&count).Error)
	require.Zero(t, count)
}

func TestSweepSkipsTemplateWhenSpaceHasNoBoard(t *testing.T) {
	svc, db, _, _, _ := setupScheduler(t)

	userID := uuid.NewString()
	bare := models.Space{Name: "boardless"}
	require.NoError(t, db.Create(&bare).Error)
	require.NoError(t, db.Create(&models.User{ID: userID, Email: userID + "@example.com", Username: userID}).Error)
	require.NoError(t, db.Create(&models.SpaceMember{SpaceID: bare.ID, UserID: userID}).Error)

	actor := NewUserActor(userID, "owner")
	now := mustParseTime(t, "2026-02-01T08:00:00Z")
	svc.clock = func() time.Time { return now }

	start := mustParseTime(t, "2026-01-30T09:00:00Z")
	for _, name := range []string{"orphan a", "orphan b"} {
		template := models.ScheduledCard{
			SpaceID:    bare.ID,
			ColumnName: "Todo",
			Name:       name,
			Interval:   models.IntervalDaily,
			StartDate:  start,
			NextRun:    start,
			Active:     true,
			CreatedBy:  userID,
		}
		require.NoError(t, db.Create(&template).Error)
	}

	result, err := svc.Sweep(context.Background(), actor, bare.ID)
	require.NoError(t, err)
	require.Equal(t, 0, result.CardsCreated)
	require.Equal(t, "ok", result.Status)
}

func TestTriggerFailsHardWithoutBoard(t *testing.T) {
	svc, db, _, _, _ := setupScheduler(t)

	userID := uuid.NewString()
	bare := models.Space{Name: "boardless"}
	require.NoError(t, db.Create(&bare).Error)
	require.NoError(t, db.Create(&models.User{ID: userID, Email: userID + "@example.com", Username: userID}).Error)
	require.NoError(t, db.Create(&models.SpaceMember{SpaceID: bare.ID, UserID: userID}).Error)

	start := mustParseTime(t, "2026-01-30T09:00:00Z")
	template := models.ScheduledCard{
		SpaceID:    bare.ID,
		ColumnName: "Todo",
		Name:       "orphan",
		Interval:   models.IntervalDaily,
		StartDate:  start,
		NextRun:    start,
		Active:     true,
		CreatedBy:  userID,
	}
	require.NoError(t, db.Create(&template).Error)

	_, err := svc.Trigger(context.Background(), NewUserActor(userID, "owner"), template.ID)
	require.ErrorIs(t, err, repository.ErrNoBoardInSpace)
}

func TestTriggerCreatesCardImmediately(t *testing.T) {
	svc, db, space, _, userID := setupScheduler(t)
	actor := NewUserActor(userID, "owner")

	start := mustParseTime(t, "2026-06-01T09:00:00Z")
	template := models.ScheduledCard{
		SpaceID:    space.ID,
		ColumnName: "Todo",
		Name:       "Ad hoc",
		Interval:   models.IntervalWeekly,
		StartDate:  start,
		NextRun:    start,
		Active:     true,
		CreatedBy:  userID,
	}
	require.NoError(t, db.Create(&template).Error)

	result, err := svc.Trigger(context.Background(), actor, template.ID)
	require.NoError(t, err)
	require.Equal(t, "created", result.Status)
	require.NotEmpty(t, result.CardID)

	var card models.Card
	require.NoError(t, db.Where("id = ?", result.CardID).First(&card).Error)
	require.Equal(t, "Ad hoc", card.Name)
}

func TestSchedulerMembershipRequired(t *testing.T) {
	svc, _, space, _, _ := setupScheduler(t)

	outsider := NewUserActor(uuid.NewString(), "outsider")
	_, err := svc.Sweep(context.Background(), outsider, space.ID)
	require.ErrorIs(t, err, ErrSpaceForbidden)
}
