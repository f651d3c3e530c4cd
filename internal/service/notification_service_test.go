package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kanbot-project/kanbot-sync-api/internal/dto"
	"github.com/kanbot-project/kanbot-sync-api/internal/models"
	"github.com/kanbot-project/kanbot-sync-api/internal/repository"
)

func setupNotifications(t *testing.T) (NotificationService, *realtimeStub, models.Space, []string, models.Card) {
	t.Helper()

	db := setupTestDB(t)
	members := []string{uuid.NewString(), uuid.NewString(), uuid.NewString()}
	space, _, column := seedSpace(t, db, members...)

	// One card to delegate against.
	card := models.Card{ColumnID: column.ID, Name: "Review budget", CreatedBy: members[0]}
	require.NoError(t, db.Create(&card).Error)

	realtime := &realtimeStub{}
	svc := NewNotificationService(
		repository.NewNotificationRepository(db),
		repository.NewSpaceRepository(db),
		repository.NewCardRepository(db),
		realtime, testValidator(), testLogger(),
	)

	return svc, realtime, space, members, card
}

func TestFanoutSkipsHumanActors(t *testing.T) {
	svc, realtime, space, members, _ := setupNotifications(t)

	count, err := svc.Fanout(context.Background(), space.ID, "card_created", "title", "msg", nil,
		NewUserActor(members[0], "alice"))
	require.NoError(t, err)
	require.Zero(t, count)
	require.Empty(t, realtime.published)
}

func TestFanoutExcludesTheActingAgent(t *testing.T) {
	svc, realtime, space, members, _ := setupNotifications(t)
	agent := NewAgentActor(members[0], "alice", "")

	count, err := svc.Fanout(context.Background(), space.ID, "agent_card_created", "Card created", "", nil, agent)
	require.NoError(t, err)
	require.Equal(t, len(members)-1, count)
	require.Len(t, realtime.published, count)

	for _, record := range realtime.published {
		require.Equal(t, dto.EventNotificationCreated, record.eventTyp)
		require.Equal(t, space.ID, record.spaceID)
	}

	// The actor's own inbox stays empty.
	own, err := svc.List(context.Background(), members[0], 10, 0)
	require.NoError(t, err)
	require.Empty(t, own)

	other, err := svc.List(context.Background(), members[1], 10, 0)
	require.NoError(t, err)
	require.Len(t, other, 1)
	require.Equal(t, "agent_card_created", other[0].Type)
	require.Equal(t, "alice-bot", other[0].Data["actor_name"])
}

func TestMarkReadIsScopedToRecipient(t *testing.T) {
	svc, _, space, members, _ := setupNotifications(t)
	agent := NewAgentActor(members[0], "alice", "")

	_, err := svc.Fanout(context.Background(), space.ID, "agent_card_created", "Card created", "", nil, agent)
	require.NoError(t, err)

	inbox, err := svc.List(context.Background(), members[1], 10, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 1)

	// Another member cannot touch this recipient's record.
	_, err = svc.MarkRead(context.Background(), members[2], inbox[0].ID)
	require.ErrorIs(t, err, ErrNotificationNotFound)

	updated, err := svc.MarkRead(context.Background(), members[1], inbox[0].ID)
	require.NoError(t, err)
	require.True(t, updated.Read)

	// Marking read twice is harmless.
	again, err := svc.MarkRead(context.Background(), members[1], inbox[0].ID)
	require.NoError(t, err)
	require.True(t, again.Read)
}

func TestMarkAllReadAndDelete(t *testing.T) {
	svc, _, space, members, _ := setupNotifications(t)
	agent := NewAgentActor(members[0], "alice", "")

	for i := 0; i < 3; i++ {
		_, err := svc.Fanout(context.Background(), space.ID, "agent_card_created", "Card created", "", nil, agent)
		require.NoError(t, err)
	}

	updated, err := svc.MarkAllRead(context.Background(), members[1])
	require.NoError(t, err)
	require.Equal(t, int64(3), updated)

	inbox, err := svc.List(context.Background(), members[1], 10, 0)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), members[1], inbox[0].ID))

	require.ErrorIs(t, svc.Delete(context.Background(), members[1], inbox[0].ID), ErrNotificationNotFound)
}

func TestDelegateRequiresAgent(t *testing.T) {
	svc, _, _, members, _ := setupNotifications(t)

	_, err := svc.Delegate(context.Background(), NewUserActor(members[0], "alice"), dto.DelegationRequest{
		TargetUserID: members[1],
		CardID:       uuid.NewString(),
	})
	require.ErrorIs(t, err, ErrAgentOnly)
}

func TestDelegateNotifiesTarget(t *testing.T) {
	svc, realtime, space, members, card := setupNotifications(t)
	agent := NewAgentActor(members[0], "alice", "planner")
	cardID := card.ID

	result, err := svc.Delegate(context.Background(), agent, dto.DelegationRequest{
		TargetUserID: members[2],
		CardID:       cardID,
		SpaceID:      space.ID,
		Message:      "please take this over",
	})
	require.NoError(t, err)
	require.Equal(t, "delegated", result.Status)
	require.NotEmpty(t, result.NotificationID)

	inbox, err := svc.List(context.Background(), members[2], 10, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.Equal(t, "agent_delegation_request", inbox[0].Type)
	require.Equal(t, cardID, inbox[0].Data["card_id"])

	require.Len(t, realtime.published, 1)
	require.Equal(t, dto.EventNotificationCreated, realtime.published[0].eventTyp)
}

func TestDelegateRejectsNonMemberTarget(t *testing.T) {
	svc, _, space, members, card := setupNotifications(t)
	agent := NewAgentActor(members[0], "alice", "")
	cardID := card.ID

	_, err := svc.Delegate(context.Background(), agent, dto.DelegationRequest{
		TargetUserID: uuid.NewString(),
		CardID:       cardID,
		SpaceID:      space.ID,
	})
	require.ErrorIs(t, err, ErrSpaceForbidden)
}
