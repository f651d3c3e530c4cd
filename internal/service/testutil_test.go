package service

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kanbot-project/kanbot-sync-api/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.APIKey{},
		&models.Space{}, &models.SpaceMember{}, &models.Board{}, &models.Column{},
		&models.Card{}, &models.CardTask{}, &models.Tag{}, &models.CardTag{}, &models.CardAssignee{},
		&models.CardHistory{}, &models.Notification{},
		&models.Webhook{}, &models.WebhookLog{}, &models.ScheduledCard{},
	))

	return db
}

// seedSpace creates a space with the given members, one board and one column.
func seedSpace(t *testing.T, db *gorm.DB, memberIDs ...string) (models.Space, models.Board, models.Column) {
	t.Helper()

	space := models.Space{Name: "workspace"}
	require.NoError(t, db.Create(&space).Error)

	for _, userID := range memberIDs {
		user := models.User{ID: userID, Email: userID + "@example.com", Username: userID}
		require.NoError(t, db.Create(&user).Error)
		require.NoError(t, db.Create(&models.SpaceMember{SpaceID: space.ID, UserID: userID}).Error)
	}

	board := models.Board{SpaceID: space.ID, Name: "main", Position: 0}
	require.NoError(t, db.Create(&board).Error)

	column := models.Column{BoardID: board.ID, Name: "Todo", Position: 0}
	require.NoError(t, db.Create(&column).Error)

	return space, board, column
}

func mustParseTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}
