package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kanbot-project/kanbot-sync-api/internal/dto"
	"github.com/kanbot-project/kanbot-sync-api/internal/handler"
	"github.com/kanbot-project/kanbot-sync-api/internal/middleware"
	"github.com/kanbot-project/kanbot-sync-api/internal/models"
	"github.com/kanbot-project/kanbot-sync-api/internal/repository"
	"github.com/kanbot-project/kanbot-sync-api/internal/service"
)

const testJWTSecret = "realtime-test-secret"

type realtimeFixture struct {
	realtime service.RealtimeService
	baseURL  string
	spaceID  string
	memberID string
}

func setupRealtimeApp(t *testing.T) *realtimeFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.APIKey{}, &models.Space{}, &models.SpaceMember{}))

	memberID := uuid.NewString()
	require.NoError(t, db.Create(&models.User{ID: memberID, Username: memberID, Email: memberID + "@example.com"}).Error)

	space := models.Space{Name: "Realtime"}
	require.NoError(t, db.Create(&space).Error)
	require.NoError(t, db.Create(&models.SpaceMember{SpaceID: space.ID, UserID: memberID}).Error)

	logger := zerolog.Nop()
	realtime := service.NewRealtimeService(nil, "", nil, logger)
	h := handler.NewRealtimeHandler(realtime, repository.NewSpaceRepository(db), repository.NewUserRepository(db), testJWTSecret, logger)

	app := fiber.New()
	app.Use(middleware.CorrelationID())
	h.Register(app.Group("/api/v1/realtime"))

	baseURL, shutdown := startFiberServer(t, app)
	t.Cleanup(shutdown)

	return &realtimeFixture{
		realtime: realtime,
		baseURL:  baseURL,
		spaceID:  space.ID,
		memberID: memberID,
	}
}

func startFiberServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	return "http://" + listener.Addr().String(), shutdown
}

func (f *realtimeFixture) wsURL(query string) string {
	url := "ws" + strings.TrimPrefix(f.baseURL, "http") + "/api/v1/realtime/ws/" + f.spaceID
	if query != "" {
		url += "?" + query
	}
	return url
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      userID,
		"username": userID,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func expectClose(t *testing.T, url string, code int) {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	conn, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, code), "expected close code %d, got %v", code, err)
}

func TestWebsocketRejectsMissingCredentials(t *testing.T) {
	f := setupRealtimeApp(t)
	expectClose(t, f.wsURL(""), 4001)
}

func TestWebsocketRejectsGarbageToken(t *testing.T) {
	f := setupRealtimeApp(t)
	expectClose(t, f.wsURL("token=not-a-jwt"), 4001)
}

func TestWebsocketRejectsNonMember(t *testing.T) {
	f := setupRealtimeApp(t)
	expectClose(t, f.wsURL("token="+signToken(t, uuid.NewString())), 4003)
}

func TestWebsocketMemberReceivesPublishedEvents(t *testing.T) {
	f := setupRealtimeApp(t)

	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	conn, resp, err := dialer.Dial(f.wsURL("token="+signToken(t, f.memberID)), nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(2 * time.Second)
	for f.realtime.ConnectionCount(f.spaceID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.realtime.Publish(context.Background(), f.spaceID, dto.NewRealtimeEvent(dto.EventCardUpdated, map[string]interface{}{
		"card_id": "c-1",
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, dto.EventCardUpdated, decoded["type"])
	require.Equal(t, "c-1", decoded["card_id"])
}

func TestWebsocketAnswersPingWithPong(t *testing.T) {
	f := setupRealtimeApp(t)

	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	conn, resp, err := dialer.Dial(f.wsURL("token="+signToken(t, f.memberID)), nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)
	require.Equal(t, "pong", string(payload))
}
