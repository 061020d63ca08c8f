package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jurutani/internal/config"
	"jurutani/internal/identity"
	"jurutani/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Port:                 "0",
		Env:                  "test",
		JWTSecret:            "handler-test-secret",
		UploadDir:            t.TempDir(),
		PublicBaseURL:        "http://localhost:8480",
		ImageMaxUploadSizeMB: 10,
		ImageMaxWidth:        800,
		ImageMaxHeight:       600,
		ImageJPEGQuality:     80,
		HistoryPageSize:      50,
	}
}

func setupTestServer(t *testing.T) (*Server, *fiber.App) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.Profile{},
		&models.Conversation{},
		&models.Message{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	srv, err := NewServerWithDeps(testConfig(t), db, rdb)
	require.NoError(t, err)

	app := fiber.New()
	srv.SetupRoutes(app)
	return srv, app
}

func bearerFor(t *testing.T, srv *Server, u *identity.User) string {
	token, err := srv.verifier.Sign(u, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func doJSON(t *testing.T, app *fiber.App, method, target, auth string, body interface{}) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

var (
	aliceUser = &identity.User{ID: "user-alice", FullName: "Alice Tani", Role: "farmer"}
	budiUser  = &identity.User{ID: "user-budi", FullName: "Budi Santoso", Role: "expert"}
)

func createConversation(t *testing.T, app *fiber.App, auth, partnerID string) *models.Conversation {
	resp := doJSON(t, app, http.MethodPost, "/api/conversations/", auth,
		fiber.Map{"partner_id": partnerID})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var conv models.Conversation
	decodeBody(t, resp, &conv)
	return &conv
}

func TestAuthRequired(t *testing.T) {
	_, app := setupTestServer(t)

	t.Run("missing token", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodGet, "/api/conversations/", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("garbage token", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodGet, "/api/conversations/", "Bearer nope", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestConversationEndpoints(t *testing.T) {
	srv, app := setupTestServer(t)
	aliceAuth := bearerFor(t, srv, aliceUser)
	budiAuth := bearerFor(t, srv, budiUser)

	t.Run("create and share a conversation", func(t *testing.T) {
		fromAlice := createConversation(t, app, aliceAuth, budiUser.ID)
		fromBudi := createConversation(t, app, budiAuth, aliceUser.ID)
		assert.Equal(t, fromAlice.ID, fromBudi.ID)
	})

	t.Run("self conversation is rejected", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/conversations/", aliceAuth,
			fiber.Map{"partner_id": aliceUser.ID})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("list includes partner snapshot", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodGet, "/api/conversations/", aliceAuth, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Conversations []*models.Conversation `json:"conversations"`
		}
		decodeBody(t, resp, &body)
		require.Len(t, body.Conversations, 1)
		partner := body.Conversations[0].Partner(aliceUser.ID)
		require.NotNil(t, partner)
		assert.Equal(t, "Budi Santoso", partner.FullName)
	})
}

func TestMessageEndpoints(t *testing.T) {
	srv, app := setupTestServer(t)
	aliceAuth := bearerFor(t, srv, aliceUser)
	budiAuth := bearerFor(t, srv, budiUser)
	conv := createConversation(t, app, aliceAuth, budiUser.ID)

	var msg models.Message

	t.Run("send text", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", aliceAuth,
			fiber.Map{"content": "Halo Budi"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		decodeBody(t, resp, &msg)
		assert.Equal(t, "Halo Budi", msg.Content)
		assert.Equal(t, aliceUser.ID, msg.SenderID)
	})

	t.Run("empty message is rejected", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", aliceAuth,
			fiber.Map{"content": "   "})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("history returns the message", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", budiAuth, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Messages []*models.Message `json:"messages"`
		}
		decodeBody(t, resp, &body)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, msg.ID, body.Messages[0].ID)
	})

	t.Run("unread count then mark read", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodGet, "/api/conversations/", budiAuth, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			Conversations []*models.Conversation `json:"conversations"`
		}
		decodeBody(t, resp, &body)
		require.Len(t, body.Conversations, 1)
		assert.EqualValues(t, 1, body.Conversations[0].UnreadCount)

		markResp := doJSON(t, app, http.MethodPost, "/api/conversations/"+conv.ID+"/read", budiAuth, nil)
		assert.Equal(t, http.StatusNoContent, markResp.StatusCode)

		resp = doJSON(t, app, http.MethodGet, "/api/conversations/", budiAuth, nil)
		decodeBody(t, resp, &body)
		assert.Zero(t, body.Conversations[0].UnreadCount)
	})

	t.Run("only the sender can delete", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodDelete, "/api/messages/"+msg.ID, budiAuth, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp = doJSON(t, app, http.MethodDelete, "/api/messages/"+msg.ID, aliceAuth, nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("outsiders cannot read the thread", func(t *testing.T) {
		malloryAuth := bearerFor(t, srv, &identity.User{ID: "user-mallory", FullName: "Mallory"})
		resp := doJSON(t, app, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", malloryAuth, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestSendImageMultipart(t *testing.T) {
	srv, app := setupTestServer(t)
	aliceAuth := bearerFor(t, srv, aliceUser)
	conv := createConversation(t, app, aliceAuth, budiUser.ID)

	var imgBuf bytes.Buffer
	require.NoError(t, encodePNG(&imgBuf, 320, 240))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "sawah.png")
	require.NoError(t, err)
	_, err = io.Copy(fw, &imgBuf)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("content", "lihat ini"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/conversations/"+conv.ID+"/messages", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", aliceAuth)

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var msg models.Message
	decodeBody(t, resp, &msg)
	assert.Equal(t, "lihat ini", msg.Content)
	assert.Contains(t, msg.ImageURL, "/media/chat-images/user-alice/")
}

func TestClearAndDeleteConversation(t *testing.T) {
	srv, app := setupTestServer(t)
	aliceAuth := bearerFor(t, srv, aliceUser)
	conv := createConversation(t, app, aliceAuth, budiUser.ID)

	resp := doJSON(t, app, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", aliceAuth,
		fiber.Map{"content": "soon gone"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	t.Run("clear empties the thread", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodDelete, "/api/conversations/"+conv.ID+"/messages", aliceAuth, nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		listResp := doJSON(t, app, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", aliceAuth, nil)
		var body struct {
			Messages []*models.Message `json:"messages"`
		}
		decodeBody(t, listResp, &body)
		assert.Empty(t, body.Messages)
	})

	t.Run("delete removes the conversation", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodDelete, "/api/conversations/"+conv.ID, aliceAuth, nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		getResp := doJSON(t, app, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", aliceAuth, nil)
		assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
	})
}

func TestHealthCheck(t *testing.T) {
	_, app := setupTestServer(t)

	resp := doJSON(t, app, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func encodePNG(w io.Writer, width, height int) error {
	return png.Encode(w, image.NewRGBA(image.Rect(0, 0, width, height)))
}
