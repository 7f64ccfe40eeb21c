package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/directory"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/telemetry"
)

func setupConversationRouter(convRepo *mocks.ConversationRepositoryMock, profileRepo *mocks.ProfileRepositoryMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	dir := directory.New(convRepo, profileRepo, zerolog.Nop())
	handler := NewConversationHandler(dir, telemetry.NewEmitter(nil, "test", "test", zerolog.Nop()))

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "u1")
		c.Next()
	})
	r.GET("/conversations", handler.ListConversations)
	r.POST("/conversations/start", handler.StartConversation)
	return r
}

func TestListConversationsSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	profileRepo := new(mocks.ProfileRepositoryMock)
	router := setupConversationRouter(convRepo, profileRepo)

	convRepo.On("ListParticipationsForUser", mock.Anything, "u1").Return([]models.Participant{
		{ConversationID: "c1", UserID: "u1"},
	}, nil).Once()
	convRepo.On("GetConversationsByIDs", mock.Anything, []string{"c1"}).Return([]models.Conversation{
		{ID: "c1"},
	}, nil).Once()
	convRepo.On("ListCounterparts", mock.Anything, []string{"c1"}, "u1").Return([]models.Participant{
		{ConversationID: "c1", UserID: "u2"},
	}, nil).Once()
	profileRepo.On("BulkProfiles", mock.Anything, []string{"u2"}).Return([]models.Profile{
		{ID: "u2", Username: "brett"},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, "brett", resp.Conversations[0].PartnerName)

	convRepo.AssertExpectations(t)
	profileRepo.AssertExpectations(t)
}

func TestListConversationsRepoError(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	router := setupConversationRouter(convRepo, new(mocks.ProfileRepositoryMock))

	convRepo.On("ListParticipationsForUser", mock.Anything, "u1").Return(([]models.Participant)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStartConversationSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	profileRepo := new(mocks.ProfileRepositoryMock)
	router := setupConversationRouter(convRepo, profileRepo)

	profileRepo.On("GetProfile", mock.Anything, "u2").Return(models.Profile{ID: "u2", Username: "brett"}, nil).Once()
	convRepo.On("CreateOrGetConversation", mock.Anything, "u1", "u2").Return(models.Conversation{ID: "c1"}, true, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/start", bytes.NewBufferString(`{"target_user_id":"u2"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "c1", resp["conversation_id"])
	assert.Equal(t, true, resp["created"])

	convRepo.AssertExpectations(t)
	profileRepo.AssertExpectations(t)
}

func TestStartConversationWithSelfRejected(t *testing.T) {
	router := setupConversationRouter(new(mocks.ConversationRepositoryMock), new(mocks.ProfileRepositoryMock))

	req := httptest.NewRequest(http.MethodPost, "/conversations/start", bytes.NewBufferString(`{"target_user_id":"u1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartConversationMissingBody(t *testing.T) {
	router := setupConversationRouter(new(mocks.ConversationRepositoryMock), new(mocks.ProfileRepositoryMock))

	req := httptest.NewRequest(http.MethodPost, "/conversations/start", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
