package directory

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/db"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

func newDirectory(convRepo *mocks.ConversationRepositoryMock, profileRepo *mocks.ProfileRepositoryMock) *Directory {
	return New(convRepo, profileRepo, zerolog.Nop())
}

func TestListConversationsEmpty(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	profileRepo := new(mocks.ProfileRepositoryMock)
	dir := newDirectory(convRepo, profileRepo)

	convRepo.On("ListParticipationsForUser", mock.Anything, "u1").Return([]models.Participant{}, nil).Once()

	summaries, err := dir.ListConversations(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, summaries)
	convRepo.AssertExpectations(t)
}

func TestListConversationsJoinAndOrder(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	profileRepo := new(mocks.ProfileRepositoryMock)
	dir := newDirectory(convRepo, profileRepo)

	now := time.Now()
	older := now.Add(-time.Hour)

	convRepo.On("ListParticipationsForUser", mock.Anything, "u1").Return([]models.Participant{
		{ConversationID: "c1", UserID: "u1"},
		{ConversationID: "c2", UserID: "u1"},
		{ConversationID: "c3", UserID: "u1"},
	}, nil).Once()
	convRepo.On("GetConversationsByIDs", mock.Anything, []string{"c1", "c2", "c3"}).Return([]models.Conversation{
		{ID: "c1", LastMessageText: sql.NullString{String: "see you there", Valid: true}, LastMessageAt: sql.NullTime{Time: older, Valid: true}, CreatedAt: older},
		{ID: "c2", CreatedAt: now}, // never messaged, sorts last
		{ID: "c3", LastMessageText: sql.NullString{String: "on my way", Valid: true}, LastMessageAt: sql.NullTime{Time: now, Valid: true}, CreatedAt: older},
	}, nil).Once()
	convRepo.On("ListCounterparts", mock.Anything, []string{"c1", "c2", "c3"}, "u1").Return([]models.Participant{
		{ConversationID: "c1", UserID: "u2"},
		{ConversationID: "c2", UserID: "u3"},
		{ConversationID: "c3", UserID: "u4"},
	}, nil).Once()
	profileRepo.On("BulkProfiles", mock.Anything, []string{"u2", "u3", "u4"}).Return([]models.Profile{
		{ID: "u2", Username: "brett"},
		{ID: "u3", Username: "carla"},
		{ID: "u4", Username: "dana"},
	}, nil).Once()

	summaries, err := dir.ListConversations(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	assert.Equal(t, "c3", summaries[0].ConversationID)
	assert.Equal(t, "dana", summaries[0].PartnerName)
	assert.Equal(t, "on my way", summaries[0].LastMessageText)
	assert.Equal(t, "c1", summaries[1].ConversationID)
	assert.Equal(t, "c2", summaries[2].ConversationID)
	assert.Nil(t, summaries[2].LastMessageAt)

	convRepo.AssertExpectations(t)
	profileRepo.AssertExpectations(t)
}

func TestListConversationsRepoError(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	dir := newDirectory(convRepo, new(mocks.ProfileRepositoryMock))

	convRepo.On("ListParticipationsForUser", mock.Anything, "u1").Return(([]models.Participant)(nil), assert.AnError).Once()

	_, err := dir.ListConversations(context.Background(), "u1")
	require.Error(t, err)
}

func TestListConversationsSurfacesBackendUnavailable(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	dir := newDirectory(convRepo, new(mocks.ProfileRepositoryMock))

	unreachable := fmt.Errorf("%w: dial tcp 127.0.0.1:1: connect: connection refused", db.ErrBackendUnavailable)
	convRepo.On("ListParticipationsForUser", mock.Anything, "u1").
		Return(([]models.Participant)(nil), unreachable).Once()

	_, err := dir.ListConversations(context.Background(), "u1")
	require.ErrorIs(t, err, db.ErrBackendUnavailable)
}

func TestStartConversationWithSelf(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	profileRepo := new(mocks.ProfileRepositoryMock)
	dir := newDirectory(convRepo, profileRepo)

	_, _, err := dir.StartConversation(context.Background(), "u1", "u1")
	require.ErrorIs(t, err, ErrInvalidTarget)

	// no reads or writes happened
	convRepo.AssertNotCalled(t, "CreateOrGetConversation", mock.Anything, mock.Anything, mock.Anything)
	profileRepo.AssertNotCalled(t, "GetProfile", mock.Anything, mock.Anything)
}

func TestStartConversationUnknownTarget(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	profileRepo := new(mocks.ProfileRepositoryMock)
	dir := newDirectory(convRepo, profileRepo)

	profileRepo.On("GetProfile", mock.Anything, "ghost").Return(models.Profile{}, repositories.ErrProfileNotFound).Once()

	_, _, err := dir.StartConversation(context.Background(), "u1", "ghost")
	require.ErrorIs(t, err, ErrInvalidTarget)
	convRepo.AssertNotCalled(t, "CreateOrGetConversation", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartConversationIdempotent(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	profileRepo := new(mocks.ProfileRepositoryMock)
	dir := newDirectory(convRepo, profileRepo)

	profileRepo.On("GetProfile", mock.Anything, "u2").Return(models.Profile{ID: "u2", Username: "brett"}, nil).Twice()
	convRepo.On("CreateOrGetConversation", mock.Anything, "u1", "u2").
		Return(models.Conversation{ID: "c1"}, true, nil).Once()
	convRepo.On("CreateOrGetConversation", mock.Anything, "u1", "u2").
		Return(models.Conversation{ID: "c1"}, false, nil).Once()

	first, created, err := dir.StartConversation(context.Background(), "u1", "u2")
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := dir.StartConversation(context.Background(), "u1", "u2")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	convRepo.AssertExpectations(t)
}

func TestStartConversationCreationFailure(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	profileRepo := new(mocks.ProfileRepositoryMock)
	dir := newDirectory(convRepo, profileRepo)

	profileRepo.On("GetProfile", mock.Anything, "u2").Return(models.Profile{ID: "u2"}, nil).Once()
	convRepo.On("CreateOrGetConversation", mock.Anything, "u1", "u2").
		Return(models.Conversation{}, false, assert.AnError).Once()

	_, _, err := dir.StartConversation(context.Background(), "u1", "u2")
	require.ErrorIs(t, err, ErrCreationFailed)
}
