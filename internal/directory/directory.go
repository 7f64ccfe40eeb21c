package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

var (
	// ErrInvalidTarget rejects a conversation with oneself or a blank target.
	ErrInvalidTarget = errors.New("invalid conversation target")
	// ErrCreationFailed wraps any write failure while establishing a conversation.
	ErrCreationFailed = errors.New("conversation creation failed")
)

// Directory resolves which conversations a user participates in and
// establishes new 1:1 conversations idempotently.
type Directory struct {
	conversations repositories.ConversationRepository
	profiles      repositories.ProfileRepository
	log           zerolog.Logger
}

// New constructs a Directory.
func New(conversations repositories.ConversationRepository, profiles repositories.ProfileRepository, log zerolog.Logger) *Directory {
	return &Directory{
		conversations: conversations,
		profiles:      profiles,
		log:           log.With().Str("component", "directory").Logger(),
	}
}

// ListConversations returns the user's conversations annotated with the
// counterpart's display name and the last-message preview, ordered by last
// activity descending with never-messaged conversations last. A user with no
// conversations gets an empty slice, not an error.
func (d *Directory) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	participations, err := d.conversations.ListParticipationsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list participations: %w", err)
	}
	if len(participations) == 0 {
		return []models.ConversationSummary{}, nil
	}

	conversationIDs := make([]string, 0, len(participations))
	for _, p := range participations {
		conversationIDs = append(conversationIDs, p.ConversationID)
	}

	conversations, err := d.conversations.GetConversationsByIDs(ctx, conversationIDs)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}

	counterparts, err := d.conversations.ListCounterparts(ctx, conversationIDs, userID)
	if err != nil {
		return nil, fmt.Errorf("load counterparts: %w", err)
	}

	partnerByConversation := make(map[string]string, len(counterparts))
	partnerIDs := make([]string, 0, len(counterparts))
	seenPartner := map[string]struct{}{}
	for _, p := range counterparts {
		partnerByConversation[p.ConversationID] = p.UserID
		if _, ok := seenPartner[p.UserID]; !ok {
			seenPartner[p.UserID] = struct{}{}
			partnerIDs = append(partnerIDs, p.UserID)
		}
	}

	profiles, err := d.profiles.BulkProfiles(ctx, partnerIDs)
	if err != nil {
		return nil, fmt.Errorf("load partner profiles: %w", err)
	}
	nameByID := make(map[string]string, len(profiles))
	for _, p := range profiles {
		nameByID[p.ID] = p.Username
	}

	summaries := make([]models.ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		partnerID, ok := partnerByConversation[conv.ID]
		if !ok {
			// A conversation missing its second participant row is skipped
			// rather than rendered half-formed.
			d.log.Warn().Str("conversation_id", conv.ID).Msg("conversation without counterpart")
			continue
		}
		summary := models.ConversationSummary{
			ConversationID: conv.ID,
			PartnerID:      partnerID,
			PartnerName:    nameByID[partnerID],
			CreatedAt:      conv.CreatedAt,
		}
		if conv.LastMessageText.Valid {
			summary.LastMessageText = conv.LastMessageText.String
		}
		if conv.LastMessageAt.Valid {
			at := conv.LastMessageAt.Time
			summary.LastMessageAt = &at
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].LastMessageAt, summaries[j].LastMessageAt
		switch {
		case a != nil && b != nil:
			return a.After(*b)
		case a != nil:
			return true
		case b != nil:
			return false
		default:
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
	})

	return summaries, nil
}

// StartConversation finds or creates the conversation between the two users
// and reports whether it was newly created. Calling it twice for the same
// pair returns the same conversation id.
func (d *Directory) StartConversation(ctx context.Context, currentUserID, targetUserID string) (models.Conversation, bool, error) {
	if targetUserID == "" || currentUserID == targetUserID {
		return models.Conversation{}, false, ErrInvalidTarget
	}

	if _, err := d.profiles.GetProfile(ctx, targetUserID); err != nil {
		if errors.Is(err, repositories.ErrProfileNotFound) {
			return models.Conversation{}, false, fmt.Errorf("%w: unknown target user", ErrInvalidTarget)
		}
		return models.Conversation{}, false, fmt.Errorf("resolve target profile: %w", err)
	}

	conv, created, err := d.conversations.CreateOrGetConversation(ctx, currentUserID, targetUserID)
	if err != nil {
		return models.Conversation{}, false, fmt.Errorf("%w: %v", ErrCreationFailed, err)
	}
	if created {
		d.log.Info().
			Str("conversation_id", conv.ID).
			Str("user_id", currentUserID).
			Str("target_user_id", targetUserID).
			Msg("conversation created")
	}
	return conv, created, nil
}
