package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gitea.kood.tech/petrkubec/purpose-match/backend/store"
)

const (
	MsgMatchCreated     = "Match successfully created!"
	MsgMatchExists      = "Match already exists."
	MsgMatchAccepted    = "Match accepted successfully."
	MsgMatchNotFound    = "Match not found or already accepted."
	MsgInterestAccepted = "Someone accepted your interest! Check your matches."
)

// Match transitions, used as metric labels.
const (
	transitionPending = "pending"
	transitionMutual  = "mutual"
)

// PosterInterest is an interest waiting for the poster's decision.
type PosterInterest struct {
	PurposeID          int64     `json:"purpose_id"`
	PurposeTitle       string    `json:"purpose_title"`
	PurposeDescription string    `json:"purpose_description"`
	InterestedUserID   int64     `json:"interested_user_id"`
	InterestedUsername string    `json:"interested_username"`
	InterestedUserBio  string    `json:"interested_user_bio"`
	InterestedUserImg  string    `json:"interested_user_image"`
	CreatedAt          time.Time `json:"created_at"`
}

// PendingMatch is a match the poster accepted and the interested user has
// not yet.
type PendingMatch struct {
	PurposeID          int64     `json:"purpose_id"`
	PurposeTitle       string    `json:"purpose_title"`
	PurposeDescription string    `json:"purpose_description"`
	PosterID           int64     `json:"poster_id"`
	PosterUsername     string    `json:"poster_username"`
	PosterBio          string    `json:"poster_bio"`
	PosterImage        string    `json:"poster_image"`
	CreatedAt          time.Time `json:"created_at"`
}

// MutualMatch is a match both sides accepted, seen from one participant.
type MutualMatch struct {
	PurposeID          int64  `json:"purpose_id"`
	PurposeTitle       string `json:"purpose_title"`
	PurposeDescription string `json:"purpose_description"`
	OtherUserID        int64  `json:"other_user_id"`
	OtherUsername      string `json:"other_username"`
	OtherBio           string `json:"other_bio"`
	OtherImage         string `json:"other_image"`
	IsPoster           bool   `json:"is_poster"`
}

// AcceptResult reports the outcome of AcceptInterest.
type AcceptResult struct {
	Created bool   `json:"created"`
	Message string `json:"message"`
	// Notified is true when the interested user had a live channel.
	Notified bool `json:"-"`
}

func (s *Service) ListInterestsForPoster(ctx context.Context, posterID int64) ([]PosterInterest, error) {
	if posterID <= 0 {
		return nil, invalid("User ID is required.")
	}
	views, err := s.store.InterestsForPoster(ctx, posterID)
	if err != nil {
		return nil, fmt.Errorf("list interests: %w", err)
	}

	ids := make([]int64, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.InterestedUserID)
	}
	people, err := s.participants(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]PosterInterest, 0, len(views))
	for _, v := range views {
		who := people[v.InterestedUserID]
		out = append(out, PosterInterest{
			PurposeID:          v.Purpose.ID,
			PurposeTitle:       v.Purpose.Title,
			PurposeDescription: v.Purpose.Description,
			InterestedUserID:   v.InterestedUserID,
			InterestedUsername: who.Username,
			InterestedUserBio:  who.Bio,
			InterestedUserImg:  who.ImageURL,
			CreatedAt:          v.CreatedAt,
		})
	}
	return out, nil
}

// AcceptInterest moves (purposeID, interestedUserID) from Interested to
// PendingMatch and notifies the interested user. An existing match of any
// state makes it a no-op success.
func (s *Service) AcceptInterest(ctx context.Context, purposeID, posterID, interestedUserID int64) (AcceptResult, error) {
	if purposeID <= 0 || posterID <= 0 || interestedUserID <= 0 {
		return AcceptResult{}, invalid("All required fields are missing.")
	}

	p, err := s.store.PurposeByID(ctx, purposeID)
	if err != nil {
		return AcceptResult{}, notFound(fmt.Errorf("load purpose: %w", err), "Purpose not found.")
	}
	if p.OwnerID != posterID {
		return AcceptResult{}, newError(ErrForbidden, "Only the poster can accept interest in this purpose.")
	}

	has, err := s.store.HasInterest(ctx, interestedUserID, purposeID)
	if err != nil {
		return AcceptResult{}, fmt.Errorf("check interest: %w", err)
	}
	if !has {
		return AcceptResult{}, newError(ErrNotFound, "Interest not found.")
	}

	created, err := s.store.CreateMatch(ctx, store.Match{
		PurposeID:        purposeID,
		PosterID:         posterID,
		InterestedUserID: interestedUserID,
	})
	if err != nil {
		return AcceptResult{}, notFound(fmt.Errorf("create match: %w", err), "Interest not found.")
	}
	if !created {
		return AcceptResult{Message: MsgMatchExists}, nil
	}

	s.metrics.Transition(transitionPending)
	s.log.Info(ctx, "interest accepted", "purpose_id", purposeID, "poster_id", posterID, "interested_user_id", interestedUserID)

	notified := s.notifier.InterestAccepted(ctx, interestedUserID)
	return AcceptResult{Created: true, Message: MsgMatchCreated, Notified: notified}, nil
}

func (s *Service) ListPendingForInterestedUser(ctx context.Context, userID int64) ([]PendingMatch, error) {
	if userID <= 0 {
		return nil, invalid("User ID is required.")
	}
	views, err := s.store.PendingMatchesFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list pending matches: %w", err)
	}

	ids := make([]int64, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.Match.PosterID)
	}
	people, err := s.participants(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]PendingMatch, 0, len(views))
	for _, v := range views {
		poster := people[v.Match.PosterID]
		out = append(out, PendingMatch{
			PurposeID:          v.Purpose.ID,
			PurposeTitle:       v.Purpose.Title,
			PurposeDescription: v.Purpose.Description,
			PosterID:           v.Match.PosterID,
			PosterUsername:     poster.Username,
			PosterBio:          poster.Bio,
			PosterImage:        poster.ImageURL,
			CreatedAt:          v.Match.CreatedAt,
		})
	}
	return out, nil
}

// AcceptMatch moves a pending match to mutual. It fails with ErrNotFound
// both when no match exists and when it was already accepted.
func (s *Service) AcceptMatch(ctx context.Context, purposeID, interestedUserID int64) error {
	if purposeID <= 0 || interestedUserID <= 0 {
		return invalid("Purpose ID and Interested User ID are required.")
	}
	if _, err := s.store.AcceptMatch(ctx, purposeID, interestedUserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return newError(ErrNotFound, MsgMatchNotFound)
		}
		return fmt.Errorf("accept match: %w", err)
	}

	s.metrics.Transition(transitionMutual)
	s.log.Info(ctx, "match accepted", "purpose_id", purposeID, "interested_user_id", interestedUserID)
	return nil
}

func (s *Service) ListMutualMatches(ctx context.Context, userID int64) ([]MutualMatch, error) {
	if userID <= 0 {
		return nil, invalid("User ID is required.")
	}
	views, err := s.store.MutualMatchesFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list mutual matches: %w", err)
	}

	ids := make([]int64, 0, len(views))
	for _, v := range views {
		ids = append(ids, otherParticipant(v.Match, userID))
	}
	people, err := s.participants(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]MutualMatch, 0, len(views))
	for _, v := range views {
		otherID := otherParticipant(v.Match, userID)
		other := people[otherID]
		out = append(out, MutualMatch{
			PurposeID:          v.Purpose.ID,
			PurposeTitle:       v.Purpose.Title,
			PurposeDescription: v.Purpose.Description,
			OtherUserID:        otherID,
			OtherUsername:      other.Username,
			OtherBio:           other.Bio,
			OtherImage:         other.ImageURL,
			IsPoster:           v.Match.PosterID == userID,
		})
	}
	return out, nil
}

func otherParticipant(m store.Match, userID int64) int64 {
	if m.PosterID == userID {
		return m.InterestedUserID
	}
	return m.PosterID
}
