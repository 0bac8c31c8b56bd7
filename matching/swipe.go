package matching

import (
	"context"
	"fmt"
	"iter"

	"gitea.kood.tech/petrkubec/purpose-match/backend/store"
)

const (
	MsgInterestRecorded  = "Interest recorded successfully!"
	MsgAlreadyInterested = "You have already swiped right on this purpose."
	MsgSeenRecorded      = "Purpose recorded as seen."
	MsgAlreadySeen       = "You have already seen this purpose."
)

// Swipe directions, also used as metric labels.
const (
	DirectionRight = "right"
	DirectionLeft  = "left"
)

// SwipeResult reports whether a new row was recorded. A repeated swipe is a
// success with Created=false.
type SwipeResult struct {
	Created bool   `json:"created"`
	Message string `json:"message"`
}

// Feed yields the purposes userID can still swipe on. The sequence is lazy
// and restartable: each range re-runs the exclusion query.
func (s *Service) Feed(ctx context.Context, userID int64) iter.Seq2[store.Purpose, error] {
	if userID <= 0 {
		return func(yield func(store.Purpose, error) bool) {
			yield(store.Purpose{}, invalid("User ID is required."))
		}
	}
	return s.store.Feed(ctx, userID)
}

// MaxFeedPage caps how many purposes one feed request returns.
const MaxFeedPage = 200

// Page is one slice of the feed. HasMore reports that unseen purposes remain
// past the last one returned.
type Page struct {
	Purposes []store.Purpose
	HasMore  bool
}

// FeedPage collects at most limit purposes from Feed, reading one past the
// limit to set HasMore. A limit <= 0 or above MaxFeedPage reads as
// MaxFeedPage.
func (s *Service) FeedPage(ctx context.Context, userID int64, limit int) (Page, error) {
	if limit <= 0 || limit > MaxFeedPage {
		limit = MaxFeedPage
	}
	page := Page{Purposes: []store.Purpose{}}
	for p, err := range s.Feed(ctx, userID) {
		if err != nil {
			return Page{}, err
		}
		if len(page.Purposes) == limit {
			page.HasMore = true
			break
		}
		page.Purposes = append(page.Purposes, p)
	}
	return page, nil
}

func (s *Service) SwipeRight(ctx context.Context, userID, purposeID int64) (SwipeResult, error) {
	if err := s.checkSwipe(ctx, userID, purposeID); err != nil {
		return SwipeResult{}, err
	}
	created, err := s.store.RecordInterest(ctx, userID, purposeID)
	if err != nil {
		return SwipeResult{}, notFound(fmt.Errorf("record interest: %w", err), "Purpose not found.")
	}
	s.metrics.Swipe(DirectionRight, created)

	if !created {
		return SwipeResult{Message: MsgAlreadyInterested}, nil
	}
	s.log.Debug(ctx, "interest recorded", "user_id", userID, "purpose_id", purposeID)
	return SwipeResult{Created: true, Message: MsgInterestRecorded}, nil
}

func (s *Service) SwipeLeft(ctx context.Context, userID, purposeID int64) (SwipeResult, error) {
	if err := s.checkSwipe(ctx, userID, purposeID); err != nil {
		return SwipeResult{}, err
	}
	created, err := s.store.RecordSeen(ctx, userID, purposeID)
	if err != nil {
		return SwipeResult{}, notFound(fmt.Errorf("record seen: %w", err), "Purpose not found.")
	}
	s.metrics.Swipe(DirectionLeft, created)

	if !created {
		return SwipeResult{Message: MsgAlreadySeen}, nil
	}
	return SwipeResult{Created: true, Message: MsgSeenRecorded}, nil
}

func (s *Service) checkSwipe(ctx context.Context, userID, purposeID int64) error {
	if userID <= 0 || purposeID <= 0 {
		return invalid("User ID and Purpose ID are required.")
	}
	p, err := s.store.PurposeByID(ctx, purposeID)
	if err != nil {
		return notFound(fmt.Errorf("load purpose: %w", err), "Purpose not found.")
	}
	if p.OwnerID == userID {
		return invalid("You cannot swipe on your own purpose.")
	}
	return nil
}
