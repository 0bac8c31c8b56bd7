package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"gitea.kood.tech/petrkubec/purpose-match/backend/logging"
	"gitea.kood.tech/petrkubec/purpose-match/backend/store"
)

type seedOptions struct {
	Count        int
	Seed         uint64
	Password     string
	InterestRate float64 // proportion of foreign purposes each user swipes right on
	SeenRate     float64 // proportion swiped left
	AcceptRate   float64 // proportion of interests the poster accepts
	MutualRate   float64 // proportion of pending matches the interested user accepts
	HashCost     int
}

func defaultSeedOptions() seedOptions {
	return seedOptions{
		Count:        50,
		Seed:         42,
		Password:     "test1234",
		InterestRate: 0.15,
		SeenRate:     0.15,
		AcceptRate:   0.5,
		MutualRate:   0.5,
		HashCost:     bcrypt.DefaultCost,
	}
}

func (o seedOptions) validate() error {
	if o.Count < 2 {
		return fmt.Errorf("--count must be at least 2")
	}
	for _, rate := range []float64{o.InterestRate, o.SeenRate, o.AcceptRate, o.MutualRate} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("rate flags must be in range 0..1")
		}
	}
	if o.Password == "" {
		return fmt.Errorf("--password must not be empty")
	}
	return nil
}

type seedReport struct {
	Users, Purposes, Interests, Seen, Pending, Mutual, Messages int
}

// seeder fills any store with deterministic demo data. The first two users
// (user1 and user2) always end up mutually matched with a short chat.
type seeder struct {
	store store.Store
	rng   *rand.Rand
	log   logging.Logger
}

func newSeeder(st store.Store, seed uint64, log logging.Logger) *seeder {
	return &seeder{store: st, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), log: log}
}

var (
	seedFirstNames = []string{"alex", "sam", "mia", "li", "noah", "olivia", "leo", "emil", "sara", "luca", "milla", "mikko", "eeva", "niklas", "sofia"}
	seedBios       = []string{
		"Weekend climber, weekday coder.",
		"Looking for people to start a book club with.",
		"Always up for a board game night.",
		"Learning Spanish and need a conversation partner.",
		"Trail runner training for my first half marathon.",
		"Amateur photographer exploring the city.",
	}
	seedPurposes = []struct{ title, description string }{
		{"Bouldering buddy", "Looking for someone to climb with on Saturday mornings."},
		{"Chess practice", "Casual blitz games twice a week, any level welcome."},
		{"Language exchange", "Trade an hour of English for an hour of Finnish."},
		{"Side project", "Building a small web app, need a designer."},
		{"Running partner", "Easy 5k loops along the seaside in the evenings."},
		{"Board game night", "Hosting on Fridays, bring a friend."},
		{"Photo walk", "Exploring old town architecture with a camera."},
		{"Study group", "Preparing for a cloud certification exam."},
	}
)

func (s *seeder) run(ctx context.Context, opts seedOptions) (seedReport, error) {
	var rep seedReport
	if err := opts.validate(); err != nil {
		return rep, err
	}

	// One hash for everyone keeps seeding fast and logins easy
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), opts.HashCost)
	if err != nil {
		return rep, fmt.Errorf("bcrypt: %w", err)
	}

	users := make([]store.User, 0, opts.Count)
	for i := range opts.Count {
		name := fmt.Sprintf("user%d", i+1)
		if i >= 2 {
			name = fmt.Sprintf("%s%d", seedFirstNames[s.rng.IntN(len(seedFirstNames))], i+1)
		}
		u, err := s.store.CreateUser(ctx, name, string(hash))
		if err != nil {
			return rep, fmt.Errorf("insert user %s: %w", name, err)
		}
		if _, err := s.store.UpsertProfile(ctx, store.Profile{UserID: u.ID, Bio: seedBios[s.rng.IntN(len(seedBios))]}); err != nil {
			return rep, fmt.Errorf("insert profile %d: %w", u.ID, err)
		}
		users = append(users, u)
	}
	rep.Users = len(users)

	purposes := make([]store.Purpose, 0, len(users))
	for _, u := range users {
		tpl := seedPurposes[s.rng.IntN(len(seedPurposes))]
		p, err := s.store.CreatePurpose(ctx, store.Purpose{OwnerID: u.ID, Title: tpl.title, Description: tpl.description})
		if err != nil {
			return rep, fmt.Errorf("insert purpose for %d: %w", u.ID, err)
		}
		purposes = append(purposes, p)
	}
	rep.Purposes = len(purposes)

	if err := s.matchFirstTwo(ctx, users[0], users[1], purposes[0], &rep); err != nil {
		return rep, err
	}

	for _, u := range users {
		for _, p := range purposes {
			if p.OwnerID == u.ID || (u.ID == users[1].ID && p.ID == purposes[0].ID) {
				continue
			}
			switch roll := s.rng.Float64(); {
			case roll < opts.InterestRate:
				if err := s.interest(ctx, u, p, opts, &rep); err != nil {
					return rep, err
				}
			case roll < opts.InterestRate+opts.SeenRate:
				if _, err := s.store.RecordSeen(ctx, u.ID, p.ID); err != nil {
					return rep, fmt.Errorf("record seen: %w", err)
				}
				rep.Seen++
			}
		}
	}

	s.log.Info(ctx, "seed complete",
		"users", rep.Users, "purposes", rep.Purposes, "interests", rep.Interests,
		"pending", rep.Pending, "mutual", rep.Mutual, "messages", rep.Messages)
	return rep, nil
}

// interest swipes right and walks the match forward as far as the rates
// allow.
func (s *seeder) interest(ctx context.Context, u store.User, p store.Purpose, opts seedOptions, rep *seedReport) error {
	if _, err := s.store.RecordInterest(ctx, u.ID, p.ID); err != nil {
		return fmt.Errorf("record interest: %w", err)
	}
	rep.Interests++
	if s.rng.Float64() >= opts.AcceptRate {
		return nil
	}
	if _, err := s.store.CreateMatch(ctx, store.Match{PurposeID: p.ID, PosterID: p.OwnerID, InterestedUserID: u.ID}); err != nil {
		return fmt.Errorf("create match: %w", err)
	}
	if s.rng.Float64() >= opts.MutualRate {
		rep.Pending++
		return nil
	}
	if _, err := s.store.AcceptMatch(ctx, p.ID, u.ID); err != nil {
		return fmt.Errorf("accept match: %w", err)
	}
	rep.Mutual++
	return nil
}

func (s *seeder) matchFirstTwo(ctx context.Context, poster, other store.User, p store.Purpose, rep *seedReport) error {
	if _, err := s.store.RecordInterest(ctx, other.ID, p.ID); err != nil {
		return fmt.Errorf("record interest: %w", err)
	}
	if _, err := s.store.CreateMatch(ctx, store.Match{PurposeID: p.ID, PosterID: poster.ID, InterestedUserID: other.ID}); err != nil {
		return fmt.Errorf("create match: %w", err)
	}
	if _, err := s.store.AcceptMatch(ctx, p.ID, other.ID); err != nil {
		return fmt.Errorf("accept match: %w", err)
	}
	rep.Interests++
	rep.Mutual++

	lines := []string{"Hi! Saw your " + strings.ToLower(p.Title) + " post.", "Hey, great to match!", "Does Saturday work?"}
	for i, text := range lines {
		from, to := other.ID, poster.ID
		if i%2 == 1 {
			from, to = to, from
		}
		if _, err := s.store.AppendMessage(ctx, store.Message{SenderID: from, ReceiverID: to, Text: text}); err != nil {
			return fmt.Errorf("append message: %w", err)
		}
		rep.Messages++
	}
	return nil
}
