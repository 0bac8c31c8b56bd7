package graph

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"gitea.kood.tech/petrkubec/purpose-match/backend/logging"
	"gitea.kood.tech/petrkubec/purpose-match/backend/matching"
	"gitea.kood.tech/petrkubec/purpose-match/backend/store"
)

// Resolver answers the read queries through the matching service. Nested
// users go through the request loaders, so a list of purposes costs one
// participant batch however many owners it names.
type Resolver struct {
	svc    *matching.Service
	viewer func(context.Context) int64
	log    logging.Logger
}

// NewResolver creates a resolver. viewer returns the authenticated user id
// carried by ctx, or 0.
func NewResolver(svc *matching.Service, viewer func(context.Context) int64, log logging.Logger) *Resolver {
	return &Resolver{svc: svc, viewer: viewer, log: log}
}

// thunk is a value that is still being loaded. The executor queues every
// thunk of a list before awaiting any of them.
type thunk func() (any, error)

type fieldFunc func(ctx context.Context, obj any, args map[string]any) (any, error)

// objectType maps field names of one GraphQL object to their resolvers.
type objectType map[string]fieldFunc

// field adapts a typed resolver to fieldFunc.
func field[T any](fn func(ctx context.Context, v T, args map[string]any) (any, error)) fieldFunc {
	return func(ctx context.Context, obj any, args map[string]any) (any, error) {
		v, ok := obj.(T)
		if !ok {
			return nil, fmt.Errorf("graph: expected %T, got %T", v, obj)
		}
		return fn(ctx, v, args)
	}
}

func scalar[T any](fn func(v T) any) fieldFunc {
	return field(func(_ context.Context, v T, _ map[string]any) (any, error) {
		return fn(v), nil
	})
}

func id(v int64) string { return strconv.FormatInt(v, 10) }

func timestamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func one[T any](v T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

func many[T any](vs []T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out, nil
}

// user queues userID on the participant loader.
func (r *Resolver) user(ctx context.Context, userID int64) thunk {
	load := r.svc.LoadParticipant(ctx, userID)
	return func() (any, error) {
		p, err := load()
		return one(p, err)
	}
}

func (r *Resolver) me(ctx context.Context) (int64, error) {
	if uid := r.viewer(ctx); uid > 0 {
		return uid, nil
	}
	return 0, &matching.Error{Kind: matching.ErrUnauthorized, Message: "Unauthorized."}
}

func (r *Resolver) objectTypes() map[string]objectType {
	return map[string]objectType{
		"Query": {
			"viewer": func(ctx context.Context, _ any, _ map[string]any) (any, error) {
				me, err := r.me(ctx)
				if err != nil {
					return nil, err
				}
				return r.user(ctx, me), nil
			},
			"profile": func(ctx context.Context, _ any, args map[string]any) (any, error) {
				if _, err := r.me(ctx); err != nil {
					return nil, err
				}
				userID, err := idArg(args, "userId")
				if err != nil {
					return nil, err
				}
				profile, err := r.svc.Profile(ctx, userID)
				return one(profile, err)
			},
			"feed": func(ctx context.Context, _ any, args map[string]any) (any, error) {
				me, err := r.me(ctx)
				if err != nil {
					return nil, err
				}
				limit, err := intArg(args, "limit")
				if err != nil {
					return nil, err
				}
				page, err := r.svc.FeedPage(ctx, me, limit)
				return many(page.Purposes, err)
			},
			"myPurposeInterests": func(ctx context.Context, _ any, _ map[string]any) (any, error) {
				me, err := r.me(ctx)
				if err != nil {
					return nil, err
				}
				interests, err := r.svc.ListInterestsForPoster(ctx, me)
				return many(interests, err)
			},
			"myPendingMatches": func(ctx context.Context, _ any, _ map[string]any) (any, error) {
				me, err := r.me(ctx)
				if err != nil {
					return nil, err
				}
				pending, err := r.svc.ListPendingForInterestedUser(ctx, me)
				return many(pending, err)
			},
			"mutualMatches": func(ctx context.Context, _ any, _ map[string]any) (any, error) {
				me, err := r.me(ctx)
				if err != nil {
					return nil, err
				}
				mutual, err := r.svc.ListMutualMatches(ctx, me)
				return many(mutual, err)
			},
			"chatHistory": func(ctx context.Context, _ any, args map[string]any) (any, error) {
				me, err := r.me(ctx)
				if err != nil {
					return nil, err
				}
				peer, err := idArg(args, "peerId")
				if err != nil {
					return nil, err
				}
				history, err := r.svc.History(ctx, me, peer)
				return many(history, err)
			},
		},
		"User": {
			"id":       scalar(func(p store.Participant) any { return id(p.UserID) }),
			"username": scalar(func(p store.Participant) any { return p.Username }),
			"bio":      scalar(func(p store.Participant) any { return p.Bio }),
			"imageUrl": scalar(func(p store.Participant) any { return p.ImageURL }),
		},
		"Profile": {
			"userId":   scalar(func(p matching.ProfileView) any { return id(p.UserID) }),
			"username": scalar(func(p matching.ProfileView) any { return p.Username }),
			"bio":      scalar(func(p matching.ProfileView) any { return p.Bio }),
			"imageUrl": scalar(func(p matching.ProfileView) any { return p.ImageURL }),
		},
		"Purpose": {
			"id":          scalar(func(p store.Purpose) any { return id(p.ID) }),
			"title":       scalar(func(p store.Purpose) any { return p.Title }),
			"description": scalar(func(p store.Purpose) any { return p.Description }),
			"createdAt":   scalar(func(p store.Purpose) any { return timestamp(p.CreatedAt) }),
			"owner": field(func(ctx context.Context, p store.Purpose, _ map[string]any) (any, error) {
				return r.user(ctx, p.OwnerID), nil
			}),
		},
		"PosterInterest": {
			"purposeId":          scalar(func(v matching.PosterInterest) any { return id(v.PurposeID) }),
			"purposeTitle":       scalar(func(v matching.PosterInterest) any { return v.PurposeTitle }),
			"purposeDescription": scalar(func(v matching.PosterInterest) any { return v.PurposeDescription }),
			"createdAt":          scalar(func(v matching.PosterInterest) any { return timestamp(v.CreatedAt) }),
			"interestedUser": field(func(ctx context.Context, v matching.PosterInterest, _ map[string]any) (any, error) {
				return r.user(ctx, v.InterestedUserID), nil
			}),
		},
		"PendingMatch": {
			"purposeId":          scalar(func(v matching.PendingMatch) any { return id(v.PurposeID) }),
			"purposeTitle":       scalar(func(v matching.PendingMatch) any { return v.PurposeTitle }),
			"purposeDescription": scalar(func(v matching.PendingMatch) any { return v.PurposeDescription }),
			"createdAt":          scalar(func(v matching.PendingMatch) any { return timestamp(v.CreatedAt) }),
			"poster": field(func(ctx context.Context, v matching.PendingMatch, _ map[string]any) (any, error) {
				return r.user(ctx, v.PosterID), nil
			}),
		},
		"MutualMatch": {
			"purposeId":          scalar(func(v matching.MutualMatch) any { return id(v.PurposeID) }),
			"purposeTitle":       scalar(func(v matching.MutualMatch) any { return v.PurposeTitle }),
			"purposeDescription": scalar(func(v matching.MutualMatch) any { return v.PurposeDescription }),
			"isPoster":           scalar(func(v matching.MutualMatch) any { return v.IsPoster }),
			"otherUser": field(func(ctx context.Context, v matching.MutualMatch, _ map[string]any) (any, error) {
				return r.user(ctx, v.OtherUserID), nil
			}),
		},
		"ChatMessage": {
			"id":        scalar(func(m matching.ChatEntry) any { return id(m.ID) }),
			"text":      scalar(func(m matching.ChatEntry) any { return m.Text }),
			"timestamp": scalar(func(m matching.ChatEntry) any { return timestamp(m.Timestamp) }),
			"sender": field(func(ctx context.Context, m matching.ChatEntry, _ map[string]any) (any, error) {
				return r.user(ctx, m.SenderID), nil
			}),
			"receiver": field(func(ctx context.Context, m matching.ChatEntry, _ map[string]any) (any, error) {
				return r.user(ctx, m.ReceiverID), nil
			}),
		},
	}
}

// presentError converts a resolver error into a client error. Service
// errors keep their message and get a code; anything else is logged and
// hidden.
func (r *Resolver) presentError(ctx context.Context, path ast.Path, err error) *gqlerror.Error {
	var gerr *gqlerror.Error
	if errors.As(err, &gerr) {
		if gerr.Path == nil {
			gerr.Path = path
		}
		return gerr
	}

	code := "INTERNAL_SERVER_ERROR"
	switch {
	case errors.Is(err, matching.ErrValidation):
		code = "BAD_USER_INPUT"
	case errors.Is(err, matching.ErrUnauthorized):
		code = "UNAUTHENTICATED"
	case errors.Is(err, matching.ErrForbidden):
		code = "FORBIDDEN"
	case errors.Is(err, matching.ErrNotFound):
		code = "NOT_FOUND"
	case errors.Is(err, matching.ErrConflict):
		code = "CONFLICT"
	}

	msg := matching.Message(err)
	if msg == "" {
		switch code {
		case "NOT_FOUND":
			msg = "Not found."
		default:
			r.log.Error(ctx, "graphql resolver failed", "path", path.String(), "error", err)
			code, msg = "INTERNAL_SERVER_ERROR", "Server error."
		}
	}
	return &gqlerror.Error{
		Err:        err,
		Message:    msg,
		Path:       path,
		Extensions: map[string]any{"code": code},
	}
}

func idArg(args map[string]any, name string) (int64, error) {
	var (
		n   int64
		err error
	)
	switch v := args[name].(type) {
	case string:
		n, err = strconv.ParseInt(v, 10, 64)
	case int64:
		n = v
	case int:
		n = int64(v)
	default:
		err = fmt.Errorf("unsupported type %T", v)
	}
	if err != nil || n <= 0 {
		return 0, &gqlerror.Error{
			Message:    fmt.Sprintf("Invalid %s.", name),
			Extensions: map[string]any{"code": "BAD_USER_INPUT"},
		}
	}
	return n, nil
}

// intArg reads an optional Int argument; absent or null reads as 0.
func intArg(args map[string]any, name string) (int, error) {
	switch v := args[name].(type) {
	case nil:
		return 0, nil
	case int64:
		return int(v), nil
	case int:
		return v, nil
	case float64:
		return int(v), nil
	case interface{ Int64() (int64, error) }:
		n, err := v.Int64()
		return int(n), err
	default:
		return 0, fmt.Errorf("argument %s: unsupported type %T", name, v)
	}
}
