package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader/v7"

	"gitea.kood.tech/petrkubec/purpose-match/backend/store"
)

type loadersKey struct{}

// Loaders batches participant lookups made while serving one request.
type Loaders struct {
	Participants *dataloader.Loader[int64, store.Participant]
}

// NewLoaders creates request-scoped loaders backed by the service store.
func (s *Service) NewLoaders() *Loaders {
	return &Loaders{
		Participants: dataloader.NewBatchedLoader(
			participantBatchFn(s.store),
			dataloader.WithWait[int64, store.Participant](2*time.Millisecond),
		),
	}
}

// WithLoaders attaches l to ctx so every lookup in the request shares one
// cache.
func WithLoaders(ctx context.Context, l *Loaders) context.Context {
	return context.WithValue(ctx, loadersKey{}, l)
}

// loaders returns the loaders attached to ctx, or fresh ones.
func (s *Service) loaders(ctx context.Context) *Loaders {
	if l, ok := ctx.Value(loadersKey{}).(*Loaders); ok && l != nil {
		return l
	}
	return s.NewLoaders()
}

func participantBatchFn(st store.Store) dataloader.BatchFunc[int64, store.Participant] {
	return func(ctx context.Context, keys []int64) []*dataloader.Result[store.Participant] {
		results := make([]*dataloader.Result[store.Participant], len(keys))

		found, err := st.Participants(ctx, keys)
		for i, id := range keys {
			switch p, ok := found[id]; {
			case err != nil:
				results[i] = &dataloader.Result[store.Participant]{Error: err}
			case ok:
				results[i] = &dataloader.Result[store.Participant]{Data: p}
			default:
				results[i] = &dataloader.Result[store.Participant]{
					Error: fmt.Errorf("participant %d: %w", id, store.ErrNotFound),
				}
			}
		}
		return results
	}
}

// participants resolves ids in one batch. Ids are queued before any thunk is
// awaited so the loader sees them together.
func (s *Service) participants(ctx context.Context, ids []int64) (map[int64]store.Participant, error) {
	l := s.loaders(ctx)
	thunks := make([]dataloader.Thunk[store.Participant], len(ids))
	for i, id := range ids {
		thunks[i] = l.Participants.Load(ctx, id)
	}

	out := make(map[int64]store.Participant, len(ids))
	for i, thunk := range thunks {
		p, err := thunk()
		if err != nil {
			return nil, fmt.Errorf("load participant %d: %w", ids[i], err)
		}
		out[ids[i]] = p
	}
	return out, nil
}

// LoadParticipant queues userID on the request loader and returns a thunk
// for its display data. Callers resolving many users should queue them all
// before awaiting the first thunk.
func (s *Service) LoadParticipant(ctx context.Context, userID int64) func() (store.Participant, error) {
	return s.loaders(ctx).Participants.Load(ctx, userID)
}
