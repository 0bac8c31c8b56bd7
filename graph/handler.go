// Package graph serves the read views of the matching service over GraphQL.
package graph

import (
	"context"

	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/extension"
	"github.com/99designs/gqlgen/graphql/handler/transport"

	"gitea.kood.tech/petrkubec/purpose-match/backend/logging"
	"gitea.kood.tech/petrkubec/purpose-match/backend/matching"
)

// MaxComplexity bounds a single query. A default feed page with owners
// stays well under it.
const MaxComplexity = 1000

// NewHandler returns the /graphql handler. Requests must already carry the
// viewer and the request loaders in their context.
func NewHandler(svc *matching.Service, viewer func(context.Context) int64, log logging.Logger) *handler.Server {
	srv := handler.New(NewExecutableSchema(NewResolver(svc, viewer, log)))
	srv.AddTransport(transport.GET{})
	srv.AddTransport(transport.POST{})
	srv.Use(extension.FixedComplexityLimit(MaxComplexity))
	return srv
}
