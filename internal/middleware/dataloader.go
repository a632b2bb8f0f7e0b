package middleware

import (
	"context"
	"net/http"

	"github.com/rpattn/homegraph/internal/entityloader"
	"github.com/rpattn/homegraph/internal/repository"
)

type ctxKey string

const entityLoaderKey ctxKey = "entityLoader"

// DataLoaderMiddleware attaches a fresh per-request entity loader to the
// request context, so batching never leaks cached entities across requests.
func DataLoaderMiddleware(entities repository.EntityStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := entityloader.NewEntityLoader(entities)
			ctx := context.WithValue(r.Context(), entityLoaderKey, loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EntityLoaderFromContext retrieves the per-request entity loader, nil when
// the middleware is not installed.
func EntityLoaderFromContext(ctx context.Context) *entityloader.EntityLoader {
	if l, ok := ctx.Value(entityLoaderKey).(*entityloader.EntityLoader); ok {
		return l
	}
	return nil
}
