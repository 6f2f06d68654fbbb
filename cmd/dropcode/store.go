package main

import (
	"context"
	"io"

	"github.com/pavel-fokin/dropcode/internal/content"
	"github.com/pavel-fokin/dropcode/internal/postgres"
	"github.com/pavel-fokin/dropcode/internal/sqlite"
)

type store interface {
	content.Repository
	io.Closer
}

// openStore picks the content store from the URL scheme. Anything that is
// not a PostgreSQL URL is treated as a SQLite path.
func openStore(ctx context.Context, url string) (store, error) {
	if postgres.IsURL(url) {
		repo, err := postgres.NewRepository(ctx, url)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
	repo, err := sqlite.NewRepository(url)
	if err != nil {
		return nil, err
	}
	return repo, nil
}
