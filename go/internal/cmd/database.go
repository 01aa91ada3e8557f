package main

import (
	"context"
	"database/sql"

	"github.com/mcdev12/leaguetimers/go/internal/dbconfig"
)

func setupDatabase(ctx context.Context) (*sql.DB, error) {
	return dbconfig.NewConfigFromEnv().Open(ctx)
}
