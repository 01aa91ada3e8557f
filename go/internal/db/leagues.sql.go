package db

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

const getLeagueSettings = `-- name: GetLeagueSettings :one
SELECT league_settings
FROM leagues
WHERE id = $1
`

func (q *Queries) GetLeagueSettings(ctx context.Context, id uuid.UUID) (json.RawMessage, error) {
	row := q.db.QueryRowContext(ctx, getLeagueSettings, id)
	var league_settings json.RawMessage
	err := row.Scan(&league_settings)
	return league_settings, err
}
