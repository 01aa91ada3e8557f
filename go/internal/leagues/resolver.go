// Package leagues resolves per-league timer settings stored in leagues.league_settings.
package leagues

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguetimers/go/internal/db"
	"github.com/mcdev12/leaguetimers/go/internal/engineerr"
	"github.com/mcdev12/leaguetimers/go/internal/models"
	"github.com/mcdev12/leaguetimers/go/internal/sqlutil"
)

// Resolver overlays league overrides on the engine defaults
type Resolver struct {
	defaults models.TimerConfig
}

func NewResolver(defaults models.TimerConfig) *Resolver {
	return &Resolver{defaults: defaults}
}

func (r *Resolver) Defaults() models.TimerConfig {
	return r.defaults
}

// TimerConfig returns the effective configuration for leagueID. A league without a
// settings row gets the defaults; unreadable settings are a data integrity error.
func (r *Resolver) TimerConfig(ctx context.Context, q db.Querier, leagueID uuid.UUID) (models.TimerConfig, error) {
	raw, err := q.GetLeagueSettings(ctx, leagueID)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug().Str("league_id", leagueID.String()).Msg("league not found, using default timer settings")
		return r.defaults, nil
	}
	if err != nil {
		return r.defaults, fmt.Errorf("failed to get league settings: %w", sqlutil.Classify(err))
	}
	return r.FromSettings(leagueID, raw)
}

// FromSettings overlays raw league_settings on the defaults. Empty input yields the
// defaults. On error the defaults are returned alongside a data integrity error.
func (r *Resolver) FromSettings(leagueID uuid.UUID, raw []byte) (models.TimerConfig, error) {
	settings, err := models.ParseLeagueSettings(raw)
	if err != nil {
		return r.defaults, engineerr.DataIntegrity("league %s: %v", leagueID, err)
	}
	cfg, err := settings.Timers.Apply(r.defaults)
	if err != nil {
		return r.defaults, engineerr.DataIntegrity("league %s: %v", leagueID, err)
	}
	return cfg, nil
}
