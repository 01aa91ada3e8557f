package api

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"
)

// Pinger reports storage health
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHandler mounts every engine procedure and /health on one mux.
func NewHandler(svc *Service, pinger Pinger) http.Handler {
	mux := http.NewServeMux()
	opts := []connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(logErrors()),
	}

	mux.Handle(RunSweepProcedure, connect.NewUnaryHandler(RunSweepProcedure, svc.RunSweep, opts...))
	mux.Handle(CloseExpiredAuctionsProcedure, connect.NewUnaryHandler(CloseExpiredAuctionsProcedure, svc.CloseExpiredAuctions, opts...))
	mux.Handle(ExpireResponseTimersProcedure, connect.NewUnaryHandler(ExpireResponseTimersProcedure, svc.ExpireResponseTimers, opts...))
	mux.Handle(ProcessExpiredComplianceTimersProcedure, connect.NewUnaryHandler(ProcessExpiredComplianceTimersProcedure, svc.ProcessExpiredComplianceTimers, opts...))
	mux.Handle(ResolveResponseTimerProcedure, connect.NewUnaryHandler(ResolveResponseTimerProcedure, svc.ResolveResponseTimer, opts...))
	mux.Handle(StartComplianceTimerProcedure, connect.NewUnaryHandler(StartComplianceTimerProcedure, svc.StartComplianceTimer, opts...))
	mux.Handle(ClearComplianceTimerProcedure, connect.NewUnaryHandler(ClearComplianceTimerProcedure, svc.ClearComplianceTimer, opts...))
	mux.Handle(GetAuctionCountdownProcedure, connect.NewUnaryHandler(GetAuctionCountdownProcedure, svc.GetAuctionCountdown, opts...))
	mux.Handle(GetComplianceStateProcedure, connect.NewUnaryHandler(GetComplianceStateProcedure, svc.GetComplianceState, opts...))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if pinger != nil {
			if err := pinger.Ping(ctx); err != nil {
				log.Error().Err(err).Msg("health check failed")
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	return mux
}
