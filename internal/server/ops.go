package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/earshotfm/earshot/internal/pipeline"
	"github.com/earshotfm/earshot/internal/store"
)

// StuckReaper settles episodes whose generation died mid flight. Satisfied
// by pipeline.Reaper.
type StuckReaper interface {
	ReapStuck(ctx context.Context) ([]store.Episode, error)
}

type OpsHandler struct {
	Store  *store.Store
	Reaper StuckReaper
	// Stuck and Window mirror the pipeline thresholds so the snapshot and
	// the reaper agree on what counts as a zombie.
	Stuck  time.Duration
	Window time.Duration
	Logger *log.Logger
}

func (h *OpsHandler) Register(g *echo.Group) {
	g.GET("/stats", h.stats)
}

// Stats
//
//	@Summary		Pipeline overview
//	@Description	Reaps stuck episodes opportunistically, then reports health and status totals
//	@Tags			ops
//	@Produce		json
//	@Success		200	{object}	OpsStatsResponse
//	@Failure		403	{object}	HTTPError
//	@Router			/api/ops/stats [get]
func (h *OpsHandler) stats(c echo.Context) error {
	ctx := c.Request().Context()

	// A stats pull doubles as a recovery sweep; reap failures degrade the
	// numbers, never the endpoint.
	reaped := 0
	if h.Reaper != nil {
		zombies, err := h.Reaper.ReapStuck(ctx)
		if err != nil {
			logf(h.Logger, "opportunistic reap: %v", err)
		}
		reaped = len(zombies)
	}

	now := time.Now().UTC()
	snap, err := h.Store.LoadHealthSnapshot(ctx, now.Add(-h.Stuck), now.Add(-h.Window))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	epCounts, err := h.Store.EpisodeStatusCounts(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	sigCounts, err := h.Store.SignalStatusCounts(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	total := 0
	for _, n := range epCounts {
		total += n
	}
	return c.JSON(http.StatusOK, OpsStatsResponse{
		Health: string(pipeline.Health(snap)),
		Reaped: reaped,
		Episodes: EpisodeTotals{
			Total:      total,
			Ready:      epCounts[store.EpisodeReady],
			Failed:     epCounts[store.EpisodeFailed],
			Generating: epCounts[store.EpisodeGenerating] + epCounts[store.EpisodeSynthesizing],
		},
		Signals: SignalTotals{
			Queued:   sigCounts[store.SignalQueued],
			Enriched: sigCounts[store.SignalEnriched],
			Pending:  sigCounts[store.SignalPending],
			Used:     sigCounts[store.SignalUsed],
		},
		LastReadyAt: snap.LastReadyAt,
	})
}
