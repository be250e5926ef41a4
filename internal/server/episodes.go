package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/earshotfm/earshot/internal/runtime"
	"github.com/earshotfm/earshot/internal/store"
)

// EpisodeStarter claims a signal batch and settles the episode in the
// background. Satisfied by pipeline.Generator.
type EpisodeStarter interface {
	Start(ctx context.Context, ownerID string, signalIDs []string) (store.Episode, error)
}

type EpisodesHandler struct {
	Store *store.Store
	// Generator is nil when synthesis providers or object storage are not
	// configured; generation requests then return 503.
	Generator EpisodeStarter
}

func (h *EpisodesHandler) Register(g *echo.Group) {
	g.POST("", h.generate)
	g.GET("", h.list)
	g.GET("/:id", h.get)
}

// Generate
//
//	@Summary		Generate an episode
//	@Description	Claims the selected signals and starts generation; returns the GENERATING episode
//	@Tags			episodes
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		GenerateEpisodeRequest	true	"Signal selection"
//	@Success		202		{object}	EpisodeResponse
//	@Failure		400		{object}	HTTPError
//	@Failure		404		{object}	HTTPError
//	@Failure		409		{object}	HTTPError
//	@Failure		503		{object}	HTTPError
//	@Router			/api/episodes [post]
func (h *EpisodesHandler) generate(c echo.Context) error {
	if h.Generator == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "episode generation is not configured")
	}
	var req GenerateEpisodeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.SignalIDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "signal_ids is required")
	}
	ep, err := h.Generator.Start(c.Request().Context(), runtime.UserID(c), req.SignalIDs)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, store.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "one or more signals not found")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusAccepted, episodeResponse(ep))
}

// List
//
//	@Summary	List episodes
//	@Tags		episodes
//	@Produce	json
//	@Param		limit	query		int	false	"Page size"
//	@Success	200		{array}		EpisodeResponse
//	@Router		/api/episodes [get]
func (h *EpisodesHandler) list(c echo.Context) error {
	limit := queryLimit(c, 50, 200)
	eps, err := h.Store.ListEpisodes(c.Request().Context(), runtime.UserID(c), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]EpisodeResponse, 0, len(eps))
	for _, ep := range eps {
		out = append(out, episodeResponse(ep))
	}
	return c.JSON(http.StatusOK, out)
}

// Get
//
//	@Summary	Get one episode
//	@Tags		episodes
//	@Produce	json
//	@Param		id	path		string	true	"Episode id"
//	@Success	200	{object}	EpisodeResponse
//	@Failure	404	{object}	HTTPError
//	@Router		/api/episodes/{id} [get]
func (h *EpisodesHandler) get(c echo.Context) error {
	ep, ok, err := h.Store.GetEpisodeForOwner(c.Request().Context(), c.Param("id"), runtime.UserID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "episode not found")
	}
	return c.JSON(http.StatusOK, episodeResponse(ep))
}
