package server

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/earshotfm/earshot/config"
	"github.com/earshotfm/earshot/internal/ratelimit"
	"github.com/earshotfm/earshot/internal/runtime"
	"github.com/earshotfm/earshot/internal/search"
	"github.com/earshotfm/earshot/internal/store"
)

type SignalsHandler struct {
	Store   *store.Store
	Search  *search.Index
	Limits  *ratelimit.Limiter
	Capture config.RateSetting
	Logger  *log.Logger
}

func (h *SignalsHandler) Register(g *echo.Group) {
	g.POST("", h.capture)
	g.GET("", h.list)
	g.GET("/search", h.search)
}

// Capture
//
//	@Summary		Capture a signal
//	@Description	Record one fragment of interest for later episode generation
//	@Tags			signals
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		CaptureSignalRequest	true	"Signal payload"
//	@Success		201		{object}	SignalResponse
//	@Failure		400		{object}	HTTPError
//	@Failure		429		{object}	HTTPError
//	@Router			/api/signals [post]
func (h *SignalsHandler) capture(c echo.Context) error {
	userID := runtime.UserID(c)
	if err := checkRate(c, h.Limits, "capture", userID, h.Capture); err != nil {
		return err
	}
	var req CaptureSignalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.RawContent) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "raw_content is required")
	}
	frag := store.SignalFragment{
		Channel:    valueOr(req.Channel, "web"),
		InputType:  valueOr(req.InputType, "text"),
		RawContent: req.RawContent,
		URL:        optString(req.URL),
		Title:      optString(req.Title),
		Topics:     req.Topics,
	}
	sg, err := h.Store.CreateSignal(c.Request().Context(), userID, frag)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.Search.Add(sg); err != nil {
		logf(h.Logger, "index signal %s: %v", sg.ID, err)
	}
	return c.JSON(http.StatusCreated, signalResponse(sg))
}

// List
//
//	@Summary	List signals
//	@Tags		signals
//	@Produce	json
//	@Param		status	query		string	false	"Filter by status"
//	@Param		limit	query		int		false	"Page size"
//	@Success	200		{array}		SignalResponse
//	@Failure	400		{object}	HTTPError
//	@Router		/api/signals [get]
func (h *SignalsHandler) list(c echo.Context) error {
	userID := runtime.UserID(c)
	var status store.SignalStatus
	if raw := c.QueryParam("status"); raw != "" {
		parsed, err := store.ParseSignalStatus(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		status = parsed
	}
	limit := queryLimit(c, 50, 200)
	sigs, err := h.Store.ListSignals(c.Request().Context(), userID, status, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]SignalResponse, 0, len(sigs))
	for _, sg := range sigs {
		out = append(out, signalResponse(sg))
	}
	return c.JSON(http.StatusOK, out)
}

// Search
//
//	@Summary	Search captured signals
//	@Tags		signals
//	@Produce	json
//	@Param		q		query		string	true	"Query string"
//	@Param		limit	query		int		false	"Result cap"
//	@Success	200		{array}		SignalSearchResult
//	@Failure	400		{object}	HTTPError
//	@Router		/api/signals/search [get]
func (h *SignalsHandler) search(c echo.Context) error {
	userID := runtime.UserID(c)
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	limit := queryLimit(c, 20, 50)
	hits, err := h.Search.Search(c.Request().Context(), userID, q, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		ids = append(ids, hit.SignalID)
	}
	sigs, err := h.Store.GetSignalsByID(c.Request().Context(), userID, ids)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	byID := make(map[string]store.Signal, len(sigs))
	for _, sg := range sigs {
		byID[sg.ID] = sg
	}
	// The index can be a step behind the store; drop hits with no backing row.
	out := make([]SignalSearchResult, 0, len(hits))
	for _, hit := range hits {
		sg, ok := byID[hit.SignalID]
		if !ok {
			continue
		}
		out = append(out, SignalSearchResult{Signal: signalResponse(sg), Score: hit.Score, Snippet: hit.Snippet})
	}
	return c.JSON(http.StatusOK, out)
}

func valueOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// queryLimit parses the limit query parameter, clamped to (0, max].
func queryLimit(c echo.Context, def, max int) int {
	raw := c.QueryParam("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
