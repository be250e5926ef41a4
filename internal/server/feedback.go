package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/earshotfm/earshot/config"
	"github.com/earshotfm/earshot/internal/ratelimit"
	"github.com/earshotfm/earshot/internal/runtime"
	"github.com/earshotfm/earshot/internal/store"
)

const maxFeedbackBytes = 16 << 10

type FeedbackHandler struct {
	Store  *store.Store
	Limits *ratelimit.Limiter
	Rate   config.RateSetting
}

// Register wires feedback and questionnaire routes onto the authenticated
// API group.
func (h *FeedbackHandler) Register(g *echo.Group) {
	g.POST("/feedback", h.create)
	g.GET("/feedback", h.list, runtime.RequireScopes(runtime.ScopeAdmin))
	g.POST("/questionnaire", h.questionnaire)
}

// Create
//
//	@Summary	Leave product feedback
//	@Tags		feedback
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		FeedbackRequest	true	"Feedback payload"
//	@Success	201		{object}	FeedbackResponse
//	@Failure	400		{object}	HTTPError
//	@Failure	429		{object}	HTTPError
//	@Router		/api/feedback [post]
func (h *FeedbackHandler) create(c echo.Context) error {
	userID := runtime.UserID(c)
	if err := checkRate(c, h.Limits, "feedback", userID, h.Rate); err != nil {
		return err
	}
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "body is required")
	}
	if len(body) > maxFeedbackBytes {
		return echo.NewHTTPError(http.StatusBadRequest, "body is too long")
	}
	fb, err := h.Store.CreateFeedback(c.Request().Context(), userID, body)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, feedbackResponse(fb))
}

// List
//
//	@Summary	List feedback notes
//	@Tags		feedback
//	@Produce	json
//	@Param		limit	query	int	false	"Page size"
//	@Success	200		{array}	FeedbackResponse
//	@Failure	403		{object}	HTTPError
//	@Router		/api/feedback [get]
func (h *FeedbackHandler) list(c echo.Context) error {
	limit := queryLimit(c, 100, 500)
	notes, err := h.Store.ListFeedback(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]FeedbackResponse, 0, len(notes))
	for _, fb := range notes {
		out = append(out, feedbackResponse(fb))
	}
	return c.JSON(http.StatusOK, out)
}

// Questionnaire
//
//	@Summary	Store onboarding answers
//	@Tags		feedback
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		QuestionnaireRequest	true	"Answers payload"
//	@Success	201		{object}	QuestionnaireResponse
//	@Failure	400		{object}	HTTPError
//	@Router		/api/questionnaire [post]
func (h *FeedbackHandler) questionnaire(c echo.Context) error {
	var req QuestionnaireRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Answers) == 0 || !json.Valid(req.Answers) {
		return echo.NewHTTPError(http.StatusBadRequest, "answers must be a json document")
	}
	q, err := h.Store.CreateQuestionnaire(c.Request().Context(), runtime.UserID(c), req.Answers)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, QuestionnaireResponse{ID: q.ID, CreatedAt: q.CreatedAt})
}
