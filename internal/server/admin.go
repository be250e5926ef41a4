package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/earshotfm/earshot/config"
	"github.com/earshotfm/earshot/internal/access"
	"github.com/earshotfm/earshot/internal/events"
	"github.com/earshotfm/earshot/internal/pipeline"
	"github.com/earshotfm/earshot/internal/ratelimit"
	"github.com/earshotfm/earshot/internal/runtime"
	"github.com/earshotfm/earshot/internal/search"
	"github.com/earshotfm/earshot/internal/store"
)

var adminActions = []string{
	"delete-episode",
	"delete-user",
	"delete-questionnaire",
	"delete-feedback",
	"delete-access-request",
	"skip-signal",
}

type AdminHandler struct {
	Store      *store.Store
	Search     *search.Index
	Access     *access.Client
	Events     pipeline.EventSink // nil when redis is not configured
	Revocation *runtime.RevocationCache
	Limits     *ratelimit.Limiter
	Rate       config.RateSetting
	Logger     *log.Logger
}

func (h *AdminHandler) Register(g *echo.Group) {
	g.POST("/actions", h.actions)
}

// Actions
//
//	@Summary		Apply an administrative action
//	@Description	Discriminated by the action field; id addresses the target entity
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		AdminActionRequest	true	"Action payload"
//	@Success		200		{object}	AdminActionResponse
//	@Failure		400		{object}	HTTPError
//	@Failure		404		{object}	HTTPError
//	@Failure		409		{object}	HTTPError
//	@Failure		501		{object}	HTTPError
//	@Failure		502		{object}	HTTPError
//	@Router			/api/admin/actions [post]
func (h *AdminHandler) actions(c echo.Context) error {
	if err := checkRate(c, h.Limits, "admin", runtime.UserID(c), h.Rate); err != nil {
		return err
	}
	var req AdminActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Action = strings.TrimSpace(req.Action)
	req.ID = strings.TrimSpace(req.ID)
	if req.Action == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "action is required")
	}
	if req.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}

	ctx := c.Request().Context()
	var err error
	switch req.Action {
	case "delete-episode":
		err = h.deleteEpisode(ctx, req.ID)
	case "delete-user":
		err = h.deleteUser(ctx, req.ID)
	case "delete-questionnaire":
		err = h.deleteRow(ctx, "questionnaire", req.ID, h.Store.DeleteQuestionnaire)
	case "delete-feedback":
		err = h.deleteRow(ctx, "feedback", req.ID, h.Store.DeleteFeedback)
	case "delete-access-request":
		err = h.deleteAccessRequest(ctx, req.ID)
	case "skip-signal":
		err = h.skipSignal(ctx, req.ID)
	default:
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("unknown action %q (valid: %s)", req.Action, strings.Join(adminActions, ", ")))
	}
	if err != nil {
		return err
	}
	adminActionsTotal.WithLabelValues(req.Action).Inc()
	logf(h.Logger, "applied %s to %s", req.Action, req.ID)
	return c.JSON(http.StatusOK, AdminActionResponse{Action: req.Action, ID: req.ID, Status: "ok"})
}

// deleteEpisode releases the episode's signals and removes it, whatever state
// it is in. A racing generator observes the missing row and stops.
func (h *AdminHandler) deleteEpisode(ctx context.Context, id string) error {
	ep, ok, err := h.Store.GetEpisode(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "episode not found")
	}
	deleted, err := h.Store.DeleteEpisodeCascade(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return echo.NewHTTPError(http.StatusNotFound, "episode not found")
	}
	h.publish(events.TypeEpisodeArchived, events.EpisodePayload{
		EpisodeID: id,
		OwnerID:   ep.OwnerID,
		Status:    string(store.EpisodeArchived),
	})
	return nil
}

func (h *AdminHandler) deleteUser(ctx context.Context, id string) error {
	ok, err := h.Store.DeleteUserCascade(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	if h.Revocation != nil {
		h.Revocation.Invalidate(ctx, id)
	}
	h.Search.DropOwner(id)
	h.publish(events.TypeUserDeleted, events.UserPayload{UserID: id})
	return nil
}

func (h *AdminHandler) deleteRow(ctx context.Context, kind, id string, del func(context.Context, string) (bool, error)) error {
	ok, err := del(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, kind+" not found")
	}
	return nil
}

func (h *AdminHandler) deleteAccessRequest(ctx context.Context, id string) error {
	err := h.Access.DeleteAccessRequest(ctx, id)
	var upstream *store.UpstreamError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, access.ErrUnsupported):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	case errors.As(err, &upstream):
		return echo.NewHTTPError(http.StatusBadGateway, upstream.Error())
	default:
		return err
	}
}

func (h *AdminHandler) skipSignal(ctx context.Context, id string) error {
	sg, err := h.Store.SkipSignal(ctx, id)
	switch {
	case err == nil:
		if err := h.Search.Remove(sg.OwnerID, sg.ID); err != nil {
			logf(h.Logger, "unindex signal %s: %v", sg.ID, err)
		}
		return nil
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "signal not found")
	case errors.Is(err, store.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "signal is claimed by an episode")
	default:
		return err
	}
}

func (h *AdminHandler) publish(eventType string, payload interface{}) {
	if h.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := h.Events.Publish(ctx, eventType, payload); err != nil {
		logf(h.Logger, "publish %s: %v", eventType, err)
	}
}
