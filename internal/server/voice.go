package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/earshotfm/earshot/config"
	"github.com/earshotfm/earshot/internal/ratelimit"
	"github.com/earshotfm/earshot/internal/runtime"
	"github.com/earshotfm/earshot/internal/store"
	"github.com/earshotfm/earshot/internal/voicecache"
)

// VoiceSampler resolves narrator preview clips. Satisfied by
// voicecache.Cache.
type VoiceSampler interface {
	GetSample(ctx context.Context, voiceKey string) (voicecache.Sample, error)
}

type VoiceHandler struct {
	// Cache is nil when speech synthesis or object storage is not
	// configured; sample requests then return 503.
	Cache  VoiceSampler
	Limits *ratelimit.Limiter
	Rate   config.RateSetting
}

func (h *VoiceHandler) Register(g *echo.Group) {
	g.GET("", h.catalog)
	g.GET("/sample", h.sample)
}

// Catalog
//
//	@Summary	List narrator voices
//	@Tags		voice
//	@Produce	json
//	@Success	200	{array}	VoiceResponse
//	@Router		/api/voice [get]
func (h *VoiceHandler) catalog(c echo.Context) error {
	voices := voicecache.Voices()
	out := make([]VoiceResponse, 0, len(voices))
	for _, v := range voices {
		out = append(out, VoiceResponse{Key: v.Key, Name: v.Name})
	}
	return c.JSON(http.StatusOK, out)
}

// Sample
//
//	@Summary		Narrator preview clip
//	@Description	Returns the public URL of a short sample for the voice, generating it on first request
//	@Tags			voice
//	@Produce		json
//	@Param			voice	query		string	true	"Voice key"
//	@Success		200		{object}	VoiceSampleResponse
//	@Failure		400		{object}	HTTPError
//	@Failure		429		{object}	HTTPError
//	@Failure		502		{object}	HTTPError
//	@Failure		503		{object}	HTTPError
//	@Router			/api/voice/sample [get]
func (h *VoiceHandler) sample(c echo.Context) error {
	if err := checkRate(c, h.Limits, "voice", runtime.UserID(c), h.Rate); err != nil {
		return err
	}
	voice := c.QueryParam("voice")
	if voice == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "voice is required")
	}
	if h.Cache == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "voice samples are not configured")
	}
	sample, err := h.Cache.GetSample(c.Request().Context(), voice)
	if err != nil {
		var upstream *store.UpstreamError
		switch {
		case errors.Is(err, voicecache.ErrUnknownVoice):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.As(err, &upstream):
			return echo.NewHTTPError(http.StatusBadGateway, upstream.Error())
		case errors.Is(err, context.DeadlineExceeded):
			return echo.NewHTTPError(http.StatusGatewayTimeout, "sample generation timed out")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, VoiceSampleResponse{URL: sample.URL, Cached: sample.Cached})
}
