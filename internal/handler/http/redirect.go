package http

import (
	"Clixy-Backend/internal/analytics"
	"Clixy-Backend/internal/domain"
	"Clixy-Backend/internal/ratelimit"
	"Clixy-Backend/internal/repository"
	_ "embed"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

//go:embed notfound.html
var notFoundPage []byte

// ClickSubmitter accepts clicks for background processing.
type ClickSubmitter interface {
	SubmitClick(clickData *analytics.ClickData) error
}

// RedirectHandler обработчик редиректов
type RedirectHandler struct {
	links     repository.LinkReader
	limiter   ratelimit.Limiter
	processor ClickSubmitter
	log       *zap.Logger
}

// NewRedirectHandler создает новый обработчик редиректов
func NewRedirectHandler(links repository.LinkReader, limiter ratelimit.Limiter, processor ClickSubmitter, log *zap.Logger) *RedirectHandler {
	return &RedirectHandler{
		links:     links,
		limiter:   limiter,
		processor: processor,
		log:       log,
	}
}

// HandleRedirect godoc
// @Summary      Follow a tracking link
// @Description  Redirects to the destination of the link and records the click in the background.
// @Tags         redirect
// @Param        slug  path  string  true  "Link slug"
// @Success      302
// @Failure      404  {string}  string  "HTML page"
// @Failure      429  {string}  string  "Too Many Requests"
// @Router       /r/{slug} [get]
func (h *RedirectHandler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	log := h.log.With(zap.String("slug", slug))

	decision, err := h.limiter.Allow(r.Context(), slug)
	if err != nil {
		// Limiter errors fail open.
		log.Error("rate limiter failed, allowing request", zap.Error(err))
	} else if !decision.Allow {
		log.Debug("slug rate limited", zap.Duration("retry_after", decision.RetryAfter))
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("Too Many Requests"))
		return
	}

	link, err := h.links.GetLinkBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			log.Debug("slug not found")
		} else {
			log.Error("failed to look up link", zap.Error(err))
		}
		writeNotFound(w)
		return
	}

	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Location", link.DestinationURL)
	w.WriteHeader(http.StatusFound)

	if err := h.processor.SubmitClick(snapshotClick(r, link)); err != nil {
		log.Warn("click not captured", zap.Error(err))
	}
}

// snapshotClick copies what the worker needs out of r. Credentials are dropped from the header copy.
func snapshotClick(r *http.Request, link *domain.Link) *analytics.ClickData {
	header := r.Header.Clone()
	header.Del("Cookie")
	header.Del("Authorization")

	return &analytics.ClickData{
		LinkID:     link.ID,
		Slug:       link.Slug,
		UserAgent:  headerValue(r.Header, "User-Agent"),
		Referrer:   headerValue(r.Header, "Referer", "Referrer"),
		Header:     header,
		RemoteAddr: r.RemoteAddr,
	}
}

// headerValue returns the first non-empty value among names, or nil.
func headerValue(h http.Header, names ...string) *string {
	for _, name := range names {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return &v
		}
	}
	return nil
}

func writeNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write(notFoundPage)
}
