package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sagarc03/burndrop"
)

// PasswordHeader carries the share password on info and download requests.
const PasswordHeader = "X-Share-Password"

// RemainingHeader reports the downloads left after a granted download.
const RemainingHeader = "X-Downloads-Remaining"

const (
	DefaultStatsInterval = 5 * time.Second

	multipartMemory = 8 << 20
	// formOverhead is the room left for multipart boundaries and the text
	// fields on top of the file itself.
	formOverhead = 64 << 10
)

type Service interface {
	Upload(ctx context.Context, req burndrop.UploadRequest, content io.Reader) (burndrop.UploadResult, error)
	Resolve(ctx context.Context, id, password string) (burndrop.ResolveResult, error)
	Info(ctx context.Context, id, password string) (burndrop.ShareInfo, error)
	Stats(ctx context.Context) (burndrop.Stats, error)
}

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" validate:"gte=0"`
}

type HandlerConfig struct {
	// MaxUploadSize caps the size of an uploaded file; 0 disables the cap.
	MaxUploadSize int64
	// ConcealAuthErrors answers password_required and password_invalid
	// with the same 404 as a missing share.
	ConcealAuthErrors bool
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy    bool
	CORS          CORSConfig
	Limiter       *AttemptLimiter
	StatsInterval time.Duration
	// Ready is called by /healthz when set.
	Ready  func(ctx context.Context) error
	Logger *slog.Logger
}

// Handler serves the share API.
type Handler struct {
	config   HandlerConfig
	service  Service
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new Handler with the given configuration and service.
func NewHandler(config *HandlerConfig, service Service) *Handler {
	h := &Handler{
		config:  *config,
		service: service,
		logger:  config.Logger,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.config.StatsInterval <= 0 {
		h.config.StatsInterval = DefaultStatsInterval
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Router returns an http.Handler with every route of the API mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	if h.config.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(MetricsMiddleware(), RequestLogger(h.logger))

	if h.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.CORS.AllowedOrigins,
			AllowedMethods:   h.config.CORS.AllowedMethods,
			AllowedHeaders:   h.config.CORS.AllowedHeaders,
			ExposedHeaders:   h.config.CORS.ExposedHeaders,
			AllowCredentials: h.config.CORS.AllowCredentials,
			MaxAge:           h.config.CORS.MaxAge,
		}))
	}

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/shares", h.handleUpload)
		r.Get("/shares/{id}", h.handleInfo)
		r.Get("/shares/{id}/download", h.handleDownload)
		r.Post("/shares/{id}/download", h.handleDownload)
		r.Get("/stats", h.handleStats)
		r.Get("/stats/live", h.handleStatsLive)
	})

	return r
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if h.config.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadSize+formOverhead)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "too_large",
				fmt.Sprintf("Upload exceeds %d bytes", h.config.MaxUploadSize))
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_request", "Expected a multipart/form-data body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	form, err := parseUploadForm(r.MultipartForm.Value)
	if err != nil {
		h.handleError(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Missing file field")
		return
	}
	defer func() { _ = file.Close() }()

	contentType := header.Header.Get("Content-Type")
	if contentType == "application/octet-stream" {
		contentType = ""
	}

	result, err := h.service.Upload(r.Context(), burndrop.UploadRequest{
		Name:         header.Filename,
		ContentType:  contentType,
		TTL:          form.TTL,
		Password:     form.Password,
		MaxDownloads: form.MaxDownloads,
	}, file)
	if err != nil {
		h.handleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	password := sharePassword(r)
	settle, ok := h.checkAttempts(w, r, id, password)
	if !ok {
		return
	}

	info, err := h.service.Info(r.Context(), id, password)
	settle(err)
	if err != nil {
		h.handleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, info)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	password := sharePassword(r)
	settle, ok := h.checkAttempts(w, r, id, password)
	if !ok {
		return
	}

	res, err := h.service.Resolve(r.Context(), id, password)
	settle(err)
	if err != nil {
		h.handleError(w, err)
		return
	}
	defer func() { _ = res.Content.Close() }()

	contentType := res.Share.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": res.Share.Name})
	if disposition == "" {
		disposition = "attachment"
	}

	hdr := w.Header()
	hdr.Set("Content-Type", contentType)
	hdr.Set("Content-Length", strconv.FormatInt(res.Share.SizeBytes, 10))
	hdr.Set("Content-Disposition", disposition)
	hdr.Set("Cache-Control", "no-store")
	hdr.Set("X-Content-Type-Options", "nosniff")
	if remaining, limited := res.Remaining(); limited {
		hdr.Set(RemainingHeader, strconv.Itoa(remaining))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, res.Content); err != nil {
		h.logger.Warn("download interrupted", slog.String("error", err.Error()))
	}
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.config.Ready != nil {
		if err := h.config.Ready(r.Context()); err != nil {
			h.logger.Warn("health check failed", slog.String("error", err.Error()))
			WriteError(w, http.StatusServiceUnavailable, "unavailable", "Store unavailable")
			return
		}
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// checkAttempts refuses the request with 429 once the client used up its
// wrong-password budget for the share. A request carrying a password
// reserves one attempt before the service checks it; the returned settle
// func must be called with the outcome. Requests without a password are
// not guesses and only need the budget to be unspent.
func (h *Handler) checkAttempts(w http.ResponseWriter, r *http.Request, id, password string) (func(error), bool) {
	key := id + "|" + clientIP(r)
	limiter := h.config.Limiter

	if password == "" {
		if !limiter.Allow(key) {
			h.handleError(w, ErrTooManyAttempts)
			return nil, false
		}
		return func(error) {}, true
	}

	if !limiter.Reserve(key) {
		h.handleError(w, ErrTooManyAttempts)
		return nil, false
	}
	return func(err error) {
		reason, denied := burndrop.DeniedReason(err)
		limiter.Release(key, denied && reason == burndrop.ReasonPasswordInvalid)
		if err == nil {
			limiter.Reset(key)
		}
	}, true
}

func (h *Handler) handleError(w http.ResponseWriter, err error) {
	if h.config.ConcealAuthErrors {
		if reason, ok := burndrop.DeniedReason(err); ok && reason != burndrop.ReasonNotFound {
			WriteError(w, http.StatusNotFound, "not_found", "Share not found")
			return
		}
	}
	HandleError(w, err)
}

func sharePassword(r *http.Request) string {
	if pw := r.Header.Get(PasswordHeader); pw != "" {
		return pw
	}
	if r.Method == http.MethodPost {
		return r.PostFormValue("password")
	}
	return ""
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
