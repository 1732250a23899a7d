package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/menta2k/waste-analyzer/internal/history"
	"github.com/menta2k/waste-analyzer/internal/storage"
	"github.com/menta2k/waste-analyzer/pkg/detection"
	"github.com/menta2k/waste-analyzer/pkg/types"
)

// Analyzer turns one image into a result.
type Analyzer interface {
	Analyze(ctx context.Context, req detection.Request) types.AnalysisResult
}

// ScanStore is the scan history used by the API.
type ScanStore interface {
	RecordScan(ctx context.Context, userID, imageKey string, res types.AnalysisResult) (*history.Scan, error)
	GetScan(ctx context.Context, id string) (*history.Scan, error)
	ListScans(ctx context.Context, userID string, limit int) ([]*history.Scan, error)
	GetUser(ctx context.Context, id string) (*history.User, error)
}

// Options configures the router. Store and Images are optional.
type Options struct {
	Store          ScanStore
	Images         storage.ImageStore
	MaxUploadBytes int64
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// ScanIDHeader carries the id of the stored scan on POST /v1/scans.
const ScanIDHeader = "X-Scan-ID"

type Router struct {
	analyzer Analyzer
	opts     Options
}

// NewRouter builds the HTTP API.
func NewRouter(analyzer Analyzer, opts Options) http.Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	r := &Router{analyzer: analyzer, opts: opts}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(requestLogger)
	mux.Use(middleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		ExposedHeaders: []string{ScanIDHeader},
		MaxAge:         300,
	}))
	if opts.RequestTimeout > 0 {
		mux.Use(middleware.Timeout(opts.RequestTimeout))
	}

	mux.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/scans", r.wrap(r.handleCreateScan))
		rt.Get("/scans/{id}", r.wrap(r.handleGetScan))
		rt.Get("/users/{userID}", r.wrap(r.handleGetUser))
		rt.Get("/users/{userID}/scans", r.wrap(r.handleListScans))
	})

	return mux
}

type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

var errHistoryDisabled = &httpError{status: http.StatusServiceUnavailable, msg: "scan history is disabled"}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var he *httpError
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &he):
			writeError(w, he.status, he.msg)
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "image too large")
		case errors.Is(err, history.ErrNotFound):
			writeError(w, http.StatusNotFound, "not found")
		default:
			log.Error().Err(err).Str("path", req.URL.Path).Msg("Request failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	_ = writeJSON(w, status, map[string]string{"error": msg})
}

// scanInput is what a POST /v1/scans request carries.
type scanInput struct {
	image    []byte
	mimeType string
	imageURL string
	imageKey string
	context  string
	userID   string
}

// POST /v1/scans
//
// Accepts multipart/form-data (image file plus context, user_id, image_url
// fields), a JSON body {"imageUrl","context","userId"} or a raw image body
// with context and user_id as query parameters.
func (r *Router) handleCreateScan(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, r.opts.MaxUploadBytes)

	in, err := readScanInput(req)
	if err != nil {
		return err
	}
	if len(in.image) == 0 && in.imageURL == "" {
		return badRequest("an image or image URL is required")
	}
	if len(in.image) > 0 && !strings.HasPrefix(in.mimeType, "image/") {
		in.mimeType = http.DetectContentType(in.image)
	}

	if len(in.image) > 0 && r.opts.Images != nil {
		obj, err := r.opts.Images.PutImage(req.Context(), in.image, in.mimeType)
		if err != nil {
			// analysis still works without a stored copy
			log.Warn().Err(err).Msg("Could not store image")
		} else {
			in.imageURL = obj.URL
			in.imageKey = obj.Key
		}
	}

	res := r.analyzer.Analyze(req.Context(), detection.Request{
		Image:         in.image,
		MIMEType:      in.mimeType,
		ImageURL:      in.imageURL,
		PromptContext: in.context,
	})

	if r.opts.Store != nil && res.Error == "" {
		scan, err := r.opts.Store.RecordScan(req.Context(), in.userID, in.imageKey, res)
		if err != nil {
			log.Error().Err(err).Str("user_id", in.userID).Msg("Could not record scan")
		} else {
			w.Header().Set(ScanIDHeader, scan.ID)
		}
	}
	return writeJSON(w, http.StatusOK, res)
}

func readScanInput(req *http.Request) (scanInput, error) {
	ct, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	q := req.URL.Query()

	switch {
	case ct == "multipart/form-data":
		if err := req.ParseMultipartForm(8 << 20); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return scanInput{}, err
			}
			return scanInput{}, badRequest("invalid multipart form: %v", err)
		}
		in := scanInput{
			imageURL: req.FormValue("image_url"),
			context:  req.FormValue("context"),
			userID:   req.FormValue("user_id"),
		}
		file, header, err := req.FormFile("image")
		if errors.Is(err, http.ErrMissingFile) {
			return in, nil
		}
		if err != nil {
			return scanInput{}, badRequest("invalid image field: %v", err)
		}
		defer file.Close()
		if in.image, err = io.ReadAll(file); err != nil {
			return scanInput{}, err
		}
		in.mimeType = header.Header.Get("Content-Type")
		return in, nil

	case ct == "application/json":
		var body struct {
			ImageURL string `json:"imageUrl"`
			Context  string `json:"context"`
			UserID   string `json:"userId"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return scanInput{}, err
			}
			return scanInput{}, badRequest("invalid JSON body: %v", err)
		}
		return scanInput{imageURL: body.ImageURL, context: body.Context, userID: body.UserID}, nil

	case strings.HasPrefix(ct, "image/"):
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return scanInput{}, err
		}
		return scanInput{
			image:    data,
			mimeType: ct,
			imageURL: q.Get("image_url"),
			context:  q.Get("context"),
			userID:   q.Get("user_id"),
		}, nil
	}
	return scanInput{}, &httpError{status: http.StatusUnsupportedMediaType, msg: "unsupported content type " + strconv.Quote(ct)}
}

// GET /v1/scans/{id}
func (r *Router) handleGetScan(w http.ResponseWriter, req *http.Request) error {
	if r.opts.Store == nil {
		return errHistoryDisabled
	}
	scan, err := r.opts.Store.GetScan(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	r.refreshImageURL(req.Context(), scan)
	return writeJSON(w, http.StatusOK, scan)
}

// GET /v1/users/{userID}/scans?limit=
func (r *Router) handleListScans(w http.ResponseWriter, req *http.Request) error {
	if r.opts.Store == nil {
		return errHistoryDisabled
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	scans, err := r.opts.Store.ListScans(req.Context(), chi.URLParam(req, "userID"), limit)
	if err != nil {
		return err
	}
	for _, scan := range scans {
		r.refreshImageURL(req.Context(), scan)
	}
	return writeJSON(w, http.StatusOK, scans)
}

// refreshImageURL replaces the stored, possibly expired, URL of a scan
// with a freshly signed one.
func (r *Router) refreshImageURL(ctx context.Context, scan *history.Scan) {
	if scan.ImageKey == "" || r.opts.Images == nil {
		return
	}
	u, err := r.opts.Images.PresignedURL(ctx, scan.ImageKey)
	if err != nil {
		log.Warn().Err(err).Str("scan_id", scan.ID).Msg("Could not presign image")
		return
	}
	scan.ImageURL = u
	scan.Result.ImageURL = u
}

// GET /v1/users/{userID}
func (r *Router) handleGetUser(w http.ResponseWriter, req *http.Request) error {
	if r.opts.Store == nil {
		return errHistoryDisabled
	}
	u, err := r.opts.Store.GetUser(req.Context(), chi.URLParam(req, "userID"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, u)
}

// requestLogger logs one line per request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
