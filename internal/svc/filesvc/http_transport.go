package filesvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mkrupp/homecase-filevault/internal/domain"
	context_ "github.com/mkrupp/homecase-filevault/internal/infra/context"
	"github.com/mkrupp/homecase-filevault/internal/infra/logging"
	http_ "github.com/mkrupp/homecase-filevault/internal/infra/transport/http"
)

var (
	// ErrNoMultipartFile is returned when an upload request carries no file part.
	ErrNoMultipartFile = errors.New("no multipart file")
	// ErrInvalidFileID is returned when the file id in the URL is not a number.
	ErrInvalidFileID = errors.New("invalid file id")
)

// multipartOverhead is the allowance for multipart headers and boundaries on
// top of the maximum file size.
const multipartOverhead = 1 << 20

// HTTPTransportConfig contains configuration parameters for the HTTP transport layer.
type HTTPTransportConfig struct {
	// MultipartFileName is the form field name for file uploads.
	MultipartFileName string `env:"MULTIPART_FILE_NAME" envDefault:"file"`
}

// HTTPTransport handles HTTP requests for the file service.
// All routes require a valid bearer token.
type HTTPTransport struct {
	fileSvc   FileService
	validator http_.TokenValidator
	router    chi.Router
	log       logging.Logger
	cfg       HTTPTransportConfig
}

var (
	_ http_.HTTPTransport  = (*HTTPTransport)(nil)
	_ http_.RouteRegistrar = (*HTTPTransport)(nil)
)

// NewHTTPTransport creates a new HTTPTransport instance with the given configuration.
// It requires a FileService for the business logic and a TokenValidator for authentication.
func NewHTTPTransport(
	fileSvc FileService,
	validator http_.TokenValidator,
	cfg HTTPTransportConfig,
) *HTTPTransport {
	ht := &HTTPTransport{
		fileSvc:   fileSvc,
		validator: validator,
		router:    chi.NewRouter(),
		log:       logging.GetLogger("svc.filesvc.http_transport"),
		cfg:       cfg,
	}

	ht.RegisterRoutes(ht.router)

	return ht
}

// RegisterRoutes implements http_.RouteRegistrar:
// - GET /files: List the caller's files
// - POST /files: Upload a file (multipart form)
// - GET /files/{id}/download: Download a file as attachment
// - GET /files/{id}/view: View a file inline
// - DELETE /files/{id}: Delete a file.
func (ht *HTTPTransport) RegisterRoutes(router chi.Router) {
	router.Group(func(router chi.Router) {
		router.Use(func(next http.Handler) http.Handler {
			return http_.AuthorizingMiddleware(next, ht.validator, ht.log)
		})

		router.Get("/files", ht.HandleList)
		router.Post("/files", ht.HandleUpload)
		router.Get("/files/{id}/download", ht.HandleDownload)
		router.Get("/files/{id}/view", ht.HandleView)
		router.Delete("/files/{id}", ht.HandleDelete)
	})
}

// ServeHTTP implements http.Handler.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ht.router.ServeHTTP(w, r)
}

// HandleList returns the caller's files as JSON, in upload order.
func (ht *HTTPTransport) HandleList(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleList(w, r)
}

func (ht *HTTPTransport) handleList(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.ErrorContext(ctx, "file list failed", "error", err)
		} else {
			log.DebugContext(ctx, "files listed")
		}
	}(r.Context())

	userID, err := requireUserID(w, r)
	if err != nil {
		return err
	}

	records, err := ht.fileSvc.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)

		return fmt.Errorf("list: %w", err)
	}

	return writeJSON(w, http.StatusOK, records)
}

// HandleUpload stores the first file part named MultipartFileName.
// The part is streamed to the blob store without buffering the whole form.
func (ht *HTTPTransport) HandleUpload(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleUpload(w, r)
}

func (ht *HTTPTransport) handleUpload(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.ErrorContext(ctx, "file upload failed", "error", err)
		} else {
			log.DebugContext(ctx, "file uploaded")
		}
	}(r.Context())

	userID, err := requireUserID(w, r)
	if err != nil {
		return err
	}

	if maxSize := ht.fileSvc.MaxSize(); maxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)

		return fmt.Errorf("multipart reader: %w", err)
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			writeError(w, err)

			return fmt.Errorf("next part: %w", err)
		}

		if part.FormName() != ht.cfg.MultipartFileName {
			_ = part.Close()

			continue
		}

		log = log.With(logging.Group("file", "filename", part.FileName()))

		record, err := ht.fileSvc.Upload(r.Context(), userID, part.FileName(), part)
		_ = part.Close()

		if err != nil {
			writeError(w, err)

			return fmt.Errorf("upload: %w", err)
		}

		return writeJSON(w, http.StatusCreated, domain.FileIDResponse{
			ID:       record.ID,
			Filename: record.Filename,
		})
	}

	http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)

	return ErrNoMultipartFile
}

// HandleDownload sends a file as attachment under its stored name.
func (ht *HTTPTransport) HandleDownload(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleServe(w, r, false)
}

// HandleView sends a file inline with its resolved content type.
func (ht *HTTPTransport) HandleView(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleServe(w, r, true)
}

func (ht *HTTPTransport) handleServe(w http.ResponseWriter, r *http.Request, inline bool) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.ErrorContext(ctx, "file serve failed", "error", err)
		} else {
			log.DebugContext(ctx, "file served", "inline", inline)
		}
	}(r.Context())

	userID, err := requireUserID(w, r)
	if err != nil {
		return err
	}

	fileID, err := fileIDParam(w, r)
	if err != nil {
		return err
	}

	log = log.With(logging.Group("file", "id", fileID))

	var (
		download    *Download
		disposition = "attachment"
	)

	if inline {
		view, err := ht.fileSvc.PrepareView(r.Context(), userID, fileID)
		if err != nil {
			writeError(w, err)

			return fmt.Errorf("prepare view: %w", err)
		}

		download = &view.Download
		disposition = "inline"

		w.Header().Set("Content-Type", view.MIMEType)
		// inline content must not run scripts in our origin
		w.Header().Set("Content-Security-Policy", "sandbox")
	} else {
		download, err = ht.fileSvc.PrepareDownload(r.Context(), userID, fileID)
		if err != nil {
			writeError(w, err)

			return fmt.Errorf("prepare download: %w", err)
		}

		w.Header().Set("Content-Type", "application/octet-stream")
	}

	content, err := ht.fileSvc.Open(r.Context(), download)
	if err != nil {
		w.Header().Del("Content-Type")
		w.Header().Del("Content-Security-Policy")
		writeError(w, err)

		return fmt.Errorf("open: %w", err)
	}
	defer content.Close()

	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{
		"filename": download.Filename,
	}))
	w.Header().Set("X-Content-Type-Options", "nosniff")

	http.ServeContent(w, r, download.Filename, content.ModTime, content)

	return nil
}

// HandleDelete removes a file and its record.
func (ht *HTTPTransport) HandleDelete(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleDelete(w, r)
}

func (ht *HTTPTransport) handleDelete(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.ErrorContext(ctx, "file delete failed", "error", err)
		} else {
			log.DebugContext(ctx, "file deleted")
		}
	}(r.Context())

	userID, err := requireUserID(w, r)
	if err != nil {
		return err
	}

	fileID, err := fileIDParam(w, r)
	if err != nil {
		return err
	}

	log = log.With(logging.Group("file", "id", fileID))

	if err := ht.fileSvc.Delete(r.Context(), userID, fileID); err != nil {
		writeError(w, err)

		return fmt.Errorf("delete: %w", err)
	}

	w.WriteHeader(http.StatusNoContent)

	return nil
}

func requireUserID(w http.ResponseWriter, r *http.Request) (domain.UserID, error) {
	userID, ok := context_.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)

		return 0, domain.ErrNoAuthToken
	}

	return userID, nil
}

func fileIDParam(w http.ResponseWriter, r *http.Request) (domain.FileID, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)

		return 0, fmt.Errorf("%w: %q", ErrInvalidFileID, chi.URLParam(r, "id"))
	}

	return domain.FileID(id), nil
}

// statusFor maps an error kind to its HTTP status. Only the status text is
// ever written, so error details (and storage paths) stay server side.
func statusFor(err error) int {
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.Is(err, domain.ErrEmptyFilename), errors.Is(err, domain.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrFileTooLarge), errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrMissingBlob):
		return http.StatusGone
	case errors.Is(err, domain.ErrNameCollision):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	http.Error(w, http.StatusText(status), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	return nil
}
