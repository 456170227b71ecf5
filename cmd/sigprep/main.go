package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/inkmill/sigprep/convert"
	"github.com/inkmill/sigprep/idgen"
	"github.com/inkmill/sigprep/observability"
	"github.com/inkmill/sigprep/pipeline"
	"github.com/inkmill/sigprep/provider"
	"github.com/inkmill/sigprep/render"
	"github.com/inkmill/sigprep/shield"
	"github.com/inkmill/sigprep/store"
	"github.com/inkmill/sigprep/submit"
)

const maxUploadBytes = 100 << 20

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Basic Auth credential: only the bcrypt hash survives startup.
	authHash, err := bcrypt.GenerateFromPassword([]byte(cfg.AuthPassword), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("auth hash", "error", err)
		os.Exit(1)
	}
	cfg.AuthPassword = ""

	// Document store.
	st, err := store.Open(cfg.DBPath, store.WithMkdirAll())
	if err != nil {
		slog.Error("store", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Join(cfg.OutputDir, "uploads"), 0o755); err != nil {
		slog.Error("output dir", "error", err)
		os.Exit(1)
	}

	// Observability DB: metrics and heartbeats, separate from the store.
	obsDB, err := observability.Open(env("OBS_DB", "db/observability.db"))
	if err != nil {
		slog.Error("observability", "error", err)
		os.Exit(1)
	}
	defer obsDB.Close()
	metrics := observability.NewMetrics(obsDB, 0, 0)
	defer metrics.Close()
	heartbeat := observability.NewHeartbeat(obsDB, "sigprep", 0)
	heartbeat.Start(ctx)
	defer heartbeat.Stop()

	// Provider client and submitter.
	client := provider.New(cfg.Provider)
	cfg.Submit.Logger = logger
	submitter := submit.New(client, st, cfg.Submit)

	// Converter.
	cfg.Convert.Logger = logger
	converter := convert.New(cfg.Convert)

	// Pipeline.
	cfg.Pipeline.Logger = logger
	pipe := pipeline.New(cfg.Pipeline, pipeline.Deps{
		Store:     st,
		Converter: converter,
		Uploader:  client,
		Sender:    submitter,
		Metrics:   metrics,
	})

	// Router.
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(maxUploadBytes) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(basicAuth(cfg.AuthUser, authHash))

		r.Post("/api/documents", func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
				writeError(w, 400, err)
				return
			}
			file, header, err := r.FormFile("file")
			if err != nil {
				writeError(w, 400, fmt.Errorf("file part is required: %w", err))
				return
			}
			defer file.Close()

			var data render.Data
			if raw := r.FormValue("data"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &data); err != nil {
					writeError(w, 400, fmt.Errorf("data: %w", err))
					return
				}
			}
			var recipients []store.Recipient
			if raw := r.FormValue("recipients"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &recipients); err != nil {
					writeError(w, 400, fmt.Errorf("recipients: %w", err))
					return
				}
			}

			path, err := saveUpload(cfg.OutputDir, header.Filename, file)
			if err != nil {
				writeError(w, 500, err)
				return
			}

			res, err := pipe.Prepare(r.Context(), path, data, recipients)
			if err != nil {
				writeError(w, prepareStatus(err), err)
				return
			}
			writeJSON(w, 201, map[string]any{
				"document":          res.Document,
				"fields":            res.Fields,
				"prepared_path":     res.PreparedPath,
				"provider_tags":     res.Rendered.ProviderTagsAfter,
				"missing_variables": res.Rendered.MissingVariables,
				"render_bypassed":   res.Rendered.Bypassed,
			})
		})

		r.Get("/api/documents/{documentID}", func(w http.ResponseWriter, r *http.Request) {
			doc, err := st.GetDocument(r.Context(), chi.URLParam(r, "documentID"))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			if doc == nil {
				writeJSON(w, 404, map[string]string{"error": "document not found"})
				return
			}
			writeJSON(w, 200, doc)
		})

		r.Get("/api/documents/{documentID}/events", func(w http.ResponseWriter, r *http.Request) {
			events, err := st.EventsFor(r.Context(), chi.URLParam(r, "documentID"))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			if events == nil {
				events = []store.SubmissionEvent{}
			}
			writeJSON(w, 200, events)
		})

		r.Post("/api/documents/{documentID}/send", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				SigningFlow string `json:"signing_flow"`
				Message     string `json:"message"`
			}
			if r.Body != nil && r.ContentLength != 0 {
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					writeError(w, 400, err)
					return
				}
			}

			outcome, err := pipe.Send(r.Context(), chi.URLParam(r, "documentID"),
				provider.Options{SigningFlow: req.SigningFlow, Message: req.Message})
			if err != nil {
				writeError(w, sendStatus(err), err)
				return
			}
			writeJSON(w, outcomeStatus(outcome), outcomeBody(outcome))
		})
	})

	// HTTP server.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute, // submission retries can run long
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// basicAuth enforces HTTP Basic Auth against the configured user and
// bcrypt password hash.
func basicAuth(user string, passwordHash []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
				bcrypt.CompareHashAndPassword(passwordHash, []byte(p)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="sigprep"`)
				writeJSON(w, 401, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func saveUpload(outputDir, filename string, src multipart.File) (string, error) {
	// Client filenames collide; a generated prefix keeps each upload its
	// own file while the original name stays visible for operators.
	name := idgen.NanoID(8)() + "_" + filepath.Base(filename)
	dst := filepath.Join(outputDir, "uploads", name)
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, src); err != nil {
		return "", err
	}
	return dst, nil
}

// prepareStatus maps a Prepare failure to an HTTP status.
func prepareStatus(err error) int {
	var pipeErr *pipeline.Error
	if !errors.As(err, &pipeErr) {
		return 500
	}
	switch pipeErr.Stage {
	case pipeline.StageDetect, pipeline.StageExtract, pipeline.StageRender:
		return 422
	case pipeline.StageConvert:
		return 502
	default:
		return 500
	}
}

// sendStatus maps a Send refusal to an HTTP status.
func sendStatus(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		return 404
	case errors.Is(err, pipeline.ErrAlreadySent), errors.Is(err, pipeline.ErrNotReady):
		return 409
	}
	var pipeErr *pipeline.Error
	if errors.As(err, &pipeErr) && pipeErr.Stage == pipeline.StageUpload {
		return 502
	}
	return 500
}

// outcomeStatus maps a submission outcome to an HTTP status: confirmed 200,
// ambiguous 202 (resolution pending), failed 422.
func outcomeStatus(out submit.Outcome) int {
	switch out.Status {
	case submit.StatusConfirmed:
		return 200
	case submit.StatusAmbiguous:
		return 202
	default:
		return 422
	}
}

func outcomeBody(out submit.Outcome) map[string]any {
	body := map[string]any{
		"status":     string(out.Status),
		"request_id": out.RequestID,
	}
	if out.AgreementID != "" {
		body["agreement_id"] = out.AgreementID
	}
	if out.Status == submit.StatusConfirmed {
		body["verified"] = out.Verified
	}
	if out.Reason != nil {
		body["reason"] = out.Reason.Error()
	}
	return body
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
