package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rootandstem/curriculum-cli/internal/config"
	"github.com/rootandstem/curriculum-cli/internal/model"
	"github.com/rootandstem/curriculum-cli/internal/resolve"
	"github.com/rootandstem/curriculum-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review-facing HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		engine := resolve.NewEngine(st, nil)
		router := newRouter(st, engine, cfg.Server)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			if err := shutdownServer(srv); err != nil {
				zap.L().Error("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

const shutdownTimeout = 10 * time.Second

// shutdownServer drains in-flight requests on a fresh context; the
// signal context is already canceled and would abort them immediately.
func shutdownServer(srv *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRouter builds the review-UI surface: health, per-submission match
// evidence, and the resolution entry point behind a rate limit.
func newRouter(st store.Store, engine *resolve.Engine, serverCfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	origins := serverCfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/submissions/{id}/matches", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")

		if _, err := st.GetSubmission(req.Context(), id); err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "submission not found"})
				return
			}
			zap.L().Error("load submission failed", zap.String("submission_id", id), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}

		records, err := st.ListSimilarityRecords(req.Context(), id)
		if err != nil {
			zap.L().Error("list matches failed", zap.String("submission_id", id), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"submission_id": id,
			"matches":       records,
		})
	})

	rps := serverCfg.ResolveRPS
	if rps <= 0 {
		rps = 2
	}
	limiter := rate.NewLimiter(rate.Limit(rps), 1)

	r.Post("/resolve", func(w http.ResponseWriter, req *http.Request) {
		if !limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}

		var resolveReq model.ResolveRequest
		if err := json.NewDecoder(req.Body).Decode(&resolveReq); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		result := engine.Resolve(req.Context(), resolveReq)
		writeJSON(w, resolveStatus(result), result)
	})

	return r
}

// resolveStatus maps structured resolution outcomes onto HTTP codes.
func resolveStatus(result model.ResolveResult) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.ErrorCode {
	case model.ResolveErrNotAuthorized:
		return http.StatusForbidden
	case model.ResolveErrCanonicalNotFound, model.ResolveErrRetiredNotFound:
		return http.StatusNotFound
	case model.ResolveErrInvalidTitle:
		return http.StatusUnprocessableEntity
	case model.ResolveErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
