package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Hennedk/leasingborsen-sub012/internal/apperr"
	"github.com/Hennedk/leasingborsen-sub012/internal/ledger"
	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(e *env) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/extract", handleExtract(e))
		r.Get("/sessions", handleListSessions(e))
		r.Get("/sessions/{id}", handleGetSession(e))
		r.Get("/sessions/{id}/changes", handleSessionChanges(e))
		r.Post("/sessions/{id}/apply", handleApply(e))
		r.Post("/sessions/{id}/cancel", handleCancelSession(e))
		r.Get("/costs", handleCosts(e))
		r.Get("/providers", handleProviders(e))
	})
	return r
}

func handleExtract(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			DealerID     string `json:"dealer_id"`
			DocumentName string `json:"document_name"`
			Content      string `json:"content"`
			Strategy     string `json:"strategy,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.DealerID == "" || req.Content == "" {
			writeError(w, http.StatusBadRequest, "dealer_id and content are required")
			return
		}

		out, err := reconcile(r.Context(), e, req.DealerID, req.DocumentName, req.Content, req.Strategy)
		if err != nil {
			if out != nil && out.Extraction != nil && out.Extraction.Error != nil {
				writeJSON(w, extractionStatus(out.Extraction.Error), out)
				return
			}
			if apperr.TypeOf(err) == apperr.TypeValidation {
				// Rejected records ride along for review.
				writeJSON(w, http.StatusUnprocessableEntity, out)
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// extractionStatus maps a categorized extraction failure to an HTTP status.
func extractionStatus(re *model.ResultError) int {
	switch apperr.Type(re.Type) {
	case apperr.TypeValidation:
		return http.StatusBadRequest
	case apperr.TypeCostLimit:
		return http.StatusPaymentRequired
	case apperr.TypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func handleListSessions(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}
		sessions, err := e.Store.ListSessions(r.Context(), r.URL.Query().Get("dealer_id"), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list sessions failed")
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	}
}

func handleGetSession(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := e.Store.GetSession(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

func handleSessionChanges(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		changes, err := e.Store.ChangesBySession(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "load changes failed")
			return
		}
		writeJSON(w, http.StatusOK, changes)
	}
}

func handleApply(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ApprovedIDs []string `json:"approved_ids,omitempty"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		result, err := e.Applier.Apply(r.Context(), chi.URLParam(r, "id"), req.ApprovedIDs)
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}

		// The status separates a clean apply from a partial one and from a
		// batch where nothing went through.
		status := http.StatusOK
		switch result.Status {
		case model.SessionPartiallyApplied:
			status = http.StatusMultiStatus
		case model.SessionFailed:
			status = http.StatusBadGateway
		}
		writeJSON(w, status, result)
	}
}

func handleCancelSession(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := e.Store.CancelSession(r.Context(), id); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		session, err := e.Store.GetSession(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "load session failed")
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

func handleCosts(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := e.Ledger.Summary(r.Context(), r.URL.Query().Get("dealer_id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "load cost summary failed")
			return
		}
		writeJSON(w, http.StatusOK, costsReport{
			CostSummary:           summary,
			ProjectedMonthlyCents: ledger.ProjectedMonthlyCents(summary.DailyCents),
			DailyLimitCents:       cfg.Budget.DailyLimitCents,
			MonthlyLimitCents:     cfg.Budget.MonthlyLimitCents,
		})
	}
}

func handleProviders(e *env) http.HandlerFunc {
	type providerStatus struct {
		Name      string `json:"name"`
		Available bool   `json:"available"`
		Circuit   string `json:"circuit"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		states := e.Orchestrator.BreakerStates()
		var out []providerStatus
		for _, p := range e.Registry.List() {
			out = append(out, providerStatus{
				Name:      p.Name(),
				Available: p.Available(),
				Circuit:   states[p.Name()].String(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
