package admin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sunil55999/Zorox/internal/store"
	"github.com/sunil55999/Zorox/internal/web"
)

// Server is the HTTP shell over the management service.
type Server struct {
	svc    *Service
	hub    *web.Hub
	router *chi.Mux
	http   *http.Server

	// bearer token; empty disables auth (local deployments)
	token string
}

// NewServer builds the router. registry backs the /metrics endpoint.
func NewServer(svc *Service, hub *web.Hub, registry *prometheus.Registry, token string) *Server {
	s := &Server{svc: svc, hub: hub, token: token}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method("GET", "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth)

		r.Route("/pairs", func(r chi.Router) {
			r.Get("/", s.listPairs)
			r.Post("/", s.addPair)
			r.Get("/{id}", s.pairInfo)
			r.Patch("/{id}", s.editPair)
			r.Delete("/{id}", s.deletePair)
			r.Post("/{id}/mentions", s.setMentions)
			r.Post("/{id}/header", s.setHeader)
			r.Post("/{id}/footer", s.setFooter)
			r.Post("/{id}/watermark", s.setWatermark)
			r.Post("/{id}/test-filter", s.testFilter)
		})

		r.Route("/senders", func(r chi.Router) {
			r.Get("/", s.listSenders)
			r.Post("/", s.addSender)
			r.Post("/{id}/toggle", s.toggleSender)
			r.Delete("/{id}", s.deleteSender)
		})

		r.Route("/filters", func(r chi.Router) {
			r.Get("/words", s.listWords)
			r.Post("/words", s.blockWord)
			r.Delete("/words", s.unblockWord)
			r.Get("/images", s.listImages)
			r.Post("/images", s.blockImage)
			r.Delete("/images/{phash}", s.unblockImage)
		})

		r.Route("/ops", func(r chi.Router) {
			r.Post("/pause", s.pause)
			r.Post("/resume", s.resume)
			r.Get("/status", s.status)
			r.Get("/stats", s.stats)
			r.Get("/health", s.healthReport)
			r.Get("/queue", s.queue)
			r.Post("/queue/clear", s.clearQueue)
			r.Post("/backup", s.backup)
			r.Post("/cleanup", s.cleanup)
		})

		r.Route("/subs", func(r chi.Router) {
			r.Get("/", s.listSubs)
			r.Post("/", s.addSub)
			r.Post("/{user}/renew", s.renewSub)
			r.Post("/{user}/kick", s.kickAll)
			r.Post("/{user}/unban", s.unbanAll)
		})
	})

	if hub != nil {
		r.Get("/ws", hub.ServeWS)
	}

	s.router = r
	return s
}

// Start serves until the context is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
	}()
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- pair handlers ---

func (s *Server) listPairs(w http.ResponseWriter, _ *http.Request) {
	pairs, err := s.svc.ListPairs()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, pairs)
}

func (s *Server) addPair(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source      int64  `json:"source_chat"`
		Destination int64  `json:"destination_chat"`
		Name        string `json:"name"`
		SenderID    *int64 `json:"sender_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	p, err := s.svc.AddPair(req.Source, req.Destination, req.Name, req.SenderID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) pairInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := s.svc.PairInfo(id)
	if err != nil {
		respondNotFoundOr500(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) editPair(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Field string `json:"field"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	p, err := s.svc.EditPair(id, req.Field, req.Value)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) deletePair(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.svc.DeletePair(id); err != nil {
		respondNotFoundOr500(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "pair deleted"})
}

func (s *Server) setMentions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Enabled     bool   `json:"enabled"`
		Placeholder string `json:"placeholder"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := s.svc.SetMentions(id, req.Enabled, req.Placeholder); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "mentions updated"})
}

func (s *Server) setHeader(w http.ResponseWriter, r *http.Request) {
	s.setPattern(w, r, s.svc.SetHeaderPattern)
}

func (s *Server) setFooter(w http.ResponseWriter, r *http.Request) {
	s.setPattern(w, r, s.svc.SetFooterPattern)
}

func (s *Server) setPattern(w http.ResponseWriter, r *http.Request, set func(int64, string) error) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Pattern string `json:"pattern"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := set(id, req.Pattern); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "pattern updated"})
}

func (s *Server) setWatermark(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Enabled bool   `json:"enabled"`
		Text    string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := s.svc.SetWatermark(id, req.Enabled, req.Text); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "watermark updated"})
}

func (s *Server) testFilter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	res, err := s.svc.TestFilter(id, req.Text)
	if err != nil {
		respondNotFoundOr500(w, err)
		return
	}
	out := map[string]any{"kept": !res.Drop, "rewritten": res.Text}
	if res.Drop {
		out["reason"] = string(res.Reason)
	}
	respondJSON(w, http.StatusOK, out)
}

// --- sender handlers ---

func (s *Server) listSenders(w http.ResponseWriter, r *http.Request) {
	include := r.URL.Query().Get("include_disabled") == "true"
	senders, err := s.svc.ListSenders(include)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, senders)
}

func (s *Server) addSender(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle     string `json:"handle"`
		Credential string `json:"credential"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	sender, err := s.svc.AddSender(r.Context(), req.Handle, req.Credential)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, sender)
}

func (s *Server) toggleSender(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	enabled, err := s.svc.ToggleSender(id)
	if err != nil {
		respondNotFoundOr500(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (s *Server) deleteSender(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.svc.DeleteSender(id); err != nil {
		respondNotFoundOr500(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "sender deleted"})
}

// --- filter handlers ---

func (s *Server) listWords(w http.ResponseWriter, r *http.Request) {
	pairID := queryPairID(r)
	global, pair := s.svc.ListBlocked(pairID)
	respondJSON(w, http.StatusOK, map[string]any{"global": global, "pair": pair})
}

func (s *Server) blockWord(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Word   string `json:"word"`
		PairID *int64 `json:"pair_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := s.svc.BlockWord(req.Word, req.PairID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "word blocked"})
}

func (s *Server) unblockWord(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Word   string `json:"word"`
		PairID *int64 `json:"pair_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := s.svc.UnblockWord(req.Word, req.PairID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "word unblocked"})
}

func (s *Server) listImages(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.ListBlockedImages(queryPairID(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id":          e.ID,
			"phash":       fmt.Sprintf("%016x", uint64(e.PHash)),
			"scope":       e.Scope,
			"pair_id":     e.PairID,
			"threshold":   e.Threshold,
			"description": e.Description,
			"usage_count": e.UsageCount,
			"created_at":  e.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) blockImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImageB64 string `json:"image_b64"`
		PairID   *int64 `json:"pair_id"`
		Note     string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.ImageB64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid image_b64")
		return
	}
	entry, err := s.svc.BlockImage(data, req.PairID, req.Note, r.Header.Get("X-Admin-User"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"id":    entry.ID,
		"phash": fmt.Sprintf("%016x", uint64(entry.PHash)),
	})
}

func (s *Server) unblockImage(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.UnblockImage(chi.URLParam(r, "phash"), queryPairID(r)); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "image unblocked"})
}

// --- ops handlers ---

func (s *Server) pause(w http.ResponseWriter, _ *http.Request) {
	s.svc.Pause()
	respondJSON(w, http.StatusOK, map[string]string{"message": "paused"})
}

func (s *Server) resume(w http.ResponseWriter, _ *http.Request) {
	s.svc.Resume()
	respondJSON(w, http.StatusOK, map[string]string{"message": "resumed"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	report, err := s.svc.Status()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	report, err := s.svc.Stats()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) healthReport(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.Health())
}

func (s *Server) queue(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.Queue())
}

func (s *Server) clearQueue(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]int{"cleared": s.svc.ClearQueue()})
}

func (s *Server) backup(w http.ResponseWriter, _ *http.Request) {
	path, err := s.svc.Backup()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (s *Server) cleanup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OlderThanDays int `json:"older_than_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	removed, err := s.svc.Cleanup(req.OlderThanDays)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

// --- subscription handlers ---

func (s *Server) listSubs(w http.ResponseWriter, _ *http.Request) {
	subs, err := s.svc.ListSubs()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, subs)
}

func (s *Server) addSub(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64  `json:"user_id"`
		Days   int    `json:"days"`
		Notes  string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	sub, err := s.svc.AddSub(req.UserID, req.Days, 0, req.Notes)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, sub)
}

func (s *Server) renewSub(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "user")
	if !ok {
		return
	}
	var req struct {
		Days int `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	sub, err := s.svc.RenewSub(userID, req.Days, 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

func (s *Server) kickAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "user")
	if !ok {
		return
	}
	n, err := s.svc.KickAll(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"kicked": n})
}

func (s *Server) unbanAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "user")
	if !ok {
		return
	}
	n, err := s.svc.UnbanAll(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"unbanned": n})
}

// --- helpers ---

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryPairID(r *http.Request) *int64 {
	raw := r.URL.Query().Get("pair_id")
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		_ = err // client disconnected
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondNotFoundOr500(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}
