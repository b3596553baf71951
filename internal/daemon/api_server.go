package daemon

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"caretaker/internal/api"
	"caretaker/internal/library"
	"caretaker/internal/logging"
	"caretaker/internal/progress"
	"caretaker/internal/scan"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
)

// apiServer exposes the daemon's control surface over HTTP.
type apiServer struct {
	bind     string
	token    string
	daemon   *Daemon
	logger   *slog.Logger
	server   *http.Server
	listener net.Listener
}

func newAPIServer(bind, token string, d *Daemon, logger *slog.Logger) *apiServer {
	s := &apiServer{
		bind:   bind,
		token:  token,
		daemon: d,
		logger: logging.NewComponentLogger(logger, "api"),
	}
	s.server = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.auth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/scan/start", s.handleScanStart)
		r.Post("/scan/stop", s.handleScanStop)
		r.Get("/scan/status", s.handleScanStatus)
		r.Get("/scans", s.handleScans)
		r.Get("/issues", s.handleIssues)
		r.Get("/duplicates", s.handleDuplicates)
		r.Get("/recommendations", s.handleRecommendations)
		r.Post("/recommendations/{id}/request", s.handleRecommendationRequest)
		r.Post("/recommendations/{id}/ignore", s.handleRecommendationIgnore)
		r.Get("/services", s.handleServices)
		r.Get("/activity", s.handleActivity)
	})
	r.Get("/ws/scan", s.handleScanSocket)
	return r
}

// auth enforces the bearer token on every route. Websocket clients cannot set
// headers from a browser, so the token is also accepted as a query parameter.
// An empty configured token disables authentication.
func (s *apiServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		presented := ""
		if header := r.Header.Get("Authorization"); len(header) > 7 && header[:7] == "Bearer " {
			presented = header[7:]
		} else {
			presented = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.bind, err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server terminated", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("addr", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

// Addr returns the bound address, which differs from the configured bind when
// it requested an ephemeral port.
func (s *apiServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) handleScanStart(w http.ResponseWriter, r *http.Request) {
	var req api.StartScanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runID, err := s.daemon.orchestrator.Start(r.Context(), req.Phases)
	if errors.Is(err, scan.ErrScanAlreadyRunning) {
		writeError(w, http.StatusConflict, "a scan is already running")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	_ = s.daemon.store.RecordActivity(r.Context(), "scan", fmt.Sprintf("scan %d started", runID))
	writeJSON(w, http.StatusAccepted, api.StartScanResponse{RunID: runID})
}

func (s *apiServer) handleScanStop(w http.ResponseWriter, r *http.Request) {
	var req api.StopScanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := s.daemon.orchestrator.Stop(r.Context(), req.RunID)
	if errors.Is(err, scan.ErrNoActiveScan) {
		writeError(w, http.StatusNotFound, "no active scan")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	runID, _ := strconv.ParseInt(r.URL.Query().Get("run_id"), 10, 64)

	status, err := s.daemon.orchestrator.Status(r.Context(), runID)
	if errors.Is(err, scan.ErrNoActiveScan) {
		writeError(w, http.StatusNotFound, "no scans recorded")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.FromScan(status.Scan, status.Phases))
}

func (s *apiServer) handleScans(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}

	scans, err := s.daemon.store.ListScans(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	snapshots := make([]api.ScanSnapshot, 0, len(scans))
	for _, row := range scans {
		snapshots = append(snapshots, api.FromScan(row, nil))
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func (s *apiServer) handleIssues(w http.ResponseWriter, r *http.Request) {
	opts := library.ListIssuesOptions{
		State:    library.IssueState(r.URL.Query().Get("state")),
		Type:     library.IssueType(r.URL.Query().Get("type")),
		Severity: library.IssueSeverity(r.URL.Query().Get("severity")),
	}
	if opts.State == "" {
		opts.State = library.IssueOpen
	}

	issues, err := s.daemon.store.ListIssues(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]api.Issue, 0, len(issues))
	for _, issue := range issues {
		out = append(out, api.FromIssue(issue))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	groups, err := s.daemon.store.ListDuplicateGroups(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.daemon.store.TotalReclaimableBytes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := api.DuplicatesResponse{ReclaimableBytes: total}
	for _, group := range groups {
		resp.Groups = append(resp.Groups, api.FromDuplicateGroup(group))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	state := library.RecommendationState(r.URL.Query().Get("state"))

	recs, err := s.daemon.store.ListRecommendations(r.Context(), state)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]api.Recommendation, 0, len(recs))
	for _, rec := range recs {
		out = append(out, api.FromRecommendation(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) handleRecommendationRequest(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.pendingRecommendation(w, r)
	if !ok {
		return
	}
	if s.daemon.requests == nil {
		writeError(w, http.StatusServiceUnavailable, "no request manager configured")
		return
	}

	if err := s.daemon.requests.SubmitRequest(r.Context(), string(rec.Kind), rec.TMDBID); err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("submit request: %v", err))
		return
	}
	if err := s.daemon.store.SetRecommendationState(r.Context(), rec.ID, library.RecRequested); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = s.daemon.store.RecordActivity(r.Context(), "recommendation",
		fmt.Sprintf("requested %q (%d)", rec.Title, rec.Year))
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleRecommendationIgnore(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.pendingRecommendation(w, r)
	if !ok {
		return
	}
	if err := s.daemon.store.SetRecommendationState(r.Context(), rec.ID, library.RecIgnored); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) pendingRecommendation(w http.ResponseWriter, r *http.Request) (*library.Recommendation, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recommendation id")
		return nil, false
	}

	pending, err := s.daemon.store.ListRecommendations(r.Context(), library.RecPending)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	for i := range pending {
		if pending[i].ID == id {
			return &pending[i], true
		}
	}
	writeError(w, http.StatusNotFound, "no pending recommendation with that id")
	return nil, false
}

func (s *apiServer) handleServices(w http.ResponseWriter, r *http.Request) {
	statuses := make([]api.ServiceStatus, 0, len(s.daemon.probes))
	for _, probe := range s.daemon.probes {
		status := api.ServiceStatus{Name: probe.Name, Configured: probe.Configured}
		if probe.Configured {
			result := probe.Probe(r.Context())
			status.Success = result.Success
			status.Message = result.Message
		} else {
			status.Message = "not configured"
		}
		statuses = append(statuses, status)
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *apiServer) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}

	entries, err := s.daemon.store.RecentActivity(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]api.Activity, 0, len(entries))
	for _, entry := range entries {
		out = append(out, api.FromActivity(entry))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) handleScanSocket(w http.ResponseWriter, r *http.Request) {
	progress.WebsocketHandler(s.daemon.hub, s.logger).ServeHTTP(w, r)
}

func decodeBody(r *http.Request, out any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(out)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("invalid request body: %w", err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: message})
}
