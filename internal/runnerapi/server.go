// Package runnerapi implements the control plane's internal HTTP API
// (spec §6): the handful of endpoints a worker's connector.Connector
// calls to fetch a run's descriptor and report back its lifecycle,
// log lines and output files. In-process callers use
// connector/direct directly; this package exists for workers running
// in cluster mode, talking to it through connector/remote.
package runnerapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"reproserver/internal/connector"
	"reproserver/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// validate is a single, stateless validator instance shared across
// requests, the pattern go-playground/validator's own docs recommend
// (construction is the expensive part; Struct calls are cheap).
var validate = validator.New()

// Server wraps a connector.Connector (a direct.Connector in practice)
// behind the wire format remote.Connector speaks.
type Server struct {
	conn   connector.Connector
	secret string
}

// New builds a Server. secret is compared against every request's
// X-Reproserver-Authenticate header.
func New(conn connector.Connector, secret string) *Server {
	return &Server{conn: conn, secret: secret}
}

// Routes mounts the internal API under requireSecret.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requireSecret(s.secret))

	r.Route("/runners/run/{id}", func(r chi.Router) {
		r.Post("/init", s.handleInit)
		r.Post("/start", s.handleStart)
		r.Post("/set-progress", s.handleSetProgress)
		r.Post("/done", s.handleDone)
		r.Post("/failed", s.handleFailed)
		r.Put("/output/{name}", s.handleUploadOutput)
		r.Post("/log", s.handleLog)
	})

	return r
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}

	info, err := s.conn.InitRunGetInfo(r.Context(), runID)
	if !s.checkErr(w, r, runID, err) {
		return
	}

	s.writeJSON(w, r, info)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}

	if err := s.conn.RunStarted(r.Context(), runID); !s.checkErr(w, r, runID, err) {
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetProgress(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}

	var body struct {
		Percent int    `json:"percent" validate:"min=0,max=100"`
		Text    string `json:"text" validate:"max=1000"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	if err := s.conn.RunProgress(r.Context(), runID, body.Percent, body.Text); !s.checkErr(w, r, runID, err) {
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDone(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}

	if err := s.conn.RunDone(r.Context(), runID); !s.checkErr(w, r, runID, err) {
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFailed(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}

	var body struct {
		Error string `json:"error" validate:"required"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	if err := s.conn.RunFailed(r.Context(), runID, body.Error); !s.checkErr(w, r, runID, err) {
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUploadOutput(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	if name == "" {
		http.Error(w, "missing output name", http.StatusBadRequest)
		return
	}

	err := s.conn.UploadOutputFile(r.Context(), runID, name, r.Body, r.ContentLength)
	if !s.checkErr(w, r, runID, err) {
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}

	var body struct {
		Lines []struct {
			Msg  string `json:"msg" validate:"required"`
			Time string `json:"time" validate:"required"`
		} `json:"lines" validate:"dive"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	lines := make([]connector.LogLine, 0, len(body.Lines))
	for _, l := range body.Lines {
		t, err := time.Parse(time.RFC3339Nano, l.Time)
		if err != nil {
			http.Error(w, "invalid log line timestamp", http.StatusBadRequest)
			return
		}
		lines = append(lines, connector.LogLine{Time: t, Text: l.Msg})
	}

	if err := s.conn.LogMultiple(r.Context(), runID, lines); !s.checkErr(w, r, runID, err) {
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// runID parses the {id} URL param, writing a 400 and returning false
// on failure.
func (s *Server) runID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(out); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.GetLogger(r.Context()).Error("failed to encode response", zap.Error(err))
	}
}

// checkErr maps a connector.Connector error to the appropriate status
// code per spec §7, logging infrastructure errors. It returns false
// (and has already written the response) when err is non-nil.
func (s *Server) checkErr(w http.ResponseWriter, r *http.Request, runID int64, err error) bool {
	if err == nil {
		return true
	}

	var userErr *connector.UserError
	var bundleErr *connector.BundleError
	switch {
	case errors.As(err, &userErr):
		http.Error(w, userErr.Message, http.StatusBadRequest)
	case errors.As(err, &bundleErr):
		http.Error(w, bundleErr.Message, http.StatusUnprocessableEntity)
	default:
		logger.GetLogger(r.Context()).Error("runner API request failed",
			zap.Int64("run_id", runID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
	return false
}
