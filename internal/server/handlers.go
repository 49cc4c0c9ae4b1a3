package server

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/tilestitch/internal/funcs"
	"github.com/matzehuels/tilestitch/pkg/buildinfo"
	"github.com/matzehuels/tilestitch/pkg/cache"
	"github.com/matzehuels/tilestitch/pkg/config"
	"github.com/matzehuels/tilestitch/pkg/errors"
	"github.com/matzehuels/tilestitch/pkg/ndarray"
	"github.com/matzehuels/tilestitch/pkg/pipeline"
	"github.com/matzehuels/tilestitch/pkg/sink"
	"github.com/matzehuels/tilestitch/pkg/source"
	"github.com/matzehuels/tilestitch/pkg/tile"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Get())
}

func (s *Server) handleFuncs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, funcs.List())
}

// PartitionRequest is the body of POST /v1/partition.
type PartitionRequest struct {
	Shape []int      `json:"shape"`
	Job   config.Job `json:"job"`
}

func (s *Server) handlePartition(w http.ResponseWriter, r *http.Request) {
	var req PartitionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := errors.ValidatePositive(errors.ErrCodeInvalidInput, "shape", req.Shape); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Job.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	key := s.runner.Keyer.PartitionKey(tile.Key(req.Shape, req.Job.TileShape, req.Job.Overlap, req.Job.Mode()))
	if data, ok, err := s.runner.Cache.Get(ctx, key); err == nil && ok {
		w.Header().Set("X-Cache", "hit")
		writeRaw(w, http.StatusOK, data)
		return
	}

	p, err := s.runner.Plan(ctx, req.Shape, pipeline.Options{Job: req.Job})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := sink.RenderPartitionJSON(p, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = s.runner.Cache.Set(ctx, key, data, cache.TTLPartition)
	w.Header().Set("X-Cache", "miss")
	writeRaw(w, http.StatusOK, data)
}

// handleValidate checks a job file. The format comes from the "format" query
// parameter or the Content-Type, defaulting to TOML.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	f := config.FormatTOML
	switch {
	case r.URL.Query().Get("format") != "":
		f = config.Format(r.URL.Query().Get("format"))
	case strings.HasPrefix(r.Header.Get("Content-Type"), "application/json"):
		f = config.FormatJSON
	}
	j, err := config.Decode(r.Body, f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// RunRequest is the body of POST /v1/run.
type RunRequest struct {
	Array  *ndarray.Array `json:"array"`
	Func   string         `json:"func"`
	Params funcs.Params   `json:"params,omitempty"`
	Job    config.Job     `json:"job"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "read request"))
		return
	}
	var req RunRequest
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Array == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "array is required"))
		return
	}
	if req.Func == "" {
		req.Func = "identity"
	}
	fn, err := funcs.New(req.Func, req.Params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	opts := pipeline.Options{
		Job:        req.Job,
		SourceID:   "sha256:" + cache.Hash(body),
		FuncName:   req.Func,
		FuncParams: req.Params,
		Source:     source.FromArray(req.Array),
		Func:       fn,
		Logger:     s.logger,
	}
	res, err := s.runner.Execute(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := sink.RenderJSON(res.Stitched, sink.WithJSONJob(res.JobID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("X-Job-ID", res.JobID)
	writeRaw(w, http.StatusOK, data)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "partition key"))
		return
	}
	if _, ok := s.runner.Partitions.Lookup(key); !ok {
		s.writeError(w, r, errors.New(errors.ErrCodeNotFound, "partition %q not found", key))
		return
	}
	jobs := s.runner.Jobs(key)
	if jobs == nil {
		jobs = []pipeline.JobRecord{}
	}
	writeJSON(w, http.StatusOK, jobs)
}
