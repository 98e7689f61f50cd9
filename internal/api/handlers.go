package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/capacity-cli/internal/capacity"
	"github.com/sells-group/capacity-cli/internal/catalog"
	"github.com/sells-group/capacity-cli/internal/dataset"
	"github.com/sells-group/capacity-cli/internal/model"
	"github.com/sells-group/capacity-cli/internal/store"
)

// RecomputeRequest is the body of POST /v1/recompute. Params overrides the
// service norms, which override the server defaults.
type RecomputeRequest struct {
	Service          string          `json:"service,omitempty"`
	Params           json.RawMessage `json:"params,omitempty"`
	SourceEPSG       int             `json:"source_epsg,omitempty"`
	CapacityColumn   string          `json:"capacity_column,omitempty"`
	PopulationColumn string          `json:"population_column,omitempty"`
	BlockIDColumn    string          `json:"block_id_column,omitempty"`
	Facilities       json.RawMessage `json:"facilities"`
	Zones            json.RawMessage `json:"zones"`
}

// RecomputeResponse is the body of a successful recomputation.
type RecomputeResponse struct {
	RunID      string                    `json:"run_id"`
	Params     capacity.Params           `json:"params"`
	Summary    capacity.Summary          `json:"summary"`
	Allocation capacity.AllocationReport `json:"allocation"`
	Facilities json.RawMessage           `json:"facilities"`
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	var req RecomputeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	service, params, facilities, zones, err := s.prepare(req)
	if err != nil {
		status := http.StatusBadRequest
		if eris.Is(err, catalog.ErrUnknownService) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	opts := []capacity.Option{capacity.WithReprojector(s.reprojector)}
	var run *model.Run
	if s.store != nil {
		run, err = s.store.CreateRun(ctx, service, params)
		if err != nil {
			s.log.Error("create run", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not record run")
			return
		}
		opts = append(opts, capacity.WithRunID(run.ID))
	}

	res, err := capacity.Recompute(ctx, facilities, zones, params, opts...)
	if err != nil {
		if run != nil {
			if ferr := s.store.FailRun(context.WithoutCancel(ctx), run.ID, err.Error()); ferr != nil {
				s.log.Error("fail run", zap.String("run_id", run.ID), zap.Error(ferr))
			}
		}
		switch {
		case capacity.IsInputError(err):
			writeError(w, http.StatusBadRequest, err.Error())
		case eris.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, "recomputation timed out")
		default:
			s.log.Error("recompute", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "recomputation failed")
		}
		return
	}

	summary := capacity.Summarize(res)
	if run != nil {
		if err := s.store.CompleteRun(ctx, run.ID, summary); err != nil {
			s.log.Error("complete run", zap.String("run_id", run.ID), zap.Error(err))
		}
	}

	var buf bytes.Buffer
	if err := dataset.WriteGeoJSON(&buf, res); err != nil {
		s.log.Error("encode facilities", zap.String("run_id", res.RunID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not encode result")
		return
	}

	writeJSON(w, http.StatusOK, RecomputeResponse{
		RunID:      res.RunID,
		Params:     res.Params,
		Summary:    summary,
		Allocation: res.Allocation,
		Facilities: buf.Bytes(),
	})
}

// prepare resolves parameters and decodes both layers of req.
func (s *Server) prepare(req RecomputeRequest) (string, capacity.Params, capacity.FacilityTable, capacity.ZoneTable, error) {
	var (
		ft capacity.FacilityTable
		zt capacity.ZoneTable
	)
	d := s.defaults
	params := d.Params

	service := req.Service
	if service == "" {
		service = d.Service
	}
	if service != "" {
		p, err := s.catalog.Params(service, params)
		if err != nil {
			return "", params, ft, zt, err
		}
		params = p
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return "", params, ft, zt, eris.Wrap(err, "invalid params")
		}
	}

	if len(req.Facilities) == 0 || len(req.Zones) == 0 {
		return "", params, ft, zt, eris.New("facilities and zones are required")
	}
	sourceEPSG := firstInt(req.SourceEPSG, d.SourceEPSG)

	fc, err := dataset.ReadGeoJSON(bytes.NewReader(req.Facilities))
	if err != nil {
		return "", params, ft, zt, eris.Wrap(err, "facilities")
	}
	ft, err = dataset.FacilityTable(fc.WithFallbackEPSG(sourceEPSG), firstString(req.CapacityColumn, d.CapacityColumn))
	if err != nil {
		return "", params, ft, zt, err
	}

	zc, err := dataset.ReadGeoJSON(bytes.NewReader(req.Zones))
	if err != nil {
		return "", params, ft, zt, eris.Wrap(err, "zones")
	}
	zt, err = dataset.ZoneTable(zc.WithFallbackEPSG(sourceEPSG),
		firstString(req.PopulationColumn, d.PopulationColumn),
		firstString(req.BlockIDColumn, d.BlockIDColumn))
	if err != nil {
		return "", params, ft, zt, err
	}
	return service, params, ft, zt, nil
}

func firstInt(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (s *Server) handleListServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"services": s.catalog.Names()})
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	svc, err := s.catalog.Lookup(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown service")
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "run store is not configured")
		return
	}
	q := r.URL.Query()
	filter := store.RunFilter{
		Status:  model.RunStatus(q.Get("status")),
		Service: q.Get("service"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid "+name)
				return
			}
			*dst = n
		}
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		s.log.Error("list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string][]model.Run{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "run store is not configured")
		return
	}
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if eris.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.log.Error("get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}
