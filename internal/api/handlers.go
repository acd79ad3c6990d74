package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/star/starflux/internal/cache"
	"github.com/star/starflux/internal/catalog"
	"github.com/star/starflux/internal/eclipse"
	"github.com/star/starflux/internal/httputil"
	"github.com/star/starflux/internal/kepler"
	"github.com/star/starflux/internal/lightcurve"
	"github.com/star/starflux/internal/system"
	"github.com/star/starflux/internal/units"
)

// DefaultMaxPoints caps the samples of one light curve request.
const DefaultMaxPoints = 100_000

// defaultCatalogPoints is the sample count of a catalog light curve when
// the request does not give one.
const defaultCatalogPoints = 1000

// maxBodyBytes limits request bodies.
const maxBodyBytes = 4 << 20

type handlers struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
}

// lightcurveRequest selects sample times either explicitly or as n evenly
// spaced times over [start, stop].
type lightcurveRequest struct {
	System lightcurve.Spec `json:"system"`
	Times  []float64       `json:"times,omitempty"`
	Start  *float64        `json:"start,omitempty"`
	Stop   *float64        `json:"stop,omitempty"`
	N      int             `json:"n,omitempty"`
}

type eclipseRequest struct {
	System    lightcurve.Spec `json:"system"`
	Start     float64         `json:"start"`
	Stop      float64         `json:"stop"`
	MaxEvents int             `json:"max_events,omitempty"`
}

type eclipseResponse struct {
	Bodies []eclipse.BodyEvents `json:"bodies"`
}

type catalogResponse struct {
	Planets []catalog.Planet `json:"planets"`
	System  *lightcurve.Spec `json:"system,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// budgetError is a request that asks for more samples than allowed.
type budgetError struct {
	requested, max int
}

func (e *budgetError) Error() string {
	return fmt.Sprintf("requested %d points exceeds limit of %d", e.requested, e.max)
}

// times resolves the sample times of req.
func (r *lightcurveRequest) times(maxPoints int) ([]float64, error) {
	if len(r.Times) > 0 {
		if r.Start != nil || r.Stop != nil || r.N != 0 {
			return nil, errors.New("give either times or start, stop and n")
		}
		if len(r.Times) > maxPoints {
			return nil, &budgetError{len(r.Times), maxPoints}
		}
		for _, t := range r.Times {
			if math.IsNaN(t) || math.IsInf(t, 0) {
				return nil, errors.New("times must be finite")
			}
		}
		return r.Times, nil
	}
	if r.Start == nil || r.Stop == nil || r.N <= 0 {
		return nil, errors.New("times, or start, stop and n > 0, are required")
	}
	if r.N > maxPoints {
		return nil, &budgetError{r.N, maxPoints}
	}
	if !(*r.Stop >= *r.Start) || math.IsInf(*r.Start, 0) || math.IsInf(*r.Stop, 0) {
		return nil, errors.New("start and stop must be finite with start <= stop")
	}
	return lightcurve.Linspace(*r.Start, *r.Stop, r.N), nil
}

func (h *handlers) lightcurve(w http.ResponseWriter, r *http.Request) {
	var req lightcurveRequest
	if !h.decode(w, r, &req) {
		return
	}
	times, err := req.times(h.cfg.MaxPoints)
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}
	h.serveCurve(w, r, "lightcurve", req, req.System, times, false)
}

func (h *handlers) eclipses(w http.ResponseWriter, r *http.Request) {
	var req eclipseRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.MaxEvents <= 0 || (h.cfg.MaxEvents > 0 && req.MaxEvents > h.cfg.MaxEvents) {
		req.MaxEvents = h.cfg.MaxEvents
	}

	h.cached(w, r, "eclipses", req, false, func(ctx context.Context) (any, error) {
		bodies, err := eclipse.Find(ctx, eclipse.Request{
			Spec:      req.System,
			Start:     req.Start,
			Stop:      req.Stop,
			MaxEvents: req.MaxEvents,
		})
		if err != nil {
			return nil, err
		}
		// Partial results of a timed out search are not cached.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return eclipseResponse{Bodies: bodies}, nil
	})
}

func (h *handlers) catalogSystem(w http.ResponseWriter, r *http.Request) {
	planets, ok := h.lookup(w, r)
	if !ok {
		return
	}
	resp := catalogResponse{Planets: planets}
	spec, err := catalog.ToSpec(planets, catalog.DefaultLimbDarkening)
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.System = &spec
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// catalogLightCurve evaluates a catalog system. Query parameters: start and
// stop (Julian Dates or RFC 3339 times, default ±5% of the first planet's
// period about its mid-transit time), n, and u1, u2 for the stellar limb
// darkening.
func (h *handlers) catalogLightCurve(w http.ResponseWriter, r *http.Request) {
	planets, ok := h.lookup(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	u := append([]float64(nil), catalog.DefaultLimbDarkening...)
	for i, name := range []string{"u1", "u2"} {
		if s := q.Get(name); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				h.writeBadRequest(w, fmt.Errorf("%s: %w", name, err))
				return
			}
			u[i] = v
		}
	}
	spec, err := catalog.ToSpec(planets, u)
	if err != nil {
		h.writeError(w, err)
		return
	}

	first := spec.Secondaries[0]
	half := 0.05 * *first.OrbPer
	req := lightcurveRequest{
		System: spec,
		Start:  lightcurve.Float(*first.RefTime - half),
		Stop:   lightcurve.Float(*first.RefTime + half),
		N:      defaultCatalogPoints,
	}
	for name, dst := range map[string]**float64{"start": &req.Start, "stop": &req.Stop} {
		if s := q.Get(name); s != "" {
			v, err := parseEpoch(s)
			if err != nil {
				h.writeBadRequest(w, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = lightcurve.Float(v)
		}
	}
	if s := q.Get("n"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			h.writeBadRequest(w, fmt.Errorf("n: %w", err))
			return
		}
		req.N = n
	}

	times, err := req.times(h.cfg.MaxPoints)
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}
	h.serveCurve(w, r, "catalog-lightcurve", req, spec, times, true)
}

// parseEpoch reads a Julian Date or an RFC 3339 time.
func parseEpoch(s string) (float64, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, fmt.Errorf("want a Julian Date or RFC 3339 time: %w", err)
	}
	return units.JulianDate(t), nil
}

func (h *handlers) cacheStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cache == nil {
		httputil.WriteError(w, http.StatusNotFound, "result cache disabled")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.deps.Cache.Stats())
}

func (h *handlers) catalogReady() error {
	if h.deps.Catalog == nil || h.deps.Catalog.Get() != nil {
		return nil
	}
	return catalog.ErrNoData
}

func (h *handlers) serveCurve(w http.ResponseWriter, r *http.Request, kind string, key any, spec lightcurve.Spec, times []float64, fromCatalog bool) {
	h.cached(w, r, kind, key, fromCatalog, func(ctx context.Context) (any, error) {
		return h.deps.Evaluator.Compute(ctx, spec, times)
	})
}

// cached serves the response for key from the result cache, or computes,
// stores and serves it.
func (h *handlers) cached(w http.ResponseWriter, r *http.Request, kind string, key any, fromCatalog bool, compute func(context.Context) (any, error)) {
	var k cache.Key
	if h.deps.Cache != nil {
		var err error
		if k, err = cache.NewKey(kind, key); err != nil {
			h.writeBadRequest(w, err)
			return
		}
		if body := h.deps.Cache.Get(k); body != nil {
			w.Header().Set("X-Cache", "hit")
			httputil.WriteRawJSON(w, http.StatusOK, body)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
	defer cancel()
	result, err := compute(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}

	body, err := json.Marshal(result)
	if err != nil {
		h.writeError(w, fmt.Errorf("encoding response: %w", err))
		return
	}
	body = append(body, '\n')
	if h.deps.Cache != nil {
		h.deps.Cache.Put(k, body, fromCatalog)
		w.Header().Set("X-Cache", "miss")
	}
	httputil.WriteRawJSON(w, http.StatusOK, body)
}

func (h *handlers) lookup(w http.ResponseWriter, r *http.Request) ([]catalog.Planet, bool) {
	if h.deps.Catalog == nil {
		httputil.WriteError(w, http.StatusNotFound, "catalog disabled")
		return nil, false
	}
	planets, err := h.deps.Catalog.Lookup(r.PathValue("name"))
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return planets, true
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, err.Error())
			return false
		}
		h.writeBadRequest(w, fmt.Errorf("decoding request: %w", err))
		return false
	}
	return true
}

func (h *handlers) writeBadRequest(w http.ResponseWriter, err error) {
	var budget *budgetError
	if errors.As(err, &budget) {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error":      err.Error(),
			"max_points": budget.max,
		})
		return
	}
	httputil.WriteError(w, http.StatusBadRequest, err.Error())
}

// writeError maps domain errors to HTTP statuses.
func (h *handlers) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	httputil.WriteError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, system.ErrValidation),
		errors.Is(err, lightcurve.ErrSpec),
		errors.Is(err, eclipse.ErrWindow):
		return http.StatusBadRequest
	case errors.Is(err, kepler.ErrConvergence):
		return http.StatusUnprocessableEntity
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrIncomplete):
		return http.StatusUnprocessableEntity
	case errors.Is(err, catalog.ErrNoData):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
