package server

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"

	"github.com/fxnlabs/tileplan/internal/device"
	"github.com/fxnlabs/tileplan/internal/planerr"
	"github.com/fxnlabs/tileplan/internal/planner"
	"github.com/fxnlabs/tileplan/internal/simulate"
	"go.uber.org/zap"
)

// maxVerifyElements caps the work /verify simulates on the host.
const maxVerifyElements = 1 << 24

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps planning errors onto HTTP: a bad request is the caller's
// fault, an unavailable blueprint is well-formed but cannot run here.
func statusFor(err error) int {
	switch planerr.KindOf(err) {
	case planerr.KindInvalidConfig:
		return http.StatusBadRequest
	case planerr.KindUnavailable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(log *zap.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to write response", zap.Int("status", status), zap.Error(err))
	}
}

func writeError(log *zap.Logger, w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	if kind := planerr.KindOf(err); kind != 0 {
		resp.Kind = kind.String()
	}
	writeJSON(log, w, status, resp)
}

// PlanHandler serves POST /plan.
func PlanHandler(log *zap.Logger, p *planner.Planner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req planner.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Debug("invalid plan request", zap.Error(err))
			writeError(log, w, http.StatusBadRequest, err)
			return
		}

		res, err := p.Plan(req)
		if err != nil {
			writeError(log, w, statusFor(err), err)
			return
		}
		writeJSON(log, w, http.StatusOK, res)
	}
}

type verifyRequest struct {
	planner.Request
	Seed uint64 `json:"seed"`
}

type verifyResponse struct {
	Outcome simulate.Outcome `json:"outcome"`
	Routine string           `json:"routine,omitempty"`
	Report  simulate.Report  `json:"report"`
	Error   string           `json:"error,omitempty"`
}

// VerifyHandler serves POST /verify: it plans the request, runs the launch on
// the host with random operands and compares the result with a direct product.
func VerifyHandler(log *zap.Logger, p *planner.Planner, epsilon float64, mode simulate.ReportMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(log, w, http.StatusBadRequest, err)
			return
		}
		desc := req.Problem
		if uint64(desc.M)*uint64(desc.N)*uint64(desc.K)*uint64(desc.Batch) > maxVerifyElements {
			writeError(log, w, http.StatusBadRequest, errors.New("problem too large to verify on the host"))
			return
		}

		var resp verifyResponse
		res, err := p.Plan(req.Request)
		if err == nil {
			resp.Routine = res.Launch.Name
			rng := rand.New(rand.NewPCG(req.Seed, req.Seed^0x9e3779b97f4a7c15))
			resp.Report, err = simulate.Verify(res.Launch, desc, simulate.RandomOperands(desc, rng), epsilon, mode)
		}
		resp.Outcome = simulate.Judge(err, mode)
		if err != nil {
			resp.Error = err.Error()
		}
		log.Info("verification finished",
			zap.Stringer("problem", desc),
			zap.Stringer("outcome", resp.Outcome),
			zap.Error(err))
		writeJSON(log, w, http.StatusOK, resp)
	}
}

type devicesResponse struct {
	Selected string          `json:"selected"`
	Settings device.Settings `json:"settings"`
	Profiles []device.Limits `json:"profiles"`
}

// DevicesHandler serves GET /devices.
func DevicesHandler(log *zap.Logger, p *planner.Planner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(log, w, http.StatusOK, devicesResponse{
			Selected: p.DeviceName(),
			Settings: p.Settings(),
			Profiles: p.Profiles(),
		})
	}
}
