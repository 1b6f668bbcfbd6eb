package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"maintenance-classifier/internal/domain"
	"maintenance-classifier/internal/features"
	"maintenance-classifier/internal/ml"
	"maintenance-classifier/internal/prediction"

	"github.com/go-chi/render"
)

// readingFields accepts both the snake_case names and the form field names
// the dashboard posts.
type readingFields struct {
	Type               string                   `json:"type"`
	MachineType        string                   `json:"machine_type"`
	Unit               features.TemperatureUnit `json:"unit"`
	AirTemperature     *float64                 `json:"air_temperature"`
	ProcessTemperature *float64                 `json:"process_temperature"`
	RotationalSpeed    *float64                 `json:"rotational_speed"`
	Torque             *float64                 `json:"torque"`
	ToolWear           *float64                 `json:"tool_wear"`

	AirTemperatureK     *float64 `json:"Air_temperature_K"`
	ProcessTemperatureK *float64 `json:"Process_temperature_K"`
	RotationalSpeedRPM  *float64 `json:"Rotational_speed_rpm"`
	TorqueNm            *float64 `json:"Torque_Nm"`
	ToolWearMin         *float64 `json:"Tool_wear_min"`
}

func (f readingFields) raw() features.RawReading {
	t := f.Type
	if t == "" {
		t = f.MachineType
	}
	return features.RawReading{
		Type:               t,
		Unit:               features.TemperatureUnit(strings.ToUpper(string(f.Unit))),
		AirTemperature:     first(f.AirTemperature, f.AirTemperatureK),
		ProcessTemperature: first(f.ProcessTemperature, f.ProcessTemperatureK),
		RotationalSpeed:    first(f.RotationalSpeed, f.RotationalSpeedRPM),
		Torque:             first(f.Torque, f.TorqueNm),
		ToolWear:           first(f.ToolWear, f.ToolWearMin),
	}
}

func first(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}

type summary struct {
	MostConfidentModel string  `json:"most_confident_model"`
	FinalDecision      string  `json:"final_decision"`
	Confidence         float64 `json:"confidence"`
}

type predictResponse struct {
	Input            *features.RawReading  `json:"input,omitempty"`
	PerModel         []ml.Verdict          `json:"per_model"`
	Chosen           ml.Verdict            `json:"chosen"`
	DerivedFeatures  features.Vector       `json:"derived_features"`
	Predictions      map[string]ml.Verdict `json:"predictions"`
	Summary          summary               `json:"summary"`
	ModelPerformance []ml.ModelPerformance `json:"model_performance"`
	ScoredAt         *time.Time            `json:"scored_at,omitempty"`
	Source           string                `json:"source,omitempty"`
	RecordID         uint64                `json:"log_id,omitempty"`
}

func (s *Server) buildPredictResponse(input *features.RawReading, res ml.Result) predictResponse {
	preds := make(map[string]ml.Verdict, len(res.PerModel))
	for _, v := range res.PerModel {
		preds[v.Model] = v
	}
	return predictResponse{
		Input:           input,
		PerModel:        res.PerModel,
		Chosen:          res.Chosen,
		DerivedFeatures: res.Features,
		Predictions:     preds,
		Summary: summary{
			MostConfidentModel: res.Chosen.Model,
			FinalDecision:      res.Chosen.Label,
			Confidence:         res.Chosen.Confidence,
		},
		ModelPerformance: s.models.Performance(),
	}
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request) {
	var req readingFields
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, badRequest("invalid JSON body: "+err.Error()))
		return
	}

	raw := req.raw()
	res, err := s.lifecycle.Predict(r.Context(), raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, s.buildPredictResponse(&raw, res))
}

// latestPrediction serves the most recent verdict for the dashboard.
func (s *Server) latestPrediction(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.lifecycle.Latest().Get()
	if !ok {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, errorResponse{Detail: "no prediction has been made yet"})
		return
	}

	resp := s.buildPredictResponse(nil, snap.Result)
	resp.ScoredAt = &snap.ScoredAt
	resp.Source = snap.Source
	resp.RecordID = snap.RecordID
	render.JSON(w, r, resp)
}

type createLogRequest struct {
	MachineID uint64 `json:"machine_id"`
	ProductID uint64 `json:"product_id"`
	readingFields
}

func (s *Server) createLog(w http.ResponseWriter, r *http.Request) {
	var req createLogRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, badRequest("invalid JSON body: "+err.Error()))
		return
	}
	if req.MachineID == 0 || req.ProductID == 0 {
		writeError(w, r, badRequest("machine_id and product_id are required"))
		return
	}

	out, err := s.lifecycle.CreateWithPrediction(r.Context(), prediction.CreateRequest{
		MachineID: req.MachineID,
		ProductID: req.ProductID,
		Reading:   req.raw(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, envelope{Message: "Log created", Data: out})
}

func (s *Server) rescoreLog(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out, err := s.lifecycle.Rescore(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, envelope{Message: "Log rescored", Data: out})
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, badRequest("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	logs, err := s.catalog.Logs(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, logs)
}

func (s *Server) getLog(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := s.catalog.Log(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, rec)
}

type machineRequest struct {
	Code string `json:"machine_code"`
	Type string `json:"type"`
}

func (s *Server) createMachine(w http.ResponseWriter, r *http.Request) {
	var req machineRequest
	if r.ContentLength != 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			writeError(w, r, badRequest("invalid JSON body: "+err.Error()))
			return
		}
	}
	if req.Type == "" {
		req.Type = r.URL.Query().Get("type")
	}
	if req.Code == "" {
		req.Code = r.URL.Query().Get("machine_code")
	}
	if strings.TrimSpace(req.Type) == "" {
		writeError(w, r, badRequest("type is required"))
		return
	}

	m, err := s.catalog.CreateMachine(r.Context(), domain.Machine{
		Code: req.Code,
		Type: string(features.ParseMachineType(req.Type)),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, envelope{Message: "Machine created", Data: m})
}

func (s *Server) listMachines(w http.ResponseWriter, r *http.Request) {
	machines, err := s.catalog.Machines(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, machines)
}

func (s *Server) getMachine(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	m, err := s.catalog.Machine(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, m)
}

type productRequest struct {
	Code string `json:"product_code"`
	Name string `json:"product_name"`
}

func (s *Server) decodeProduct(r *http.Request) (productRequest, error) {
	var req productRequest
	if r.ContentLength != 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			return req, badRequest("invalid JSON body: " + err.Error())
		}
	}
	if req.Name == "" {
		req.Name = r.URL.Query().Get("product_name")
	}
	if req.Code == "" {
		req.Code = r.URL.Query().Get("product_code")
	}
	if strings.TrimSpace(req.Name) == "" {
		return req, badRequest("product_name is required")
	}
	return req, nil
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeProduct(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := s.catalog.CreateProduct(r.Context(), domain.Product{Code: req.Code, Name: req.Name})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, envelope{Message: "Product created", Data: p})
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalog.Products(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, products)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := s.catalog.Product(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, p)
}

func (s *Server) renameProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := s.decodeProduct(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := s.catalog.RenameProduct(r.Context(), id, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, envelope{Message: "Product updated successfully", Data: p})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status": "OK",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

// ready reports 503 until at least one model can score.
func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if err := s.models.Err(); err != nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]any{"status": "unavailable", "detail": err.Error()})
		return
	}
	render.JSON(w, r, map[string]any{"status": "ready"})
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"models":            s.models.Status(),
		"model_performance": s.models.Performance(),
	})
}
