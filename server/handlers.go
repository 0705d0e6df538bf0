package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/c360studio/shopfloor/cutlist"
	"github.com/c360studio/shopfloor/storage"
)

// writeJSON marshals v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Response is already partially written; nothing useful to do.
		_ = err
	}
}

// writeError maps store and domain errors onto HTTP status codes: validation
// failures are 400, missing entities 404, illegal job transitions 409.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case cutlist.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case cutlist.IsConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.logger.Error("Request failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// decodeBody decodes a size-limited JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// pathSegments strips prefix from the request path and splits the remainder
// on "/". A trailing slash yields the same segments as none.
func pathSegments(path, prefix string) []string {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// ----------------------------------------------------------------------------
// /api/v1/jobs
// ----------------------------------------------------------------------------

// CreateJobRequest is the request body for POST /api/v1/jobs.
type CreateJobRequest struct {
	Name     string `json:"name"`
	Customer string `json:"customer,omitempty"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobs, err := s.store.ListJobs(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, jobs)

	case http.MethodPost:
		var req CreateJobRequest
		if !decodeBody(w, r, &req) {
			return
		}
		j, err := s.store.CreateJob(r.Context(), req.Name, req.Customer)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, j)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ----------------------------------------------------------------------------
// /api/v1/jobs/{id}/...
// ----------------------------------------------------------------------------

// CreateCutlistRequest is the request body for POST /api/v1/jobs/{id}/cutlists.
type CreateCutlistRequest struct {
	Name string `json:"name"`
}

// AddStockRequest is the request body for POST /api/v1/jobs/{id}/stock.
type AddStockRequest struct {
	MaterialType string `json:"material_type"`
	Quantity     int    `json:"quantity"`
}

// AddHardwareRequest is the request body for POST /api/v1/jobs/{id}/hardware.
type AddHardwareRequest struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// AddRodRequest is the request body for POST /api/v1/jobs/{id}/rods.
type AddRodRequest struct {
	Name     string `json:"name"`
	LengthMM int    `json:"length_mm"`
	Quantity int    `json:"quantity"`
}

// AddChecklistItemRequest is the request body for POST /api/v1/jobs/{id}/checklist.
type AddChecklistItemRequest struct {
	Label string `json:"label"`
}

// StartSessionResponse is the response from POST /api/v1/jobs/{id}/sessions.
type StartSessionResponse struct {
	SessionID string       `json:"session_id"`
	Job       *cutlist.Job `json:"job"`
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	seg := pathSegments(r.URL.Path, "/api/v1/jobs/")
	if len(seg) == 0 {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}
	jobID := seg[0]

	if len(seg) == 1 {
		switch r.Method {
		case http.MethodGet:
			j, err := s.store.GetJob(r.Context(), jobID)
			if err != nil {
				s.writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, j)
		case http.MethodDelete:
			if err := s.store.DeleteJob(r.Context(), jobID); err != nil {
				s.writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch seg[1] {
	case "detail":
		if r.Method != http.MethodGet || len(seg) != 2 {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		detail, err := s.store.GetJobDetail(r.Context(), jobID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)

	case storage.ActionStart, storage.ActionPause, storage.ActionResume, storage.ActionComplete:
		if r.Method != http.MethodPost || len(seg) != 2 {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		j, err := s.store.Transition(r.Context(), jobID, seg[1])
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, j)

	case "cutlists":
		s.handleJobCutlists(w, r, jobID)

	case "stock":
		s.handleJobStock(w, r, jobID)

	case "hardware":
		s.handleJobHardware(w, r, jobID)

	case "rods":
		s.handleJobRods(w, r, jobID)

	case "checklist":
		s.handleJobChecklist(w, r, jobID)

	case "sessions":
		s.handleJobSessions(w, r, jobID, seg)

	default:
		http.Error(w, "Unknown endpoint", http.StatusNotFound)
	}
}

func (s *Server) handleJobCutlists(w http.ResponseWriter, r *http.Request, jobID string) {
	switch r.Method {
	case http.MethodGet:
		cutlists, err := s.store.ListCutlistsByJob(r.Context(), jobID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cutlists)
	case http.MethodPost:
		var req CreateCutlistRequest
		if !decodeBody(w, r, &req) {
			return
		}
		cl, err := s.store.CreateCutlist(r.Context(), jobID, req.Name)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, cl)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleJobStock(w http.ResponseWriter, r *http.Request, jobID string) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.store.ListStockByJob(r.Context(), jobID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req AddStockRequest
		if !decodeBody(w, r, &req) {
			return
		}
		rec, err := s.store.AddStock(r.Context(), jobID, req.MaterialType, req.Quantity)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleJobHardware(w http.ResponseWriter, r *http.Request, jobID string) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.store.ListHardwareByJob(r.Context(), jobID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req AddHardwareRequest
		if !decodeBody(w, r, &req) {
			return
		}
		rec, err := s.store.AddHardware(r.Context(), jobID, req.Name, req.Quantity)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleJobRods(w http.ResponseWriter, r *http.Request, jobID string) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.store.ListRodsByJob(r.Context(), jobID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req AddRodRequest
		if !decodeBody(w, r, &req) {
			return
		}
		rec, err := s.store.AddRod(r.Context(), jobID, req.Name, req.LengthMM, req.Quantity)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleJobChecklist(w http.ResponseWriter, r *http.Request, jobID string) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.store.ListChecklistByJob(r.Context(), jobID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req AddChecklistItemRequest
		if !decodeBody(w, r, &req) {
			return
		}
		rec, err := s.store.AddChecklistItem(r.Context(), jobID, req.Label)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleJobSessions(w http.ResponseWriter, r *http.Request, jobID string, seg []string) {
	switch {
	case len(seg) == 2 && r.Method == http.MethodPost:
		sessionID, j, err := s.store.StartSession(r.Context(), jobID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, StartSessionResponse{SessionID: sessionID, Job: j})

	case len(seg) == 3 && r.Method == http.MethodDelete:
		j, err := s.store.StopSession(r.Context(), jobID, seg[2])
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, j)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ----------------------------------------------------------------------------
// /api/v1/cutlists/{id}/...
// ----------------------------------------------------------------------------

// CreateMaterialRequest is the request body for POST /api/v1/cutlists/{id}/materials.
type CreateMaterialRequest struct {
	Color       string `json:"color"`
	TotalSheets int    `json:"total_sheets"`
}

func (s *Server) handleCutlist(w http.ResponseWriter, r *http.Request) {
	seg := pathSegments(r.URL.Path, "/api/v1/cutlists/")
	if len(seg) == 0 {
		http.Error(w, "Cutlist ID required", http.StatusBadRequest)
		return
	}
	cutlistID := seg[0]

	if len(seg) == 1 {
		switch r.Method {
		case http.MethodGet:
			detail, err := s.store.GetCutlistDetail(r.Context(), cutlistID)
			if err != nil {
				s.writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, detail)
		case http.MethodDelete:
			if err := s.store.DeleteCutlist(r.Context(), cutlistID); err != nil {
				s.writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if seg[1] != "materials" || len(seg) != 2 {
		http.Error(w, "Unknown endpoint", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		materials, err := s.store.ListMaterialsByCutlist(r.Context(), cutlistID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, materials)
	case http.MethodPost:
		var req CreateMaterialRequest
		if !decodeBody(w, r, &req) {
			return
		}
		m, err := s.store.CreateMaterial(r.Context(), cutlistID, req.Color, req.TotalSheets)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ----------------------------------------------------------------------------
// /api/v1/materials/{id}/...
// ----------------------------------------------------------------------------

// SheetStatusRequest is the request body for the sheet-status endpoints on
// materials and recut batches. With Toggle set, writing the status a sheet
// already has clears it back to pending.
type SheetStatusRequest struct {
	SheetIndex int                 `json:"sheet_index"`
	Status     cutlist.SheetStatus `json:"status"`
	Toggle     bool                `json:"toggle,omitempty"`
}

// AddSheetsRequest is the request body for POST /api/v1/materials/{id}/sheets.
type AddSheetsRequest struct {
	Additional int `json:"additional"`
}

// AddRecutRequest is the request body for POST /api/v1/materials/{id}/recuts.
type AddRecutRequest struct {
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleMaterial(w http.ResponseWriter, r *http.Request) {
	seg := pathSegments(r.URL.Path, "/api/v1/materials/")
	if len(seg) == 0 {
		http.Error(w, "Material ID required", http.StatusBadRequest)
		return
	}
	materialID := seg[0]

	if len(seg) == 1 {
		switch r.Method {
		case http.MethodGet:
			detail, err := s.store.GetMaterialDetail(r.Context(), materialID)
			if err != nil {
				s.writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, detail)
		case http.MethodDelete:
			if err := s.store.DeleteMaterial(r.Context(), materialID); err != nil {
				s.writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch seg[1] {
	case "sheet-status":
		if r.Method != http.MethodPut || len(seg) != 2 {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req SheetStatusRequest
		if !decodeBody(w, r, &req) {
			return
		}
		status := req.Status
		if req.Toggle {
			m, err := s.store.GetMaterial(r.Context(), materialID)
			if err != nil {
				s.writeError(w, err)
				return
			}
			status = cutlist.Toggle(cutlist.StatusAt(m.SheetStatuses, req.SheetIndex), req.Status)
		}
		m, err := s.store.SetSheetStatus(r.Context(), materialID, req.SheetIndex, status)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)

	case "sheets":
		switch {
		case len(seg) == 2 && r.Method == http.MethodPost:
			var req AddSheetsRequest
			if !decodeBody(w, r, &req) {
				return
			}
			m, err := s.store.AddSheets(r.Context(), materialID, req.Additional)
			if err != nil {
				s.writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, m)

		case len(seg) == 3 && r.Method == http.MethodDelete:
			index, err := strconv.Atoi(seg[2])
			if err != nil {
				http.Error(w, "Invalid sheet index", http.StatusBadRequest)
				return
			}
			m, err := s.store.DeleteSheet(r.Context(), materialID, index)
			if err != nil {
				s.writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, m)

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}

	case "recuts":
		if r.Method != http.MethodPost || len(seg) != 2 {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req AddRecutRequest
		if !decodeBody(w, r, &req) {
			return
		}
		batch, err := s.store.AddRecut(r.Context(), materialID, req.Quantity, req.Reason)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, batch)

	default:
		http.Error(w, "Unknown endpoint", http.StatusNotFound)
	}
}

// ----------------------------------------------------------------------------
// /api/v1/recuts/{id}/...
// ----------------------------------------------------------------------------

func (s *Server) handleRecut(w http.ResponseWriter, r *http.Request) {
	seg := pathSegments(r.URL.Path, "/api/v1/recuts/")
	if len(seg) == 0 {
		http.Error(w, "Recut ID required", http.StatusBadRequest)
		return
	}
	recutID := seg[0]

	if len(seg) == 1 {
		switch r.Method {
		case http.MethodGet:
			batch, _, err := s.store.GetRecut(r.Context(), recutID)
			if err != nil {
				s.writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, batch)
		case http.MethodDelete:
			if err := s.store.DeleteRecut(r.Context(), recutID); err != nil {
				s.writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if seg[1] != "sheet-status" || len(seg) != 2 {
		http.Error(w, "Unknown endpoint", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SheetStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	status := req.Status
	if req.Toggle {
		batch, _, err := s.store.GetRecut(r.Context(), recutID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		status = cutlist.Toggle(cutlist.StatusAt(batch.SheetStatuses, req.SheetIndex), req.Status)
	}
	batch, err := s.store.SetRecutSheetStatus(r.Context(), recutID, req.SheetIndex, status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// ----------------------------------------------------------------------------
// Flat record endpoints
// ----------------------------------------------------------------------------

// QuantityRequest is the request body for quantity updates on stock and
// hardware records.
type QuantityRequest struct {
	Quantity int `json:"quantity"`
}

// DoneRequest is the request body for PUT /api/v1/checklist/{id}.
type DoneRequest struct {
	Done bool `json:"done"`
}

func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	seg := pathSegments(r.URL.Path, "/api/v1/stock/")
	if len(seg) != 1 {
		http.Error(w, "Stock ID required", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req QuantityRequest
		if !decodeBody(w, r, &req) {
			return
		}
		rec, err := s.store.UpdateStockQuantity(r.Context(), seg[0], req.Quantity)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodDelete:
		if err := s.store.DeleteStock(r.Context(), seg[0]); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleHardware(w http.ResponseWriter, r *http.Request) {
	seg := pathSegments(r.URL.Path, "/api/v1/hardware/")
	if len(seg) != 1 {
		http.Error(w, "Hardware ID required", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req QuantityRequest
		if !decodeBody(w, r, &req) {
			return
		}
		rec, err := s.store.UpdateHardwareQuantity(r.Context(), seg[0], req.Quantity)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodDelete:
		if err := s.store.DeleteHardware(r.Context(), seg[0]); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRod(w http.ResponseWriter, r *http.Request) {
	seg := pathSegments(r.URL.Path, "/api/v1/rods/")
	if len(seg) != 1 {
		http.Error(w, "Rod ID required", http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.store.DeleteRod(r.Context(), seg[0]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChecklistItem(w http.ResponseWriter, r *http.Request) {
	seg := pathSegments(r.URL.Path, "/api/v1/checklist/")
	if len(seg) != 1 {
		http.Error(w, "Checklist item ID required", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req DoneRequest
		if !decodeBody(w, r, &req) {
			return
		}
		rec, err := s.store.SetChecklistItemDone(r.Context(), seg[0], req.Done)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodDelete:
		if err := s.store.DeleteChecklistItem(r.Context(), seg[0]); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
