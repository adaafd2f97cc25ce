package monitoring

import (
	"encoding/json"
	"net/http"
)

// Controller is the manual-control surface the admin handlers talk to. The
// guard loop implements it.
type Controller interface {
	StatusPayload() ([]byte, error)
	TriggerLevel(level, reason string) error
	Reset()
	Resume() error
}

// AdminHandler exposes status and manual breaker control over HTTP
type AdminHandler struct {
	ctrl Controller
}

// NewAdminHandler creates the admin handler
func NewAdminHandler(ctrl Controller) *AdminHandler {
	return &AdminHandler{ctrl: ctrl}
}

// Register mounts the admin routes on the mux
func (a *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/status", a.handleStatus)
	mux.HandleFunc("/breaker/trigger", a.handleTrigger)
	mux.HandleFunc("/breaker/reset", a.handleReset)
	mux.HandleFunc("/breaker/resume", a.handleResume)
}

func (a *AdminHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	payload, err := a.ctrl.StatusPayload()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

type triggerRequest struct {
	Level  string `json:"level"`
	Reason string `json:"reason"`
}

func (a *AdminHandler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		req.Reason = "admin request"
	}
	if err := a.ctrl.TriggerLevel(req.Level, req.Reason); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeOK(w)
}

func (a *AdminHandler) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.ctrl.Reset()
	writeOK(w)
}

func (a *AdminHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := a.ctrl.Resume(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeOK(w)
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"ok":true}`))
}
