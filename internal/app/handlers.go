package app

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/MrWong99/voxlink/pkg/activation"
)

// Register adds the control endpoints to mux:
//
//	GET /activations             list activations and their live state
//	PUT /activations/{id}/key    press or release a push-to-talk key
//	GET /session                 metadata of the active session
func (a *App) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /activations", a.handleActivations)
	mux.HandleFunc("PUT /activations/{id}/key", a.handleKey)
	mux.HandleFunc("GET /session", a.handleSession)
}

// activationState is one entry of the GET /activations response.
type activationState struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Parent      bool      `json:"parent"`
	Type        string    `json:"type"`
	Mode        string    `json:"mode"`
	Distance    int16     `json:"distance"`
	ThresholdDB float64   `json:"threshold_db"`
	Stereo      bool      `json:"stereo"`
	Transitive  bool      `json:"transitive"`
	Disabled    bool      `json:"disabled"`
	Activated   bool      `json:"activated"`
	KeyPressed  bool      `json:"key_pressed"`
}

func (a *App) stateOf(act *activation.Activation, parent bool) activationState {
	s := activationState{
		ID:          act.ID(),
		Name:        act.Name(),
		Parent:      parent,
		Type:        act.Type().String(),
		Mode:        act.Mode().String(),
		Distance:    act.Distance(),
		ThresholdDB: act.Threshold(),
		Stereo:      act.StereoSupported(),
		Transitive:  act.Transitive(),
		Disabled:    act.Disabled(),
		Activated:   act.IsActivated(),
	}
	if k, ok := a.key(act.ID()); ok {
		s.KeyPressed = k.Pressed()
	}
	return s
}

// handleActivations handles GET /activations. The parent, when it is not
// part of the ordered list, is reported first.
func (a *App) handleActivations(w http.ResponseWriter, _ *http.Request) {
	parent := a.activations.Parent()
	list := a.activations.Activations()

	out := make([]activationState, 0, len(list)+1)
	if parent != nil && !contains(list, parent) {
		out = append(out, a.stateOf(parent, true))
	}
	for _, act := range list {
		out = append(out, a.stateOf(act, act == parent))
	}
	writeJSON(w, http.StatusOK, out)
}

func contains(list []*activation.Activation, a *activation.Activation) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

// keyRequest is the JSON body for the key endpoint.
type keyRequest struct {
	Pressed *bool `json:"pressed"`
}

// handleKey handles PUT /activations/{id}/key.
func (a *App) handleKey(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid activation id", http.StatusBadRequest)
		return
	}

	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Pressed == nil {
		http.Error(w, "pressed is required", http.StatusBadRequest)
		return
	}

	act, ok := a.activations.Get(id)
	if !ok {
		http.Error(w, "activation not found", http.StatusNotFound)
		return
	}
	if act.Mode() != activation.ModePushToTalk {
		http.Error(w, "activation is not push-to-talk", http.StatusConflict)
		return
	}
	key, ok := a.key(id)
	if !ok {
		http.Error(w, "activation has no key", http.StatusConflict)
		return
	}

	if *req.Pressed {
		key.Press()
	} else {
		key.Release()
	}
	slog.Debug("app: push-to-talk", "activation", act.Name(), "pressed", *req.Pressed)
	writeJSON(w, http.StatusOK, a.stateOf(act, act == a.activations.Parent()))
}

// sessionResponse is the JSON body of GET /session.
type sessionResponse struct {
	Active   bool         `json:"active"`
	Session  *SessionInfo `json:"session,omitempty"`
	Sequence uint64       `json:"sequence"`
}

// handleSession handles GET /session.
func (a *App) handleSession(w http.ResponseWriter, _ *http.Request) {
	resp := sessionResponse{
		Active:   a.sessions.IsActive(),
		Sequence: a.pipeline.Sequence(),
	}
	if resp.Active {
		info := a.sessions.Info()
		resp.Session = &info
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("app: encode response", "err", err)
	}
}
