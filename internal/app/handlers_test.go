package app_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/MrWong99/voxlink/internal/app"
)

type activationJSON struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Parent     bool      `json:"parent"`
	Mode       string    `json:"mode"`
	Distance   int16     `json:"distance"`
	KeyPressed bool      `json:"key_pressed"`
}

func do(t *testing.T, a *app.App, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	a.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func listActivations(t *testing.T, a *app.App) []activationJSON {
	t.Helper()
	rec := do(t, a, "GET", "/activations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /activations status = %d", rec.Code)
	}
	var out []activationJSON
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestHandleActivations(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(t, testConfig())
	got := listActivations(t, a)
	if len(got) != 3 {
		t.Fatalf("got %d activations, want 3", len(got))
	}
	if !got[0].Parent || got[0].Name != "voice" {
		t.Errorf("first entry = %+v, want the parent voice activation", got[0])
	}
	if got[2].Mode != "push_to_talk" || got[2].Distance != -1 {
		t.Errorf("radio entry = %+v", got[2])
	}
}

func TestHandleKey(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(t, testConfig())

	rec := do(t, a, "PUT", "/activations/"+idRadio+"/key", `{"pressed": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("press status = %d, body %q", rec.Code, rec.Body.String())
	}
	if got := listActivations(t, a)[2]; !got.KeyPressed {
		t.Error("radio key should be pressed")
	}

	rec = do(t, a, "PUT", "/activations/"+idRadio+"/key", `{"pressed": false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("release status = %d", rec.Code)
	}
	if got := listActivations(t, a)[2]; got.KeyPressed {
		t.Error("radio key should be released")
	}
}

func TestHandleKey_Errors(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(t, testConfig())
	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"invalid id", "/activations/not-a-uuid/key", `{"pressed": true}`, http.StatusBadRequest},
		{"invalid body", "/activations/" + idRadio + "/key", `{`, http.StatusBadRequest},
		{"missing pressed", "/activations/" + idRadio + "/key", `{}`, http.StatusBadRequest},
		{"unknown activation", "/activations/" + uuid.NewString() + "/key", `{"pressed": true}`, http.StatusNotFound},
		{"not push-to-talk", "/activations/" + idVoice + "/key", `{"pressed": true}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, a, "PUT", tt.path, tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandleSession_Inactive(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(t, testConfig())
	rec := do(t, a, "GET", "/session", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Active  bool             `json:"active"`
		Session *app.SessionInfo `json:"session"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Active || body.Session != nil {
		t.Errorf("body = %+v, want inactive without session", body)
	}
}
