package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lifedash/internal/domain/autorule"
	"lifedash/internal/infrastructure/memory"
)

func TestRuleHandler_Lifecycle(t *testing.T) {
	h := NewRuleHandler(autorule.NewService(memory.NewRuleRepository()))

	create := `{"name":"Flag big","matchType":"any","conditions":[{"field":"amount","operator":"greater_than","value":500}],"actions":[{"type":"flag_review"}]}`
	rr := serve(t, "/api/rules", h.HandleRules,
		httptest.NewRequest(http.MethodPost, "/api/rules", bytes.NewBufferString(create)), "u1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201 (%s)", rr.Code, rr.Body.String())
	}
	var created struct {
		ID       string `json:"id"`
		IsActive bool   `json:"isActive"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	if created.ID == "" || !created.IsActive {
		t.Fatalf("created = %+v, want active rule with id", created)
	}

	rr = serve(t, "/api/rules", h.HandleRules, httptest.NewRequest(http.MethodGet, "/api/rules", nil), "u1")
	var listed []map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&listed); err != nil || len(listed) != 1 {
		t.Fatalf("list = %v (%v), want 1 rule", listed, err)
	}

	rr = serve(t, "/api/rules", h.HandleRules, httptest.NewRequest(http.MethodGet, "/api/rules", nil), "u2")
	if body := bytes.TrimSpace(rr.Body.Bytes()); string(body) != "[]" {
		t.Errorf("other user's list = %s, want []", body)
	}

	rr = serve(t, "/api/rules/{id}", h.HandleRuleByID,
		httptest.NewRequest(http.MethodPatch, "/api/rules/"+created.ID, bytes.NewBufferString(`{"isActive":false}`)), "u1")
	if rr.Code != http.StatusOK {
		t.Fatalf("patch status = %d, want 200", rr.Code)
	}
	var patched struct {
		IsActive bool `json:"isActive"`
	}
	_ = json.NewDecoder(rr.Body).Decode(&patched)
	if patched.IsActive {
		t.Error("rule should be inactive after patch")
	}

	rr = serve(t, "/api/rules/{id}", h.HandleRuleByID,
		httptest.NewRequest(http.MethodDelete, "/api/rules/"+created.ID, nil), "u2")
	if rr.Code != http.StatusNotFound {
		t.Errorf("delete by other user status = %d, want 404", rr.Code)
	}

	rr = serve(t, "/api/rules/{id}", h.HandleRuleByID,
		httptest.NewRequest(http.MethodDelete, "/api/rules/"+created.ID, nil), "u1")
	if rr.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rr.Code)
	}
}

func TestRuleHandler_CreateValidation(t *testing.T) {
	h := NewRuleHandler(autorule.NewService(memory.NewRuleRepository()))

	tests := []struct {
		name string
		body string
	}{
		{"Missing Name", `{"matchType":"all","actions":[{"type":"flag_review"}]}`},
		{"Bad Match Type", `{"name":"x","matchType":"some","actions":[{"type":"flag_review"}]}`},
		{"No Actions", `{"name":"x","matchType":"all","actions":[]}`},
		{"Unknown Field", `{"name":"x","matchType":"all","conditions":[{"field":"color","operator":"equals","value":"red"}],"actions":[{"type":"flag_review"}]}`},
		{"Malformed", `{"name":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(t, "/api/rules", h.HandleRules,
				httptest.NewRequest(http.MethodPost, "/api/rules", bytes.NewBufferString(tt.body)), "u1")
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%s)", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestRuleHandler_PatchRequiresIsActive(t *testing.T) {
	h := NewRuleHandler(autorule.NewService(memory.NewRuleRepository()))

	rr := serve(t, "/api/rules/{id}", h.HandleRuleByID,
		httptest.NewRequest(http.MethodPatch, "/api/rules/r1", bytes.NewBufferString(`{}`)), "u1")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}
