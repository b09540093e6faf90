package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"lifedash/internal/domain/autorule"
)

// RuleService manages a user's auto rules.
type RuleService interface {
	Create(ctx context.Context, params autorule.CreateRuleParams) (*autorule.Rule, error)
	List(ctx context.Context, userID string) ([]*autorule.Rule, error)
	SetActive(ctx context.Context, userID, id string, active bool) (*autorule.Rule, error)
	Delete(ctx context.Context, userID, id string) error
}

type RuleHandler struct {
	rules RuleService
}

func NewRuleHandler(rules RuleService) *RuleHandler {
	return &RuleHandler{rules: rules}
}

// CreateRuleRequest is the body of a rule creation.
type CreateRuleRequest struct {
	Name       string                  `json:"name"`
	IsActive   *bool                   `json:"isActive,omitempty"`
	MatchType  autorule.MatchType      `json:"matchType"`
	Conditions []autorule.RawCondition `json:"conditions"`
	Actions    []autorule.RawAction    `json:"actions"`
}

// UpdateRuleRequest toggles a rule.
type UpdateRuleRequest struct {
	IsActive *bool `json:"isActive"`
}

// HandleRules handles GET (list) and POST (create) on /api/rules.
func (h *RuleHandler) HandleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleListRules(w, r)
	case http.MethodPost:
		h.handleCreateRule(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleRuleByID handles PATCH and DELETE on /api/rules/{id}.
func (h *RuleHandler) HandleRuleByID(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPatch:
		h.handleUpdateRule(w, r)
	case http.MethodDelete:
		h.handleDeleteRule(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *RuleHandler) handleListRules(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	rules, err := h.rules.List(r.Context(), userID)
	if err != nil {
		log.Printf("User %s: failed to list rules: %v", userID, err)
		http.Error(w, "Failed to list rules", http.StatusInternalServerError)
		return
	}
	if rules == nil {
		rules = []*autorule.Rule{}
	}

	writeJSON(w, http.StatusOK, rules)
}

func (h *RuleHandler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rule, err := h.rules.Create(r.Context(), autorule.CreateRuleParams{
		UserID:     userID,
		Name:       req.Name,
		IsActive:   req.IsActive,
		MatchType:  req.MatchType,
		Conditions: req.Conditions,
		Actions:    req.Actions,
	})
	switch {
	case errors.Is(err, autorule.ErrInvalidRule):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		log.Printf("User %s: failed to create rule: %v", userID, err)
		http.Error(w, "Failed to create rule", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, rule)
}

func (h *RuleHandler) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsActive == nil {
		http.Error(w, "isActive is required", http.StatusBadRequest)
		return
	}

	rule, err := h.rules.SetActive(r.Context(), userID, r.PathValue("id"), *req.IsActive)
	switch {
	case errors.Is(err, autorule.ErrRuleNotFound):
		http.Error(w, "Rule not found", http.StatusNotFound)
		return
	case err != nil:
		log.Printf("User %s: failed to update rule %s: %v", userID, r.PathValue("id"), err)
		http.Error(w, "Failed to update rule", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

func (h *RuleHandler) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	err := h.rules.Delete(r.Context(), userID, r.PathValue("id"))
	switch {
	case errors.Is(err, autorule.ErrRuleNotFound):
		http.Error(w, "Rule not found", http.StatusNotFound)
		return
	case err != nil:
		log.Printf("User %s: failed to delete rule %s: %v", userID, r.PathValue("id"), err)
		http.Error(w, "Failed to delete rule", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
