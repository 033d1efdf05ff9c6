package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"agentsurge/auth"
	"agentsurge/billing"
	"agentsurge/dispute"
	"agentsurge/pool"
	"agentsurge/purchase"
	"agentsurge/recruit"

	"github.com/google/uuid"
)

type userResponse struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	FullName           string `json:"fullName"`
	Role               string `json:"role"`
	SubscriptionStatus string `json:"subscriptionStatus"`
	FreeRecruitClaimed bool   `json:"freeRecruitClaimed"`
	CreatedAt          string `json:"createdAt"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:                 u.ID,
		Email:              u.Email,
		FullName:           u.FullName,
		Role:               string(u.Role),
		SubscriptionStatus: string(u.SubscriptionStatus),
		FreeRecruitClaimed: u.FreeRecruitClaimed,
		CreatedAt:          u.CreatedAt.Format(time.RFC3339),
	}
}

type purchaseResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	AmountCents int64  `json:"amountCents"`
	Status      string `json:"status"`
	DeliveredAt string `json:"deliveredAt,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

func toPurchaseResponse(p purchase.Purchase) purchaseResponse {
	resp := purchaseResponse{
		ID:          p.ID,
		Type:        string(p.Type),
		AmountCents: p.AmountCents,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
	if p.DeliveredAt != nil {
		resp.DeliveredAt = p.DeliveredAt.Format(time.RFC3339)
	}
	return resp
}

type recruitResponse struct {
	ID           string `json:"id"`
	FullName     string `json:"fullName"`
	Phone        string `json:"phone"`
	Email        string `json:"email,omitempty"`
	SocialHandle string `json:"socialHandle,omitempty"`
	Licensed     bool   `json:"licensed"`
	LicensedAt   string `json:"licensedAt,omitempty"`
	Status       string `json:"status"`
	Notes        string `json:"notes"`
	CreatedAt    string `json:"createdAt"`
}

func toRecruitResponse(rec recruit.Recruit) recruitResponse {
	resp := recruitResponse{
		ID:           rec.ID,
		FullName:     rec.FullName,
		Phone:        rec.Phone,
		Email:        rec.Email,
		SocialHandle: rec.SocialHandle,
		Licensed:     rec.Licensed,
		Status:       string(rec.Status),
		Notes:        rec.Notes,
		CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.LicensedAt != nil {
		resp.LicensedAt = rec.LicensedAt.Format(time.RFC3339)
	}
	return resp
}

type disputeResponse struct {
	ID               string `json:"id"`
	RecruitID        string `json:"recruitId"`
	Reason           string `json:"reason"`
	Explanation      string `json:"explanation,omitempty"`
	Status           string `json:"status"`
	AdminNotes       string `json:"adminNotes,omitempty"`
	ResolutionAction string `json:"resolutionAction,omitempty"`
	ResolvedAt       string `json:"resolvedAt,omitempty"`
	CreatedAt        string `json:"createdAt"`
}

func toDisputeResponse(rec dispute.Record) disputeResponse {
	resp := disputeResponse{
		ID:          rec.ID,
		RecruitID:   rec.RecruitID,
		Reason:      string(rec.Reason),
		Explanation: rec.Explanation,
		Status:      string(rec.Status),
		AdminNotes:  rec.AdminNotes,
		CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.ResolutionAction != nil {
		resp.ResolutionAction = string(*rec.ResolutionAction)
	}
	if rec.ResolvedAt != nil {
		resp.ResolvedAt = rec.ResolvedAt.Format(time.RFC3339)
	}
	return resp
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req auth.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req auth.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user":  toUserResponse(result.User),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	user, err := s.authService.GetUserByID(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(*user))
}

type buyRequest struct {
	Type     string `json:"type"`
	Quantity int    `json:"quantity"`
}

func (s *Server) handlePurchases(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleBuy(w, r)
	case http.MethodGet:
		s.handlePurchaseHistory(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.purchaseService.Buy(r.Context(), userIDFrom(r.Context()), purchase.Type(req.Type), req.Quantity)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"purchaseIds":        result.PurchaseIDs,
		"totalCents":         result.TotalCents,
		"freeRecruitApplied": result.FreeRecruitApplied,
	})
}

func (s *Server) handlePurchaseHistory(w http.ResponseWriter, r *http.Request) {
	purchases, err := s.purchaseService.History(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	items := make([]purchaseResponse, 0, len(purchases))
	for _, p := range purchases {
		items = append(items, toPurchaseResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

type checkoutRequest struct {
	Type        string `json:"type"`
	Quantity    int    `json:"quantity"`
	ProviderRef string `json:"providerRef"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProviderRef == "" {
		writeError(w, http.StatusBadRequest, "providerRef is required")
		return
	}

	result, err := s.purchaseService.StartCheckout(r.Context(), userIDFrom(r.Context()), purchase.Type(req.Type), req.Quantity, req.ProviderRef)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"purchaseIds": result.PurchaseIDs,
		"totalCents":  result.TotalCents,
		"providerRef": result.ProviderRef,
	})
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	counts, err := s.inventory.CountAvailable(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"unlicensed": counts.Unlicensed,
		"licensed":   counts.Licensed,
	})
}

func (s *Server) handleRecruits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	recruits, err := s.recruitService.List(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	items := make([]recruitResponse, 0, len(recruits))
	for _, rec := range recruits {
		items = append(items, toRecruitResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

type recruitUpdateRequest struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

type fileDisputeRequest struct {
	Reason      string `json:"reason"`
	Explanation string `json:"explanation"`
}

// handleRecruitDetail serves /api/recruits/{id} and /api/recruits/{id}/dispute.
func (s *Server) handleRecruitDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/recruits/")
	recruitID, sub, _ := strings.Cut(rest, "/")
	if recruitID == "" {
		writeError(w, http.StatusBadRequest, "recruit id required")
		return
	}
	// Reject malformed ids here; they would otherwise error inside the uuid
	// cast in the repository instead of reading as an absent row.
	if uuid.Validate(recruitID) != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch {
	case sub == "dispute" && r.Method == http.MethodPost:
		var req fileDisputeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		rec, err := s.disputeService.File(r.Context(), userIDFrom(r.Context()), recruitID, dispute.Reason(req.Reason), req.Explanation)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toDisputeResponse(rec))

	case sub == "" && r.Method == http.MethodGet:
		rec, err := s.recruitService.Get(r.Context(), recruitID, userIDFrom(r.Context()))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toRecruitResponse(rec))

	case sub == "" && r.Method == http.MethodPatch:
		var req recruitUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		params := recruit.UpdateParams{Notes: req.Notes}
		if req.Status != nil {
			status := recruit.Status(*req.Status)
			params.Status = &status
		}
		rec, err := s.recruitService.Update(r.Context(), recruitID, userIDFrom(r.Context()), params)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toRecruitResponse(rec))

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleDisputes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	records, err := s.disputeService.ListForAgent(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	items := make([]disputeResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toDisputeResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

type disputeLogResponse struct {
	ID        int64           `json:"id"`
	Action    string          `json:"action"`
	Details   json.RawMessage `json:"details"`
	CreatedAt string          `json:"createdAt"`
}

// handleDisputeLogs serves /api/disputes/{id}/logs.
func (s *Server) handleDisputeLogs(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/disputes/")
	disputeID, sub, _ := strings.Cut(rest, "/")
	if disputeID == "" || sub != "logs" || r.Method != http.MethodGet {
		writeError(w, http.StatusBadRequest, "invalid dispute path")
		return
	}
	if uuid.Validate(disputeID) != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	logs, err := s.disputeService.Logs(r.Context(), disputeID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	items := make([]disputeLogResponse, 0, len(logs))
	for _, l := range logs {
		items = append(items, disputeLogResponse{
			ID:        l.ID,
			Action:    l.Action,
			Details:   json.RawMessage(l.Details),
			CreatedAt: l.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleAdminDisputes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	records, err := s.disputeService.ListAll(r.Context(), dispute.Status(r.URL.Query().Get("status")))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	items := make([]disputeResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toDisputeResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

type resolveDisputeRequest struct {
	Action           string `json:"action"`
	AdminNotes       string `json:"adminNotes"`
	ResolutionAction string `json:"resolutionAction"`
}

func (s *Server) handleAdminDisputeDetail(w http.ResponseWriter, r *http.Request) {
	disputeID := strings.TrimPrefix(r.URL.Path, "/api/admin/disputes/")
	if disputeID == "" || strings.Contains(disputeID, "/") {
		writeError(w, http.StatusBadRequest, "dispute id required")
		return
	}
	if uuid.Validate(disputeID) != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPatch {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req resolveDisputeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var status dispute.Status
	switch req.Action {
	case "approve":
		status = dispute.StatusApproved
	case "deny":
		status = dispute.StatusDenied
	default:
		writeError(w, http.StatusBadRequest, "action must be approve or deny")
		return
	}

	rec, err := s.disputeService.Resolve(r.Context(), userIDFrom(r.Context()), disputeID,
		status, req.AdminNotes, dispute.ResolutionAction(req.ResolutionAction))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(rec))
}

func (s *Server) handleAdminInventory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.requireIngestToken(w, r) {
		return
	}

	var inputs []pool.LeadInput
	if err := decodeJSON(r, &inputs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inserted, err := s.inventory.IngestBatch(r.Context(), inputs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"inserted": inserted})
}

// handleAdminInventoryImport accepts the sourcing team's spreadsheet export.
func (s *Server) handleAdminInventoryImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.requireIngestToken(w, r) {
		return
	}

	defer r.Body.Close()
	inputs, err := pool.ParseWorkbook(io.LimitReader(r.Body, 32<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid workbook: "+err.Error())
		return
	}

	inserted, err := s.inventory.IngestBatch(r.Context(), inputs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{
		"parsed":   len(inputs),
		"inserted": inserted,
	})
}

type paymentWebhookRequest struct {
	EventID     string `json:"eventId"`
	ProviderRef string `json:"providerRef"`
	Succeeded   bool   `json:"succeeded"`
}

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, ok := verifySignature(r, s.cfg.PaymentWebhookSecret)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var req paymentWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil || req.EventID == "" || req.ProviderRef == "" {
		writeError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	if err := s.purchaseService.HandlePaymentWebhook(r.Context(), s.log, req.EventID, req.ProviderRef, req.Succeeded); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type billingWebhookRequest struct {
	EventID string `json:"eventId"`
	UserID  string `json:"userId"`
	Status  string `json:"status"`
}

func (s *Server) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, ok := verifySignature(r, s.cfg.BillingWebhookSecret)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var req billingWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil || req.EventID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	err := s.billingService.HandleSubscriptionWebhook(r.Context(), s.log, billing.SubscriptionEvent{
		EventID: req.EventID,
		UserID:  req.UserID,
		Status:  auth.SubscriptionStatus(req.Status),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
