package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"agentsurge/auth"
	"agentsurge/billing"
	"agentsurge/config"
	"agentsurge/dispute"
	"agentsurge/pool"
	"agentsurge/purchase"
	"agentsurge/recruit"

	"github.com/rs/zerolog"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRole
)

// authService is the slice of auth.Service the HTTP layer uses.
type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (string, auth.Role, error)
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
}

type purchaseService interface {
	Buy(ctx context.Context, userID string, typ purchase.Type, quantity int) (purchase.BuyResult, error)
	History(ctx context.Context, userID string) ([]purchase.Purchase, error)
	StartCheckout(ctx context.Context, userID string, typ purchase.Type, quantity int, providerRef string) (purchase.CheckoutResult, error)
	HandlePaymentWebhook(ctx context.Context, log zerolog.Logger, eventID, providerRef string, succeeded bool) error
}

type recruitService interface {
	List(ctx context.Context, agentID string) ([]recruit.Recruit, error)
	Get(ctx context.Context, recruitID, agentID string) (recruit.Recruit, error)
	Update(ctx context.Context, recruitID, agentID string, params recruit.UpdateParams) (recruit.Recruit, error)
}

type disputeService interface {
	File(ctx context.Context, agentID, recruitID string, reason dispute.Reason, explanation string) (dispute.Record, error)
	Resolve(ctx context.Context, adminID, disputeID string, status dispute.Status, adminNotes string, action dispute.ResolutionAction) (dispute.Record, error)
	ListForAgent(ctx context.Context, agentID string) ([]dispute.Record, error)
	ListAll(ctx context.Context, status dispute.Status) ([]dispute.Record, error)
	Logs(ctx context.Context, disputeID string) ([]dispute.Log, error)
}

type billingService interface {
	HandleSubscriptionWebhook(ctx context.Context, log zerolog.Logger, ev billing.SubscriptionEvent) error
}

type inventoryService interface {
	CountAvailable(ctx context.Context) (pool.Counts, error)
	IngestBatch(ctx context.Context, inputs []pool.LeadInput) (int, error)
}

// Server holds the wired services and owns the HTTP surface.
type Server struct {
	cfg config.Config
	log zerolog.Logger

	authService     authService
	purchaseService purchaseService
	recruitService  recruitService
	disputeService  disputeService
	billingService  billingService
	inventory       inventoryService
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/healthz", s.handleHealthz)
	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)

	mux.HandleFunc("/api/me", s.withAuth(s.handleMe))
	mux.HandleFunc("/api/purchases", s.withAuth(s.handlePurchases))
	mux.HandleFunc("/api/purchases/checkout", s.withAuth(s.handleCheckout))
	mux.HandleFunc("/api/inventory", s.withAuth(s.handleInventory))
	mux.HandleFunc("/api/recruits", s.withAuth(s.handleRecruits))
	mux.HandleFunc("/api/recruits/", s.withAuth(s.handleRecruitDetail))
	mux.HandleFunc("/api/disputes", s.withAuth(s.handleDisputes))
	mux.HandleFunc("/api/disputes/", s.withAuth(s.handleDisputeLogs))
	mux.HandleFunc("/api/admin/disputes", s.withAuth(s.requireRole(auth.RoleAdmin, s.handleAdminDisputes)))
	mux.HandleFunc("/api/admin/disputes/", s.withAuth(s.requireRole(auth.RoleAdmin, s.handleAdminDisputeDetail)))
	mux.HandleFunc("/api/admin/inventory", s.handleAdminInventory)
	mux.HandleFunc("/api/admin/inventory/import", s.handleAdminInventoryImport)

	mux.HandleFunc("/api/webhooks/payment", s.handlePaymentWebhook)
	mux.HandleFunc("/api/webhooks/billing", s.handleBillingWebhook)

	return mux
}

// withAuth authenticates the bearer token and stashes user id and role in the
// request context.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, role, err := s.authService.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) requireRole(role auth.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if roleFrom(r.Context()) != role {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r)
	}
}

// requireIngestToken guards the sourcing endpoints with the shared bearer
// token; admin JWTs are not issued to the sourcing system.
func (s *Server) requireIngestToken(w http.ResponseWriter, r *http.Request) bool {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || s.cfg.IngestToken == "" || token != s.cfg.IngestToken {
		writeError(w, http.StatusUnauthorized, "invalid ingest token")
		return false
	}
	return true
}

// verifySignature checks the hex HMAC-SHA256 of the body against X-Signature
// and returns the body on success.
func verifySignature(r *http.Request, secret string) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	got := r.Header.Get("X-Signature")

	if got == "" || !hmac.Equal([]byte(want), []byte(got)) {
		return nil, false
	}
	return body, true
}

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyUserID).(string)
	return id
}

func roleFrom(ctx context.Context) auth.Role {
	role, _ := ctx.Value(ctxKeyRole).(auth.Role)
	return role
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps domain sentinels onto HTTP statuses. Unrecognized
// errors are logged in full and surfaced as a bare 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var shortfall *purchase.InsufficientInventoryError
	switch {
	case errors.As(err, &shortfall):
		writeError(w, http.StatusConflict, shortfall.Error())
	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, recruit.ErrNotFound),
		errors.Is(err, dispute.ErrNotFound),
		errors.Is(err, purchase.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, dispute.ErrPendingExists):
		writeError(w, http.StatusConflict, "a pending dispute already exists for this recruit")
	case errors.Is(err, dispute.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "dispute already resolved")
	case errors.Is(err, purchase.ErrSubscriptionRequired):
		writeError(w, http.StatusForbidden, "active subscription required")
	case errors.Is(err, purchase.ErrInvalidType),
		errors.Is(err, purchase.ErrInvalidQuantity),
		errors.Is(err, recruit.ErrInvalidStatus),
		errors.Is(err, dispute.ErrInvalidReason),
		errors.Is(err, dispute.ErrExplanationRequired),
		errors.Is(err, dispute.ErrInvalidResolution),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, billing.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, purchase.ErrUnknownProviderRef),
		errors.Is(err, billing.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	return dec.Decode(dst)
}
