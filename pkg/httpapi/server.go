// Package httpapi exposes the /api/v1 surface: route registration, the
// middleware stack (request ID, security headers, CORS, rate limiting,
// authentication), and the handlers that translate HTTP into service
// calls. All business rules live in the service packages; handlers only
// decode, dispatch, and encode.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmalloway/checksub001/pkg/audit"
	"github.com/jmalloway/checksub001/pkg/auth"
	"github.com/jmalloway/checksub001/pkg/checkitem"
	"github.com/jmalloway/checksub001/pkg/decision"
	"github.com/jmalloway/checksub001/pkg/dispatch"
	"github.com/jmalloway/checksub001/pkg/fraud"
	"github.com/jmalloway/checksub001/pkg/imageconn"
	"github.com/jmalloway/checksub001/pkg/imagetoken"
	"github.com/jmalloway/checksub001/pkg/jwtauth"
	"github.com/jmalloway/checksub001/pkg/model"
	"github.com/jmalloway/checksub001/pkg/observability"
	"github.com/jmalloway/checksub001/pkg/ratelimit"
)

// AuditReader is the read surface the audit endpoints need; implemented by
// pgstore.AuditStore.
type AuditReader interface {
	audit.ChainReader
	ListByItem(ctx context.Context, tenantID, itemID string) ([]model.AuditLog, error)
	ListByFilter(ctx context.Context, tenantID string, action *model.AuditAction, limit, offset int) ([]model.AuditLog, error)
}

// DecisionReader resolves decisions outside the write transaction, for the
// dual-control approve and override endpoints; implemented by
// pgstore.DecisionStore.
type DecisionReader interface {
	GetDecision(ctx context.Context, tenantID, decisionID string) (*model.Decision, error)
	ListByItem(ctx context.Context, tenantID, itemID string) ([]model.Decision, error)
}

// PolicyAdmin is the policy CRUD surface; implemented by pgstore.PolicyStore.
type PolicyAdmin interface {
	ListPolicies(ctx context.Context, tenantID string) ([]model.Policy, error)
	GetPolicy(ctx context.Context, tenantID, policyID string) (*model.Policy, error)
	CreatePolicy(ctx context.Context, p *model.Policy) error
	UpdatePolicy(ctx context.Context, p *model.Policy) error
	DeletePolicy(ctx context.Context, tenantID, policyID string) error
	ListVersions(ctx context.Context, tenantID, policyID string) ([]model.PolicyVersion, error)
	CreateVersion(ctx context.Context, v *model.PolicyVersion) error
	ActivateVersion(ctx context.Context, tenantID, policyID, versionID string) error
}

// UserAdmin is the user administration surface; implemented by
// pgstore.UserAdminStore.
type UserAdmin interface {
	List(ctx context.Context, tenantID string, limit, offset int) ([]model.User, error)
	Get(ctx context.Context, tenantID, userID string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
	Update(ctx context.Context, u *model.User) error
	GrantRole(ctx context.Context, tenantID, userID, roleID string) error
	RevokeRole(ctx context.Context, tenantID, userID, roleID string) error
	ListRoles(ctx context.Context) ([]model.Role, error)
}

// ItemViewRecorder appends reviewer view-session records; implemented by
// pgstore.ItemViewStore. Optional: nil disables view recording (audit
// ITEM_VIEWED entries are still written).
type ItemViewRecorder interface {
	Insert(ctx context.Context, v *model.ItemView) error
}

// CookieConfig carries the cookie attributes from configuration.
type CookieConfig struct {
	Secure     bool
	SameSite   http.SameSite
	Domain     string
	RefreshTTL time.Duration
}

// Server wires the service layer to the /api/v1 routes.
type Server struct {
	log *slog.Logger
	obs *observability.Provider

	authSvc *auth.Service
	users   dispatch.UserLookup
	csrf    *auth.CSRF
	tokens  *jwtauth.Manager
	router  *dispatch.Router

	auditSvc    *audit.Service
	auditReader AuditReader
	exporter    *audit.Exporter

	items       *checkitem.QueryService
	assignments *checkitem.AssignmentService
	ingest      *checkitem.Service
	itemViews   ItemViewRecorder

	decisions      *decision.Service
	decisionReader DecisionReader

	imageTokens *imagetoken.Service
	images      imageconn.Connector
	imageFetch  func(ctx context.Context, fn func(context.Context) error) error

	fraudSvc  *fraud.Service
	policies  PolicyAdmin
	userAdmin UserAdmin

	loginLimiter ratelimit.Limiter
	apiLimiter   ratelimit.Limiter

	cookies        CookieConfig
	trustedProxies []string
	development    bool
}

// Deps bundles everything a Server needs; all fields are required unless
// noted.
type Deps struct {
	Log *slog.Logger
	Obs *observability.Provider

	AuthService *auth.Service
	Users       dispatch.UserLookup
	CSRF        *auth.CSRF
	Tokens      *jwtauth.Manager
	Router      *dispatch.Router

	AuditService *audit.Service
	AuditReader  AuditReader
	Exporter     *audit.Exporter

	Items       *checkitem.QueryService
	Assignments *checkitem.AssignmentService
	Ingest      *checkitem.Service
	ItemViews   ItemViewRecorder

	Decisions      *decision.Service
	DecisionReader DecisionReader

	ImageTokens *imagetoken.Service
	Images      imageconn.Connector
	// ImageFetch wraps connector calls with the external-call policy
	// (timeout/retry/breaker). Optional; nil calls the connector directly.
	ImageFetch func(ctx context.Context, fn func(context.Context) error) error

	FraudService *fraud.Service
	Policies     PolicyAdmin
	UserAdmin    UserAdmin

	LoginLimiter ratelimit.Limiter
	APILimiter   ratelimit.Limiter

	Cookies        CookieConfig
	TrustedProxies []string
	Development    bool
}

func NewServer(d Deps) *Server {
	s := &Server{
		log:            d.Log,
		obs:            d.Obs,
		authSvc:        d.AuthService,
		users:          d.Users,
		csrf:           d.CSRF,
		tokens:         d.Tokens,
		router:         d.Router,
		auditSvc:       d.AuditService,
		auditReader:    d.AuditReader,
		exporter:       d.Exporter,
		items:          d.Items,
		assignments:    d.Assignments,
		ingest:         d.Ingest,
		itemViews:      d.ItemViews,
		decisions:      d.Decisions,
		decisionReader: d.DecisionReader,
		imageTokens:    d.ImageTokens,
		images:         d.Images,
		imageFetch:     d.ImageFetch,
		fraudSvc:       d.FraudService,
		policies:       d.Policies,
		userAdmin:      d.UserAdmin,
		loginLimiter:   d.LoginLimiter,
		apiLimiter:     d.APILimiter,
		cookies:        d.Cookies,
		trustedProxies: d.TrustedProxies,
		development:    d.Development,
	}
	if s.imageFetch == nil {
		s.imageFetch = func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Routes builds the full /api/v1 handler with the middleware stack applied.
func (s *Server) Routes(corsOrigins []string) http.Handler {
	mux := http.NewServeMux()

	loginLimit := ratelimit.Middleware(s.loginLimiter, func(r *http.Request) string {
		return "ip:" + dispatch.ClientIP(r, s.trustedProxies)
	})
	apiLimit := ratelimit.Middleware(s.apiLimiter, s.apiLimitKey)

	// Unauthenticated auth endpoints, per-IP limited (login: 5/min).
	mux.Handle("POST /api/v1/auth/login", loginLimit(http.HandlerFunc(s.handleLogin)))
	mux.Handle("POST /api/v1/auth/refresh", loginLimit(http.HandlerFunc(s.handleRefresh)))
	mux.Handle("POST /api/v1/auth/logout", http.HandlerFunc(s.handleLogout))

	// The per-user limiter sits inside RequireAuth so its key sees the
	// bound identity; requests that RequireAuth rejects never reach it.
	authed := func(perm model.Permission, h http.HandlerFunc) http.Handler {
		return s.router.RequireAuth(apiLimit(s.router.RequirePermission(perm, h)))
	}
	authedNoPerm := func(h http.HandlerFunc) http.Handler {
		return s.router.RequireAuth(apiLimit(h))
	}

	mux.Handle("POST /api/v1/auth/change-password", authedNoPerm(s.handleChangePassword))
	mux.Handle("GET /api/v1/auth/me", authedNoPerm(s.handleMe))

	mux.Handle("GET /api/v1/checks", authed(model.PermCheckItemView, s.handleListChecks))
	mux.Handle("GET /api/v1/checks/{id}", authed(model.PermCheckItemView, s.handleGetCheck))
	mux.Handle("GET /api/v1/checks/{id}/adjacent", authed(model.PermCheckItemView, s.handleAdjacent))
	mux.Handle("POST /api/v1/checks/{id}/assign", authed(model.PermCheckItemAssign, s.handleAssign))
	mux.Handle("POST /api/v1/checks/{id}/status", authed(model.PermUserManage, s.handleUpdateStatus))
	mux.Handle("POST /api/v1/checks/sync", authed(model.PermUserManage, s.handleSync))

	mux.Handle("POST /api/v1/decisions", authed(model.PermCheckItemDecide, s.handleDecide))
	mux.Handle("POST /api/v1/decisions/{id}/dual-control/approve", authed(model.PermCheckItemDecide, s.handleDualControlApprove))
	mux.Handle("POST /api/v1/decisions/{id}/override", authed(model.PermDecisionOverride, s.handleOverride))

	mux.Handle("POST /api/v1/images/tokens", authed(model.PermCheckImageView, s.handleMintImageTokens))
	// Token consumption carries its own credential (the token); no bearer
	// auth, no rate-limit key beyond IP.
	mux.Handle("GET /api/v1/images/secure/{token}", loginLimit(http.HandlerFunc(s.handleServeImage)))

	mux.Handle("GET /api/v1/audit/logs", authed(model.PermAuditView, s.handleListAudit))
	mux.Handle("GET /api/v1/audit/items/{id}", authed(model.PermAuditView, s.handleItemAuditTrail))
	mux.Handle("POST /api/v1/audit/packet", authed(model.PermAuditExport, s.handleAuditPacket))

	mux.Handle("POST /api/v1/fraud/events", authed(model.PermFraudSubmit, s.handleCreateFraudEvent))
	mux.Handle("GET /api/v1/fraud/matches", authed(model.PermFraudView, s.handleListFraudMatches))

	mux.Handle("GET /api/v1/policies", authed(model.PermPolicyManage, s.handleListPolicies))
	mux.Handle("POST /api/v1/policies", authed(model.PermPolicyManage, s.handleCreatePolicy))
	mux.Handle("GET /api/v1/policies/{id}", authed(model.PermPolicyManage, s.handleGetPolicy))
	mux.Handle("PATCH /api/v1/policies/{id}", authed(model.PermPolicyManage, s.handleUpdatePolicy))
	mux.Handle("DELETE /api/v1/policies/{id}", authed(model.PermPolicyManage, s.handleDeletePolicy))
	mux.Handle("GET /api/v1/policies/{id}/versions", authed(model.PermPolicyManage, s.handleListPolicyVersions))
	mux.Handle("POST /api/v1/policies/{id}/versions", authed(model.PermPolicyManage, s.handleCreatePolicyVersion))
	mux.Handle("POST /api/v1/policies/{id}/versions/{vid}/activate", authed(model.PermPolicyManage, s.handleActivatePolicyVersion))

	mux.Handle("GET /api/v1/users", authed(model.PermUserManage, s.handleListUsers))
	mux.Handle("POST /api/v1/users", authed(model.PermUserManage, s.handleCreateUser))
	mux.Handle("PATCH /api/v1/users/{id}", authed(model.PermUserManage, s.handleUpdateUser))
	mux.Handle("GET /api/v1/users/roles", authed(model.PermUserManage, s.handleListRoles))
	mux.Handle("GET /api/v1/users/permissions", authed(model.PermUserManage, s.handleListPermissions))
	mux.Handle("POST /api/v1/users/{id}/roles", authed(model.PermUserManage, s.handleGrantRole))
	mux.Handle("DELETE /api/v1/users/{id}/roles/{roleID}", authed(model.PermUserManage, s.handleRevokeRole))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var h http.Handler = mux
	h = s.withObservability(h)
	h = securityHeaders(h)
	h = cors(corsOrigins, h)
	h = requestID(h)
	return h
}

// apiLimitKey buckets authenticated traffic per user (falling back to
// per-IP before identity is bound).
func (s *Server) apiLimitKey(r *http.Request) string {
	if id, ok := dispatch.IdentityFromContext(r.Context()); ok {
		return "user:" + id.User.TenantID + ":" + id.User.ID
	}
	return "ip:" + dispatch.ClientIP(r, s.trustedProxies)
}

func (s *Server) clientIP(r *http.Request) string {
	return dispatch.ClientIP(r, s.trustedProxies)
}
