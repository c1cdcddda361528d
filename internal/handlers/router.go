package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/skingford/sso-web/internal/constants"
	"github.com/skingford/sso-web/internal/middleware"
	"github.com/skingford/sso-web/internal/ratelimit"
)

// Routes bundles the handlers mounted by NewRouter.
type Routes struct {
	Stack   *middleware.Stack
	OAuth2  *OAuth2Handler
	Users   *UserAuthHandler
	Admin   *AdminHandler
	Health  *HealthHandler
	Metrics http.Handler
}

// NewRouter builds the full HTTP surface. Discovery lives at the root as well
// as under the API prefix; everything else is under /api/v1/auth.
func NewRouter(rt Routes) http.Handler {
	stack := rt.Stack
	router := mux.NewRouter()
	router.Use(stack.RequestLogger)

	router.HandleFunc("/.well-known/openid-configuration", rt.OAuth2.Discovery).Methods(http.MethodGet)
	router.HandleFunc("/.well-known/openid_configuration", rt.OAuth2.Discovery).Methods(http.MethodGet)

	api := router.PathPrefix(constants.APIBasePath).Subrouter()

	api.HandleFunc("/health", rt.Health.Health).Methods(http.MethodGet)
	api.HandleFunc("/health/live", rt.Health.Liveness).Methods(http.MethodGet)
	api.HandleFunc("/health/ready", rt.Health.Readiness).Methods(http.MethodGet)
	if rt.Metrics != nil {
		api.Handle("/metrics", rt.Metrics).Methods(http.MethodGet)
	}
	api.HandleFunc("/.well-known/openid-configuration", rt.OAuth2.Discovery).Methods(http.MethodGet)

	apiLimited := stack.RateLimit(ratelimit.PresetAPI)
	loginLimited := stack.RateLimit(ratelimit.PresetLogin)
	sensitiveLimited := stack.RateLimit(ratelimit.PresetSensitive)
	admin := stack.RequireScopes("admin")

	handle := func(path string, h http.HandlerFunc, mw []func(http.Handler) http.Handler, methods ...string) {
		api.Handle(path, stack.Chain(h, mw...)).Methods(methods...)
	}

	handle("/oauth2/authorize", rt.OAuth2.Authorize,
		[]func(http.Handler) http.Handler{apiLimited}, http.MethodGet, http.MethodPost)
	handle("/oauth2/token", rt.OAuth2.Token,
		[]func(http.Handler) http.Handler{apiLimited}, http.MethodPost)
	handle("/oauth2/userinfo", rt.OAuth2.UserInfo,
		[]func(http.Handler) http.Handler{stack.VerifyToken, apiLimited}, http.MethodGet, http.MethodPost)
	handle("/oauth2/introspect", rt.OAuth2.IntrospectToken,
		[]func(http.Handler) http.Handler{apiLimited}, http.MethodGet, http.MethodPost)
	handle("/oauth2/revoke", rt.OAuth2.RevokeToken,
		[]func(http.Handler) http.Handler{apiLimited}, http.MethodPost)

	handle("/login", rt.Users.Login,
		[]func(http.Handler) http.Handler{loginLimited}, http.MethodPost)
	handle("/logout", rt.Users.Logout,
		[]func(http.Handler) http.Handler{loginLimited}, http.MethodPost)

	handle("/protected/profile", rt.Users.Profile,
		[]func(http.Handler) http.Handler{stack.VerifyToken, apiLimited}, http.MethodGet)
	handle("/protected/users", rt.Users.ListUsers,
		[]func(http.Handler) http.Handler{stack.VerifyToken, stack.RequireScopes("user:read"), apiLimited},
		http.MethodGet)

	handle("/credentials/confirmation-codes", rt.Admin.GenerateConfirmationCode,
		[]func(http.Handler) http.Handler{stack.VerifyToken, admin, sensitiveLimited}, http.MethodPost)
	handle("/credentials/confirmation-codes/verify", rt.Admin.VerifyConfirmationCode,
		[]func(http.Handler) http.Handler{stack.VerifyToken, admin, sensitiveLimited}, http.MethodPost)

	handle("/admin/rate-limits", rt.Admin.ListRateLimits,
		[]func(http.Handler) http.Handler{stack.VerifyToken, admin}, http.MethodGet)
	handle("/admin/rate-limits/{key}", rt.Admin.GetRateLimitStatus,
		[]func(http.Handler) http.Handler{stack.VerifyToken, admin}, http.MethodGet)
	handle("/admin/rate-limits/{key}", rt.Admin.ClearRateLimit,
		[]func(http.Handler) http.Handler{stack.VerifyToken, admin}, http.MethodDelete)

	return stack.Chain(
		router,
		stack.Recovery,
		stack.SecurityHeaders,
		stack.CORS,
		stack.FloodGuard,
		stack.ContentType,
	)
}
