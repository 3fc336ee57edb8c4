package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/karbonuyum/platform/pkg/artifacts"
	"github.com/karbonuyum/platform/pkg/auth"
	"github.com/karbonuyum/platform/pkg/authz"
	"github.com/karbonuyum/platform/pkg/benchmark"
	"github.com/karbonuyum/platform/pkg/calc"
	"github.com/karbonuyum/platform/pkg/config"
	"github.com/karbonuyum/platform/pkg/events"
	"github.com/karbonuyum/platform/pkg/ingest"
	"github.com/karbonuyum/platform/pkg/notify"
	"github.com/karbonuyum/platform/pkg/store"
	"github.com/karbonuyum/platform/pkg/suggest"
)

// Server carries the handler dependencies. Routes() assembles the full
// middleware chain and endpoint table.
type Server struct {
	cfg *config.Config

	users         *store.UserStore
	companies     *store.CompanyStore
	facilities    *store.FacilityStore
	activities    *store.ActivityStore
	financials    *store.FinancialsStore
	targets       *store.TargetStore
	invoices      *store.InvoiceStore
	reports       *store.ReportStore
	suppliers     *store.SupplierStore
	notifications *store.NotificationStore
	analytics     *store.AnalyticsStore

	tokens    *auth.TokenIssuer
	authz     *authz.Authorizer
	ingest    *ingest.Service
	calc      *calc.Service
	benchmark *benchmark.Service
	suggest   *suggest.Engine
	notifier  *notify.Service
	bus       *events.Bus
	artifacts artifacts.Store

	limitGlobal auth.Limiter
	limitCalc   auth.Limiter
	limitCSV    auth.Limiter
	limitWizard auth.Limiter

	log *slog.Logger
}

// Deps bundles the constructor arguments.
type Deps struct {
	Config *config.Config

	Users         *store.UserStore
	Companies     *store.CompanyStore
	Facilities    *store.FacilityStore
	Activities    *store.ActivityStore
	Financials    *store.FinancialsStore
	Targets       *store.TargetStore
	Invoices      *store.InvoiceStore
	Reports       *store.ReportStore
	Suppliers     *store.SupplierStore
	Notifications *store.NotificationStore
	Analytics     *store.AnalyticsStore

	Tokens     *auth.TokenIssuer
	Authorizer *authz.Authorizer
	Ingest     *ingest.Service
	Calc       *calc.Service
	Benchmark  *benchmark.Service
	Suggest    *suggest.Engine
	Notifier   *notify.Service
	Bus        *events.Bus
	Artifacts  artifacts.Store

	LimitGlobal auth.Limiter
	LimitCalc   auth.Limiter
	LimitCSV    auth.Limiter
	LimitWizard auth.Limiter

	Log *slog.Logger
}

func NewServer(d Deps) *Server {
	return &Server{
		cfg:           d.Config,
		users:         d.Users,
		companies:     d.Companies,
		facilities:    d.Facilities,
		activities:    d.Activities,
		financials:    d.Financials,
		targets:       d.Targets,
		invoices:      d.Invoices,
		reports:       d.Reports,
		suppliers:     d.Suppliers,
		notifications: d.Notifications,
		analytics:     d.Analytics,
		tokens:        d.Tokens,
		authz:         d.Authorizer,
		ingest:        d.Ingest,
		calc:          d.Calc,
		benchmark:     d.Benchmark,
		suggest:       d.Suggest,
		notifier:      d.Notifier,
		bus:           d.Bus,
		artifacts:     d.Artifacts,
		limitGlobal:   d.LimitGlobal,
		limitCalc:     d.LimitCalc,
		limitCSV:      d.LimitCSV,
		limitWizard:   d.LimitWizard,
		log:           d.Log,
	}
}

// Routes assembles the endpoint table with the middleware chain: request id,
// security headers, CORS, logging, global rate limit, then per-route
// authentication and specialized limits.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)

	// Supplier invitation consumption is tokened, not session-authenticated.
	mux.HandleFunc("POST /api/v1/supplier-invitations/{token}/accept", s.handleInvitationAccept)
	mux.HandleFunc("POST /api/v1/supplier-invitations/{token}/reject", s.handleInvitationReject)

	authed := http.NewServeMux()
	authed.HandleFunc("GET /api/v1/users/me", s.handleMe)
	authed.HandleFunc("GET /api/v1/users/me/badges", s.handleMyBadges)

	authed.HandleFunc("GET /api/v1/companies", s.handleCompanyList)
	authed.HandleFunc("POST /api/v1/companies", s.handleCompanyCreate)
	authed.HandleFunc("GET /api/v1/companies/{id}", s.handleCompanyGet)
	authed.HandleFunc("PUT /api/v1/companies/{id}", s.handleCompanyUpdate)
	authed.HandleFunc("GET /api/v1/companies/{id}/members", s.handleMemberList)
	authed.HandleFunc("PUT /api/v1/companies/{id}/members/{userID}", s.handleMemberUpsert)
	authed.HandleFunc("DELETE /api/v1/companies/{id}/members/{userID}", s.handleMemberRemove)
	authed.HandleFunc("GET /api/v1/companies/{id}/financials", s.handleFinancialsGet)
	authed.HandleFunc("PUT /api/v1/companies/{id}/financials", s.handleFinancialsPut)
	authed.HandleFunc("GET /api/v1/companies/{id}/targets", s.handleTargetList)
	authed.HandleFunc("POST /api/v1/companies/{id}/targets", s.handleTargetCreate)
	authed.HandleFunc("GET /api/v1/companies/{id}/dashboard", s.handleDashboard)
	authed.HandleFunc("GET /api/v1/companies/{id}/benchmark", s.handleBenchmark)

	authed.HandleFunc("POST /api/v1/companies/{id}/facilities", s.handleFacilityCreate)
	authed.HandleFunc("GET /api/v1/companies/{id}/facilities", s.handleFacilityList)
	authed.HandleFunc("GET /api/v1/facilities/{id}", s.handleFacilityGet)
	authed.HandleFunc("PUT /api/v1/facilities/{id}", s.handleFacilityUpdate)
	authed.HandleFunc("DELETE /api/v1/facilities/{id}", s.handleFacilityDelete)

	authed.Handle("POST /api/v1/activity-data",
		s.RateLimit(s.limitCalc, 60)(http.HandlerFunc(s.handleActivityCreate)))
	authed.HandleFunc("GET /api/v1/facilities/{id}/activity-data", s.handleActivityList)
	authed.HandleFunc("PUT /api/v1/activity-data/{id}", s.handleActivityUpdate)
	authed.HandleFunc("DELETE /api/v1/activity-data/{id}", s.handleActivityDelete)
	authed.Handle("POST /api/v1/facilities/{id}/activity-data/csv",
		s.RateLimit(s.limitCSV, 3600)(http.HandlerFunc(s.handleCSVImport)))
	authed.HandleFunc("GET /api/v1/csv-template/activity-data", s.handleCSVTemplate)

	authed.Handle("POST /api/v1/calculations/estimate",
		s.RateLimit(s.limitCalc, 60)(http.HandlerFunc(s.handleEstimate)))
	authed.Handle("POST /api/v1/wizard/quick-estimate",
		s.RateLimit(s.limitWizard, 60)(http.HandlerFunc(s.handleQuickEstimate)))

	authed.HandleFunc("POST /api/v1/facilities/{id}/invoices", s.handleInvoiceUpload)
	authed.HandleFunc("GET /api/v1/facilities/{id}/invoices", s.handleInvoiceList)
	authed.HandleFunc("GET /api/v1/invoices/{id}", s.handleInvoiceGet)
	authed.HandleFunc("POST /api/v1/invoices/{id}/verify", s.handleInvoiceVerify)

	authed.HandleFunc("POST /api/v1/reports", s.handleReportCreate)
	authed.HandleFunc("GET /api/v1/companies/{id}/reports", s.handleReportList)
	authed.HandleFunc("GET /api/v1/reports/{id}", s.handleReportGet)
	authed.HandleFunc("GET /api/v1/reports/{id}/download", s.handleReportDownload)

	authed.HandleFunc("POST /api/v1/suppliers", s.handleSupplierCreate)
	authed.HandleFunc("GET /api/v1/suppliers/{id}", s.handleSupplierGet)
	authed.HandleFunc("POST /api/v1/companies/{id}/supplier-invitations", s.handleInvitationCreate)
	authed.HandleFunc("POST /api/v1/suppliers/{id}/footprints", s.handleFootprintCreate)
	authed.HandleFunc("GET /api/v1/suppliers/{id}/footprints", s.handleFootprintList)
	authed.HandleFunc("POST /api/v1/footprints/{id}/verify", s.handleFootprintVerify)
	authed.HandleFunc("POST /api/v1/facilities/{id}/purchases", s.handlePurchaseCreate)
	authed.HandleFunc("GET /api/v1/supplier-stats", s.handleSupplierStats)

	authed.HandleFunc("GET /api/v1/leaderboard", s.handleLeaderboard)
	authed.HandleFunc("GET /api/v1/facilities/{id}/suggestions", s.handleSuggestions)

	authed.HandleFunc("GET /api/v1/notifications", s.handleNotificationList)
	authed.HandleFunc("POST /api/v1/notifications/{id}/read", s.handleNotificationRead)
	authed.HandleFunc("POST /api/v1/notifications/read-all", s.handleNotificationReadAll)

	mux.Handle("/api/v1/", s.Authenticate(authed))

	var handler http.Handler = mux
	handler = s.RateLimit(s.limitGlobal, 60)(handler)
	handler = RequestLogger(s.log)(handler)
	handler = CORS(s.cfg.FrontendOrigin)(handler)
	handler = SecurityHeaders(handler)
	handler = RequestID(handler)
	return handler
}

// handleHealth reports process liveness plus queue depths when the broker is
// reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if s.bus != nil {
		depths := map[string]int64{}
		for _, q := range []string{events.QueueIngestion, events.QueueInvalidData, events.QueueReports, events.QueueAnalytics, events.QueueDeadLetter} {
			if n, err := s.bus.QueueDepth(r.Context(), q); err == nil {
				depths[q] = n
			}
		}
		if len(depths) > 0 {
			out["queues"] = depths
		}
	}
	WriteJSON(w, http.StatusOK, out)
}
