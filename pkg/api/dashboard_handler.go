package api

import (
	"net/http"
	"time"

	"github.com/karbonuyum/platform/pkg/domain"
)

type scopeTotalResponse struct {
	Scope   string  `json:"scope"`
	CO2eKg  float64 `json:"co2e_kg"`
	Records int     `json:"records"`
}

type dashboardResponse struct {
	CompanyID   int64                `json:"company_id"`
	From        string               `json:"from"`
	To          string               `json:"to"`
	TotalCO2eKg float64              `json:"total_co2e_kg"`
	Scopes      []scopeTotalResponse `json:"scopes"`
}

// handleDashboard sums verified emissions per scope over the requested
// window, defaulting to the trailing year.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid company id")
		return
	}
	u := CurrentUser(r.Context())
	if _, err := s.authz.Member(r.Context(), u.ID, companyID); err != nil {
		s.storeError(w, err)
		return
	}

	to := time.Now().UTC()
	from := to.AddDate(-1, 0, 0)
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		if t, ok := parseDateField(v); ok {
			from = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, ok := parseDateField(v); ok {
			to = t
		}
	}

	totals, err := s.activities.TotalsByScope(r.Context(), companyID, from, to)
	if err != nil {
		s.storeError(w, err)
		return
	}
	out := dashboardResponse{
		CompanyID: companyID,
		From:      from.Format("2006-01-02"),
		To:        to.Format("2006-01-02"),
		Scopes:    make([]scopeTotalResponse, 0, len(totals)),
	}
	for _, t := range totals {
		out.TotalCO2eKg += t.CO2eKg
		out.Scopes = append(out.Scopes, scopeTotalResponse{
			Scope: string(t.Scope), CO2eKg: t.CO2eKg, Records: t.Records,
		})
	}
	WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleBenchmark(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid company id")
		return
	}
	u := CurrentUser(r.Context())
	if _, err := s.authz.Member(r.Context(), u.ID, companyID); err != nil {
		s.storeError(w, err)
		return
	}

	rep, err := s.benchmark.Compare(r.Context(), companyID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, rep)
}

type leaderboardEntryResponse struct {
	Rank            int     `json:"rank"`
	CompanyID       int64   `json:"company_id"`
	EfficiencyScore float64 `json:"efficiency_score"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	industry := q.Get("industry")
	region := q.Get("region")
	if industry == "" || region == "" {
		WriteBadRequest(w, "query parameters 'industry' and 'region' are required")
		return
	}
	entries, err := s.analytics.Leaderboard(r.Context(), industry, region, 20)
	if err != nil {
		s.storeError(w, err)
		return
	}
	out := make([]leaderboardEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, leaderboardEntryResponse{
			Rank: e.Rank, CompanyID: e.CompanyID, EfficiencyScore: e.EfficiencyScore,
		})
	}
	WriteJSON(w, http.StatusOK, out)
}

type badgeResponse struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleMyBadges(w http.ResponseWriter, r *http.Request) {
	u := CurrentUser(r.Context())
	badges, err := s.analytics.BadgesForUser(r.Context(), u.ID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	out := make([]badgeResponse, 0, len(badges))
	for _, b := range badges {
		out = append(out, badgeResponse{Code: b.Code, Name: b.Name, Description: b.Description})
	}
	WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid facility id")
		return
	}
	u := CurrentUser(r.Context())
	if _, _, err := s.authz.Facility(r.Context(), u.ID, facilityID); err != nil {
		s.storeError(w, err)
		return
	}
	suggestions, err := s.suggest.ForFacility(r.Context(), facilityID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, suggestions)
}

type notificationResponse struct {
	ID        int64  `json:"id"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at"`
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		Kind:      n.Kind,
		Title:     n.Title,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleNotificationList(w http.ResponseWriter, r *http.Request) {
	u := CurrentUser(r.Context())
	unreadOnly := r.URL.Query().Get("unread") == "true"
	notifications, err := s.notifications.ForUser(r.Context(), u.ID, unreadOnly, 50)
	if err != nil {
		s.storeError(w, err)
		return
	}
	out := make([]notificationResponse, 0, len(notifications))
	for i := range notifications {
		out = append(out, toNotificationResponse(&notifications[i]))
	}
	WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	notificationID, ok := pathID(r, "id")
	if !ok {
		WriteBadRequest(w, "invalid notification id")
		return
	}
	u := CurrentUser(r.Context())
	if err := s.notifications.MarkRead(r.Context(), notificationID, u.ID); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotificationReadAll(w http.ResponseWriter, r *http.Request) {
	u := CurrentUser(r.Context())
	if err := s.notifications.MarkAllRead(r.Context(), u.ID); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
