package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/warden-io/warden/pkg/actors"
	"github.com/warden-io/warden/pkg/audit"
	"github.com/warden-io/warden/pkg/guard"
	"github.com/warden-io/warden/pkg/httputil"
	"github.com/warden-io/warden/pkg/roles"
)

type roleChangeRequest struct {
	Role string `json:"role"`
}

type roleChangeFunc func(ctx context.Context, actor *actors.Actor, targetHandle string, role roles.Role) (*actors.Actor, error)

type whitelistFunc func(ctx context.Context, actor *actors.Actor, targetHandle string) (*actors.Actor, error)

type actorResponse struct {
	ID          int64  `json:"id"`
	Handle      string `json:"handle"`
	Role        string `json:"role"`
	Whitelisted bool   `json:"whitelisted"`
}

func auditFilterFromQuery(r *http.Request) (audit.Filter, error) {
	limit, err := httputil.ParseQueryInt(r, "limit", audit.DefaultQueryLimit)
	if err != nil {
		return audit.Filter{}, err
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		return audit.Filter{}, err
	}
	start, err := httputil.ParseQueryTime(r, "start")
	if err != nil {
		return audit.Filter{}, err
	}
	end, err := httputil.ParseQueryTime(r, "end")
	if err != nil {
		return audit.Filter{}, err
	}

	return audit.Filter{
		Handle:    httputil.ParseQueryString(r, "handle", ""),
		Category:  audit.Category(httputil.ParseQueryString(r, "category", "")),
		Action:    audit.Action(httputil.ParseQueryString(r, "action", "")),
		Actions:   actionsFromQuery(r),
		StartDate: start,
		EndDate:   end,
		Limit:     limit,
		Offset:    offset,
	}, nil
}

// actionsFromQuery parses the comma-separated multi-action filter,
// e.g. ?actions=ROLE_CHANGE,PERMISSION_DENIED.
func actionsFromQuery(r *http.Request) []audit.Action {
	raw := httputil.ParseQueryString(r, "actions", "")
	if raw == "" {
		return nil
	}
	var actions []audit.Action
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			actions = append(actions, audit.Action(trimmed))
		}
	}
	return actions
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	handle, ok := s.actingHandle(w, r)
	if !ok {
		return
	}
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	entries, err := s.audits.View(r.Context(), handle, filter)
	if err != nil {
		httputil.WriteGuardError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleAuditCount(w http.ResponseWriter, r *http.Request) {
	handle, ok := s.actingHandle(w, r)
	if !ok {
		return
	}
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	count, err := s.audits.Count(r.Context(), handle, filter)
	if err != nil {
		httputil.WriteGuardError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	handle, ok := s.actingHandle(w, r)
	if !ok {
		return
	}
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	format := audit.ExportFormat(httputil.ParseQueryString(r, "format", string(audit.ExportFormatJSON)))
	data, err := s.audits.Export(r.Context(), handle, filter, format)
	if err != nil {
		if guard.IsDenied(err) {
			httputil.WriteGuardError(w, err)
			return
		}
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	contentType := "application/json"
	if format == audit.ExportFormatCSV {
		contentType = "text/csv"
	}
	filename := fmt.Sprintf("audit-export-%s.%s", time.Now().UTC().Format("2006-01-02"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	handle, ok := s.actingHandle(w, r)
	if !ok {
		return
	}

	stats, err := s.audits.Statistics(r.Context(), handle)
	if err != nil {
		httputil.WriteGuardError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (s *Server) handleActorGet(w http.ResponseWriter, r *http.Request) {
	handle, ok := s.actingHandle(w, r)
	if !ok {
		return
	}

	if _, err := s.guard.RequireRole(r.Context(), handle, roles.RoleAdmin, "VIEW_ACTOR"); err != nil {
		httputil.WriteGuardError(w, err)
		return
	}

	target, err := s.guard.ResolveActor(r.Context(), mux.Vars(r)["handle"])
	if err != nil {
		httputil.WriteGuardError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, actorResponse{
		ID:          target.ID,
		Handle:      target.Handle,
		Role:        string(target.Role),
		Whitelisted: target.Whitelisted,
	})
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	s.handleRoleChange(w, r, s.manager.Promote)
}

func (s *Server) handleDemote(w http.ResponseWriter, r *http.Request) {
	s.handleRoleChange(w, r, s.manager.Demote)
}

func (s *Server) handleRoleChange(w http.ResponseWriter, r *http.Request, apply roleChangeFunc) {
	handle, ok := s.actingHandle(w, r)
	if !ok {
		return
	}

	var req roleChangeRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	role, err := roles.Parse(req.Role)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	actor, err := s.guard.ResolveActor(r.Context(), handle)
	if err != nil {
		httputil.WriteGuardError(w, err)
		return
	}

	target, err := apply(r.Context(), actor, mux.Vars(r)["handle"], role)
	if err != nil {
		httputil.WriteGuardError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, actorResponse{
		ID:          target.ID,
		Handle:      target.Handle,
		Role:        string(target.Role),
		Whitelisted: target.Whitelisted,
	})
}

func (s *Server) handleWhitelistAdd(w http.ResponseWriter, r *http.Request) {
	s.handleWhitelistChange(w, r, s.manager.AddToWhitelist)
}

func (s *Server) handleWhitelistRemove(w http.ResponseWriter, r *http.Request) {
	s.handleWhitelistChange(w, r, s.manager.RemoveFromWhitelist)
}

func (s *Server) handleWhitelistChange(w http.ResponseWriter, r *http.Request, apply whitelistFunc) {
	handle, ok := s.actingHandle(w, r)
	if !ok {
		return
	}

	actor, err := s.guard.ResolveActor(r.Context(), handle)
	if err != nil {
		httputil.WriteGuardError(w, err)
		return
	}

	target, err := apply(r.Context(), actor, mux.Vars(r)["handle"])
	if err != nil {
		httputil.WriteGuardError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, actorResponse{
		ID:          target.ID,
		Handle:      target.Handle,
		Role:        string(target.Role),
		Whitelisted: target.Whitelisted,
	})
}

func (s *Server) handleAuditPurge(w http.ResponseWriter, r *http.Request) {
	handle, ok := s.actingHandle(w, r)
	if !ok {
		return
	}

	deleted, err := s.audits.PurgeActor(r.Context(), handle, mux.Vars(r)["handle"])
	if err != nil {
		httputil.WriteGuardError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
