package api

import (
	"context"
	"net/http"

	"ecoquote/internal/auth"
	"ecoquote/internal/model"
	"ecoquote/internal/service"
)

// portalView builds the landing data of one staff role
type portalView func(ctx context.Context, d Dependencies) (map[string]interface{}, error)

var portalViews = map[model.Role]portalView{
	model.RoleManager:  managerPortal,
	model.RoleAdmin:    adminPortal,
	model.RoleEmployee: employeePortal,
}

func (d Dependencies) portal(w http.ResponseWriter, r *http.Request) {
	role := auth.GetRole(r.Context())
	view, ok := portalViews[role]
	if !ok {
		WriteError(w, http.StatusForbidden, "forbidden", "No portal for role", d.Log)
		return
	}

	data, err := view(r.Context(), d)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	data["role"] = role
	writeJSON(w, http.StatusOK, data)
}

func managerPortal(ctx context.Context, d Dependencies) (map[string]interface{}, error) {
	counts, err := d.Quotations.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	staff, err := d.Staff.ListStaff(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"counts": counts, "staff": staff}, nil
}

func adminPortal(ctx context.Context, d Dependencies) (map[string]interface{}, error) {
	counts, err := d.Quotations.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	agencies, err := d.Catalog.ListAgencies(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"counts": counts, "agencies": agencies}, nil
}

func employeePortal(ctx context.Context, d Dependencies) (map[string]interface{}, error) {
	pending, err := d.Quotations.List(ctx, service.ListQuotationsInput{Status: string(model.StatusPending), Limit: 50})
	if err != nil {
		return nil, err
	}
	sent, err := d.Quotations.List(ctx, service.ListQuotationsInput{Status: string(model.StatusSent), Limit: 50})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"pending": pending, "sent": sent}, nil
}
