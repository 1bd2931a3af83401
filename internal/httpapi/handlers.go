package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"minicrm/internal/domain"
	"minicrm/internal/service"
	"minicrm/internal/store"
)

type API struct {
	Campaigns *service.CampaignService
	CRM       *service.CRMService
}

func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/v1/segments/preview", a.handlePreview).Methods(http.MethodPost)
	r.HandleFunc("/v1/segments", a.handleCreateSegment).Methods(http.MethodPost)
	r.HandleFunc("/v1/segments/{id}/members", a.handleAssignMember).Methods(http.MethodPost)
	r.HandleFunc("/v1/segments/{id}/dispatch", a.handleDispatch).Methods(http.MethodPost)
	r.HandleFunc("/v1/segments/{id}/history", a.handleHistory).Methods(http.MethodGet)

	r.HandleFunc("/v1/customers", a.handleAddCustomer).Methods(http.MethodPost)
	r.HandleFunc("/v1/customers", a.handleListCustomers).Methods(http.MethodGet)
	r.HandleFunc("/v1/customers/{id}", a.handleDeleteCustomer).Methods(http.MethodDelete)
	r.HandleFunc("/v1/customers/{id}/orders", a.handleOrdersByCustomer).Methods(http.MethodGet)
	r.HandleFunc("/v1/orders", a.handleAddOrder).Methods(http.MethodPost)
	r.HandleFunc("/v1/orders", a.handleListOrders).Methods(http.MethodGet)

	r.HandleFunc("/v1/communications", a.handleAddLogEntry).Methods(http.MethodPost)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the domain error taxonomy onto HTTP status codes. Anything
// unrecognized is a dependency failure the caller may retry.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidCondition):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, ErrNotFound, http.StatusNotFound)
	case errors.Is(err, domain.ErrStorageUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, domain.ErrDispatchIntegrity):
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		http.Error(w, ErrDependency, http.StatusBadGateway)
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (a *API) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req domain.PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	size, err := a.Campaigns.ComputeAudienceSize(r.Context(), req.Conditions)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"audienceSize": size})
}

func (a *API) handleCreateSegment(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSegmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	resp, err := a.Campaigns.CreateSegment(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleAssignMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}
	var req domain.AssignMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if req.CustomerID <= 0 {
		http.Error(w, "missing customerId", http.StatusBadRequest)
		return
	}
	if err := a.Campaigns.AssignMember(r.Context(), id, req.CustomerID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}
	var req domain.DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	res, err := a.Campaigns.Dispatch(r.Context(), id, req)
	if err != nil {
		slog.Error("dispatch failed", "err", err, "segment_id", id)
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}
	history, err := a.Campaigns.History(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]store.HistoryEntry{"history": history})
}

func (a *API) handleAddCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.AddCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	id, err := a.CRM.AddCustomer(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"customerId": id})
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.CRM.ListCustomers(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]store.Customer{"customers": customers})
}

func (a *API) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}
	if err := a.CRM.DeleteCustomer(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAddOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.AddOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	id, err := a.CRM.AddOrder(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"orderId": id})
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.CRM.ListOrders(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]store.Order{"orders": orders})
}

func (a *API) handleOrdersByCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}
	orders, err := a.CRM.ListOrdersByCustomer(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]store.Order{"orders": orders})
}

func (a *API) handleAddLogEntry(w http.ResponseWriter, r *http.Request) {
	var req domain.AddLogEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	id, err := a.Campaigns.AddLogEntry(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"logId": id})
}
