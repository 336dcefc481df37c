package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ultimate-banking-app/ledger-engine/internal/coordinator"
	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
	"github.com/ultimate-banking-app/ledger-engine/internal/engine"
	"github.com/ultimate-banking-app/ledger-engine/internal/money"
	"github.com/ultimate-banking-app/ledger-engine/internal/registry"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	accounts registry.Registry
	engine   *engine.Engine
	coord    *coordinator.Coordinator
	validate *validator.Validate
}

func NewHandler(accounts registry.Registry, eng *engine.Engine, coord *coordinator.Coordinator) *Handler {
	return &Handler{
		accounts: accounts,
		engine:   eng,
		coord:    coord,
		validate: validator.New(),
	}
}

// Register mounts all routes on the given router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/accounts", h.OpenAccountHandler).Methods("POST")
	r.HandleFunc("/accounts", h.ListAccountsHandler).Methods("GET").Queries("owner", "{owner}")
	r.HandleFunc("/accounts/{id}", h.GetAccountHandler).Methods("GET")
	r.HandleFunc("/accounts/{id}/status", h.SetAccountStatusHandler).Methods("PUT")
	r.HandleFunc("/accounts/{id}/balance", h.GetBalanceHandler).Methods("GET")
	r.HandleFunc("/accounts/{id}/entries", h.GetEntriesHandler).Methods("GET")
	r.HandleFunc("/movements", h.CreateMovementHandler).Methods("POST")
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type openAccountRequest struct {
	OwnerID  string `json:"owner_id" validate:"required"`
	Currency string `json:"currency" validate:"required,len=3,uppercase"`
}

func (h *Handler) OpenAccountHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	var req openAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.reject(w, "POST", endpoint, http.StatusBadRequest, "malformed_body", "Malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.reject(w, "POST", endpoint, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	acc, err := h.accounts.Open(r.Context(), req.OwnerID, req.Currency)
	if err != nil {
		h.fail(w, "POST", endpoint, err)
		return
	}

	httpRequestsTotal.WithLabelValues("POST", endpoint, "201").Inc()
	respondWithJSON(w, http.StatusCreated, acc)
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{id}"

	acc, err := h.accounts.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, "GET", endpoint, err)
		return
	}

	httpRequestsTotal.WithLabelValues("GET", endpoint, "200").Inc()
	respondWithJSON(w, http.StatusOK, acc)
}

func (h *Handler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts"

	accounts, err := h.accounts.ListByOwner(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		h.fail(w, "GET", endpoint, err)
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}

	httpRequestsTotal.WithLabelValues("GET", endpoint, "200").Inc()
	respondWithJSON(w, http.StatusOK, accounts)
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active frozen closed"`
}

func (h *Handler) SetAccountStatusHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{id}/status"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("PUT", endpoint))
	defer timer.ObserveDuration()

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.reject(w, "PUT", endpoint, http.StatusBadRequest, "malformed_body", "Malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.reject(w, "PUT", endpoint, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	acc, err := h.accounts.SetStatus(r.Context(), mux.Vars(r)["id"], domain.AccountStatus(req.Status))
	if err != nil {
		h.fail(w, "PUT", endpoint, err)
		return
	}

	httpRequestsTotal.WithLabelValues("PUT", endpoint, "200").Inc()
	respondWithJSON(w, http.StatusOK, acc)
}

func (h *Handler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{id}/balance"
	id := mux.Vars(r)["id"]

	acc, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "GET", endpoint, err)
		return
	}
	balance, err := h.engine.GetBalance(r.Context(), id)
	if err != nil {
		h.fail(w, "GET", endpoint, err)
		return
	}

	httpRequestsTotal.WithLabelValues("GET", endpoint, "200").Inc()
	respondWithJSON(w, http.StatusOK, map[string]string{
		"account_id": id,
		"currency":   acc.Currency,
		"balance":    money.Format(balance, acc.Currency),
	})
}

func (h *Handler) GetEntriesHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{id}/entries"

	entries, err := h.engine.GetHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, "GET", endpoint, err)
		return
	}
	if entries == nil {
		entries = []domain.BalanceEntry{}
	}

	httpRequestsTotal.WithLabelValues("GET", endpoint, "200").Inc()
	respondWithJSON(w, http.StatusOK, entries)
}

type movementRequest struct {
	Kind                 string `json:"kind" validate:"required,oneof=deposit withdrawal transfer payment"`
	Amount               string `json:"amount" validate:"required"`
	Currency             string `json:"currency" validate:"required,len=3,uppercase"`
	SourceAccountID      string `json:"source_account_id"`
	DestinationAccountID string `json:"destination_account_id"`
	Description          string `json:"description" validate:"max=255"`
}

func (h *Handler) CreateMovementHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/movements"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		h.reject(w, "POST", endpoint, http.StatusBadRequest, "missing_idempotency_key", "Missing Idempotency-Key header")
		return
	}

	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.reject(w, "POST", endpoint, http.StatusBadRequest, "malformed_body", "Malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.reject(w, "POST", endpoint, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	amount, err := money.Parse(req.Amount, req.Currency)
	if err != nil {
		h.fail(w, "POST", endpoint, err)
		return
	}

	result, err := h.coord.Execute(r.Context(), domain.MovementRequest{
		RequestID:            idempotencyKey,
		Kind:                 domain.MovementKind(req.Kind),
		Amount:               amount,
		Currency:             req.Currency,
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		Description:          req.Description,
	})
	if err != nil && result == nil {
		h.fail(w, "POST", endpoint, err)
		return
	}

	// A terminal result exists: failed movements carry their error kind in
	// the body. Replays answer exactly as the original did, so a retried
	// request cannot observe a different response.
	if result.Status == domain.MovementFailed {
		code := statusForError(err)
		httpRequestsTotal.WithLabelValues("POST", endpoint, strconv.Itoa(code)).Inc()
		respondWithJSON(w, code, result)
		return
	}

	httpRequestsTotal.WithLabelValues("POST", endpoint, "201").Inc()
	w.Header().Set("Location", fmt.Sprintf("/api/v1/movements/%s", result.RequestID))
	respondWithJSON(w, http.StatusCreated, result)
}

func (h *Handler) reject(w http.ResponseWriter, method, endpoint string, code int, kind, msg string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	respondWithError(w, code, kind, msg)
}

func (h *Handler) fail(w http.ResponseWriter, method, endpoint string, err error) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusForError(err))).Inc()
	respondWithDomainError(w, err)
}
