package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"aftersales/auth"
	"aftersales/process"
	"aftersales/refdata"
)

type ctxKey int

const ctxKeyIdentity ctxKey = iota

type intakeService interface {
	Create(ctx context.Context, actor auth.Identity, params process.CreateParams) (process.Record, error)
	GetByID(ctx context.Context, actor auth.Identity, id string) (process.Record, error)
	List(ctx context.Context, actor auth.Identity, filters process.ListFilters) ([]process.Record, int, error)
}

type transitionEngine interface {
	AttemptTransition(ctx context.Context, req process.TransitionRequest) (process.Record, error)
}

type trailReader interface {
	Events(ctx context.Context, processID string) ([]process.Event, error)
}

type identityService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (auth.Identity, error)
}

type catalogService interface {
	ListBranches(ctx context.Context, limit int) ([]refdata.Branch, error)
	ListVendors(ctx context.Context, limit int) ([]refdata.Vendor, error)
}

// Server routes HTTP traffic to the domain services. It owns no business
// rules beyond request decoding and error-to-status mapping.
type Server struct {
	authService    identityService
	intakeService  intakeService
	engine         transitionEngine
	trailService   trailReader
	catalogService catalogService
	log            *zap.Logger
}

func (s *Server) logger() *zap.Logger {
	if s.log == nil {
		return zap.NewNop()
	}
	return s.log
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/processes", s.requireAuth(s.handleProcesses))
	mux.HandleFunc("/api/processes/", s.requireAuth(s.handleProcessDetail))
	mux.HandleFunc("/api/branches", s.requireAuth(s.handleBranches))
	mux.HandleFunc("/api/vendors", s.requireAuth(s.handleVendors))
	return mux
}

// requireAuth verifies the bearer token and stores the actor identity in the
// request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		identity, err := s.authService.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKeyIdentity, identity)))
	}
}

func identityFrom(r *http.Request) (auth.Identity, bool) {
	identity, ok := r.Context().Value(ctxKeyIdentity).(auth.Identity)
	return identity, ok
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, "email already registered")
		case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrMissingBranch):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger().Warn("register failed", zap.Error(err))
			writeError(w, http.StatusBadRequest, "invalid registration")
		}
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{
		ID:       user.ID,
		Email:    user.Email,
		FullName: user.FullName,
		Role:     string(user.Role),
		BranchID: user.BranchID,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.logger().Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token: result.Token,
		User: userResponse{
			ID:       result.User.ID,
			Email:    result.User.Email,
			FullName: result.User.FullName,
			Role:     string(result.User.Role),
			BranchID: result.User.BranchID,
		},
	})
}

func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListProcesses(w, r)
	case http.MethodPost:
		s.handleCreateProcess(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleListProcesses(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	q := r.URL.Query()
	filters := process.ListFilters{
		BranchID: q.Get("branchId"),
		Kind:     process.Kind(q.Get("kind")),
		State:    process.State(q.Get("state")),
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("pageSize"))

	records, total, err := s.intakeService.List(r.Context(), identity, filters)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	items := make([]processResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toProcessResponse(rec))
	}
	writeJSON(w, http.StatusOK, listResponse[processResponse]{Items: items, Total: total})
}

func (s *Server) handleCreateProcess(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var req createProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.intakeService.Create(r.Context(), identity, process.CreateParams{
		Kind:     process.Kind(req.Kind),
		BranchID: req.BranchID,
		VendorID: req.VendorID,
		Product: process.ProductInfo{
			Name:          req.Product.Name,
			SKU:           req.Product.SKU,
			InvoiceNumber: req.Product.InvoiceNumber,
			InvoiceValue:  req.Product.InvoiceValue,
			Description:   req.Product.Description,
		},
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toProcessResponse(rec))
}

// handleProcessDetail dispatches /api/processes/{id}, /api/processes/{id}/events
// and /api/processes/{id}/transitions.
func (s *Server) handleProcessDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/processes/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "missing process id")
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.handleGetProcess(w, r, id)
	case len(parts) == 2 && parts[1] == "events" && r.Method == http.MethodGet:
		s.handleProcessEvents(w, r, id)
	case len(parts) == 2 && parts[1] == "transitions" && r.Method == http.MethodPost:
		s.handleTransition(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleGetProcess(w http.ResponseWriter, r *http.Request, id string) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	rec, err := s.intakeService.GetByID(r.Context(), identity, id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProcessResponse(rec))
}

func (s *Server) handleProcessEvents(w http.ResponseWriter, r *http.Request, id string) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	// Scoping is enforced by the record read; the trail itself carries no
	// branch information.
	if _, err := s.intakeService.GetByID(r.Context(), identity, id); err != nil {
		s.writeDomainError(w, err)
		return
	}

	events, err := s.trailService.Events(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	items := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		items = append(items, toEventResponse(ev))
	}
	writeJSON(w, http.StatusOK, listResponse[eventResponse]{Items: items, Total: len(items)})
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, id string) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	engineReq := process.TransitionRequest{
		ProcessID: id,
		Actor:     identity,
		To:        process.State(req.To),
		Folio:     req.Folio,
		Note:      req.Note,
	}
	if req.Handover != nil {
		pickup, err := time.Parse("2006-01-02", req.Handover.PickupDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid pickupDate, want YYYY-MM-DD")
			return
		}
		engineReq.Handover = &process.VendorHandover{
			SellerName:   req.Handover.SellerName,
			SellerPhone:  req.Handover.SellerPhone,
			PickupDate:   pickup,
			PickupTicket: req.Handover.PickupTicket,
			EvidenceURL:  req.Handover.EvidenceURL,
		}
	}
	if req.Resolution != nil {
		engineReq.Resolution = &process.ResolutionInput{
			Kind:   process.ResolutionKind(req.Resolution.Kind),
			Fields: req.Resolution.Fields,
		}
	}
	if req.DeliveryDate != "" {
		delivered, err := time.Parse("2006-01-02", req.DeliveryDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid deliveryDate, want YYYY-MM-DD")
			return
		}
		engineReq.DeliveryDate = &delivered
	}

	rec, err := s.engine.AttemptTransition(r.Context(), engineReq)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProcessResponse(rec))
}

func (s *Server) handleBranches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	branches, err := s.catalogService.ListBranches(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	items := make([]branchResponse, 0, len(branches))
	for _, b := range branches {
		items = append(items, branchResponse{ID: b.ID, Name: b.Name, Address: b.Address})
	}
	writeJSON(w, http.StatusOK, listResponse[branchResponse]{Items: items, Total: len(items)})
}

func (s *Server) handleVendors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	vendors, err := s.catalogService.ListVendors(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	items := make([]vendorResponse, 0, len(vendors))
	for _, v := range vendors {
		items = append(items, vendorResponse{ID: v.ID, Name: v.Name, Phone: v.Phone})
	}
	writeJSON(w, http.StatusOK, listResponse[vendorResponse]{Items: items, Total: len(items)})
}

// writeDomainError translates domain failures into HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var illegal *process.IllegalTransitionError
	var invalid *process.InvalidResolutionDataError

	switch {
	case errors.Is(err, process.ErrNotFound):
		writeError(w, http.StatusNotFound, "process not found")
	case errors.Is(err, process.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "transition not permitted for role")
	case errors.Is(err, process.ErrConflict):
		writeError(w, http.StatusConflict, "process changed concurrently, reload and retry")
	case errors.As(err, &illegal):
		writeError(w, http.StatusConflict, illegal.Error())
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid resolution payload",
			"fields": invalid.Fields,
		})
	case errors.Is(err, process.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
