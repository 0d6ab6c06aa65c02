package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aftersales/auth"
	"aftersales/process"
	"aftersales/refdata"
)

type stubIntake struct {
	record  process.Record
	records []process.Record
	total   int
	err     error
}

func (s *stubIntake) Create(_ context.Context, _ auth.Identity, _ process.CreateParams) (process.Record, error) {
	return s.record, s.err
}

func (s *stubIntake) GetByID(_ context.Context, _ auth.Identity, _ string) (process.Record, error) {
	return s.record, s.err
}

func (s *stubIntake) List(_ context.Context, _ auth.Identity, _ process.ListFilters) ([]process.Record, int, error) {
	return s.records, s.total, s.err
}

type stubEngine struct {
	record process.Record
	err    error
	gotReq process.TransitionRequest
}

func (s *stubEngine) AttemptTransition(_ context.Context, req process.TransitionRequest) (process.Record, error) {
	s.gotReq = req
	return s.record, s.err
}

type stubTrail struct {
	events []process.Event
	err    error
}

func (s *stubTrail) Events(_ context.Context, _ string) ([]process.Event, error) {
	return s.events, s.err
}

type stubAuth struct {
	identity  auth.Identity
	verifyErr error
}

func (s *stubAuth) Register(_ context.Context, _ auth.RegisterRequest) (*auth.User, error) {
	return nil, errors.New("not implemented")
}

func (s *stubAuth) Login(_ context.Context, _ auth.LoginRequest) (auth.LoginResult, error) {
	return auth.LoginResult{}, errors.New("not implemented")
}

func (s *stubAuth) VerifyToken(_ string) (auth.Identity, error) {
	return s.identity, s.verifyErr
}

type stubCatalog struct {
	branches []refdata.Branch
	vendors  []refdata.Vendor
	err      error
}

func (s *stubCatalog) ListBranches(_ context.Context, _ int) ([]refdata.Branch, error) {
	return s.branches, s.err
}

func (s *stubCatalog) ListVendors(_ context.Context, _ int) ([]refdata.Vendor, error) {
	return s.vendors, s.err
}

func withIdentity(req *http.Request, identity auth.Identity) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), ctxKeyIdentity, identity))
}

func sampleRecord() process.Record {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	return process.Record{
		ID:       "p1",
		Kind:     process.KindWarranty,
		State:    process.StateCreated,
		BranchID: "branch-1",
		VendorID: "vendor-1",
		Product: process.ProductInfo{
			Name:         "Blender X200",
			SKU:          "BLX-200",
			InvoiceValue: 1299.90,
		},
		ActorStamps: map[string]string{process.StampIntake: "cashier-1"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestHandleCreateProcess_Success(t *testing.T) {
	server := &Server{intakeService: &stubIntake{record: sampleRecord()}}

	body := strings.NewReader(`{"kind":"warranty","branchId":"branch-1","vendorId":"vendor-1","product":{"name":"Blender X200","sku":"BLX-200"}}`)
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/processes", body),
		auth.Identity{ActorID: "cashier-1", Role: auth.RoleCashier, BranchID: "branch-1"})
	rec := httptest.NewRecorder()

	server.handleProcesses(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp processResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "p1" || resp.Kind != "warranty" || resp.State != "created" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	if resp.ActorStamps[process.StampIntake] != "cashier-1" {
		t.Fatalf("expected intake stamp, got %+v", resp.ActorStamps)
	}
}

func TestHandleCreateProcess_InvalidInput(t *testing.T) {
	server := &Server{intakeService: &stubIntake{err: process.ErrInvalidInput}}

	body := strings.NewReader(`{"kind":"exchange"}`)
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/processes", body),
		auth.Identity{ActorID: "cashier-1", Role: auth.RoleCashier})
	rec := httptest.NewRecorder()

	server.handleProcesses(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleGetProcess_NotFound(t *testing.T) {
	server := &Server{intakeService: &stubIntake{err: process.ErrNotFound}}

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/processes/missing", nil),
		auth.Identity{ActorID: "cashier-1", Role: auth.RoleCashier, BranchID: "branch-1"})
	rec := httptest.NewRecorder()

	server.handleProcessDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleListProcesses_Success(t *testing.T) {
	server := &Server{intakeService: &stubIntake{
		records: []process.Record{sampleRecord()},
		total:   7,
	}}

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/processes?kind=warranty&page=1", nil),
		auth.Identity{ActorID: "admin-1", Role: auth.RoleAdministrator})
	rec := httptest.NewRecorder()

	server.handleProcesses(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload listResponse[processResponse]
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(payload.Items) != 1 || payload.Total != 7 || payload.Items[0].ID != "p1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleTransition_Success(t *testing.T) {
	updated := sampleRecord()
	updated.State = process.StateFolioAssignment
	engine := &stubEngine{record: updated}
	server := &Server{engine: engine}

	body := strings.NewReader(`{"to":"folio_assignment"}`)
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/processes/p1/transitions", body),
		auth.Identity{ActorID: "cashier-1", Role: auth.RoleCashier, BranchID: "branch-1"})
	rec := httptest.NewRecorder()

	server.handleProcessDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if engine.gotReq.ProcessID != "p1" || engine.gotReq.To != process.StateFolioAssignment {
		t.Fatalf("unexpected engine request: %+v", engine.gotReq)
	}

	var resp processResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.State != "folio_assignment" {
		t.Fatalf("expected folio_assignment, got %s", resp.State)
	}
}

func TestHandleTransition_Forbidden(t *testing.T) {
	server := &Server{engine: &stubEngine{err: process.ErrUnauthorized}}

	body := strings.NewReader(`{"to":"vendor_handover_pending","folio":"F-100"}`)
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/processes/p1/transitions", body),
		auth.Identity{ActorID: "cashier-1", Role: auth.RoleCashier, BranchID: "branch-1"})
	rec := httptest.NewRecorder()

	server.handleProcessDetail(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleTransition_IllegalMove(t *testing.T) {
	server := &Server{engine: &stubEngine{err: &process.IllegalTransitionError{
		Kind: process.KindWarranty,
		From: process.StateClosed,
		To:   process.StateCreated,
	}}}

	body := strings.NewReader(`{"to":"created"}`)
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/processes/p1/transitions", body),
		auth.Identity{ActorID: "admin-1", Role: auth.RoleAdministrator})
	rec := httptest.NewRecorder()

	server.handleProcessDetail(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleTransition_InvalidResolutionListsFields(t *testing.T) {
	server := &Server{engine: &stubEngine{err: &process.InvalidResolutionDataError{
		Kind:           process.KindWarranty,
		ResolutionKind: process.ResolutionCreditNote,
		Fields:         []string{"credit_note_folio", "credit_note_value"},
	}}}

	body := strings.NewReader(`{"to":"pending_approval","resolution":{"kind":"credit_note","fields":{}}}`)
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/processes/p1/transitions", body),
		auth.Identity{ActorID: "cashier-1", Role: auth.RoleCashier, BranchID: "branch-1"})
	rec := httptest.NewRecorder()

	server.handleProcessDetail(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var payload struct {
		Fields []string `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Fields) != 2 || payload.Fields[0] != "credit_note_folio" {
		t.Fatalf("unexpected fields: %+v", payload.Fields)
	}
}

func TestHandleTransition_Conflict(t *testing.T) {
	server := &Server{engine: &stubEngine{err: process.ErrConflict}}

	body := strings.NewReader(`{"to":"with_vendor"}`)
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/processes/p1/transitions", body),
		auth.Identity{ActorID: "admin-1", Role: auth.RoleAdministrator})
	rec := httptest.NewRecorder()

	server.handleProcessDetail(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleTransition_BadPickupDate(t *testing.T) {
	server := &Server{engine: &stubEngine{}}

	body := strings.NewReader(`{"to":"with_vendor","handover":{"sellerName":"Luis","sellerPhone":"555","pickupDate":"03/14/2025"}}`)
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/processes/p1/transitions", body),
		auth.Identity{ActorID: "cashier-1", Role: auth.RoleCashier, BranchID: "branch-1"})
	rec := httptest.NewRecorder()

	server.handleProcessDetail(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleProcessEvents_Success(t *testing.T) {
	actor := "cashier-1"
	server := &Server{
		intakeService: &stubIntake{record: sampleRecord()},
		trailService: &stubTrail{events: []process.Event{
			{Seq: 1, Type: process.EventProcessCreated, ActorID: &actor, CreatedAt: time.Now().UTC()},
			{Seq: 2, Type: process.EventStateTransition, ActorID: &actor, CreatedAt: time.Now().UTC()},
		}},
	}

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/processes/p1/events", nil),
		auth.Identity{ActorID: actor, Role: auth.RoleCashier, BranchID: "branch-1"})
	rec := httptest.NewRecorder()

	server.handleProcessDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload listResponse[eventResponse]
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 2 || payload.Items[0].Seq != 1 || payload.Items[1].Type != process.EventStateTransition {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleProcessEvents_ScopedMiss(t *testing.T) {
	server := &Server{
		intakeService: &stubIntake{err: process.ErrNotFound},
		trailService:  &stubTrail{},
	}

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/processes/p1/events", nil),
		auth.Identity{ActorID: "cashier-2", Role: auth.RoleCashier, BranchID: "branch-other"})
	rec := httptest.NewRecorder()

	server.handleProcessDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRequireAuth_MissingToken(t *testing.T) {
	server := &Server{authService: &stubAuth{}}
	handler := server.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/processes", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuth_BadToken(t *testing.T) {
	server := &Server{authService: &stubAuth{verifyErr: errors.New("expired")}}
	handler := server.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/processes", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleBranches_List(t *testing.T) {
	server := &Server{catalogService: &stubCatalog{branches: []refdata.Branch{
		{ID: "branch-1", Name: "Centro", Address: "Av. Principal 100", Active: true},
	}}}

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/branches", nil),
		auth.Identity{ActorID: "cashier-1", Role: auth.RoleCashier, BranchID: "branch-1"})
	rec := httptest.NewRecorder()

	server.handleBranches(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload listResponse[branchResponse]
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 1 || payload.Items[0].Name != "Centro" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleVendors_WrongMethod(t *testing.T) {
	server := &Server{catalogService: &stubCatalog{}}

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/vendors", nil),
		auth.Identity{ActorID: "admin-1", Role: auth.RoleAdministrator})
	rec := httptest.NewRecorder()

	server.handleVendors(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
