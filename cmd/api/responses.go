package main

import (
	"encoding/json"
	"time"

	"aftersales/process"
)

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

type userResponse struct {
	ID       string  `json:"id"`
	Email    string  `json:"email"`
	FullName string  `json:"fullName"`
	Role     string  `json:"role"`
	BranchID *string `json:"branchId,omitempty"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type productPayload struct {
	Name          string  `json:"name"`
	SKU           string  `json:"sku"`
	InvoiceNumber string  `json:"invoiceNumber"`
	InvoiceValue  float64 `json:"invoiceValue"`
	Description   string  `json:"description"`
}

type createProcessRequest struct {
	Kind          string         `json:"kind"`
	BranchID      string         `json:"branchId"`
	VendorID      string         `json:"vendorId"`
	Product       productPayload `json:"product"`
	CustomerName  string         `json:"customerName"`
	CustomerPhone string         `json:"customerPhone"`
}

type handoverPayload struct {
	SellerName   string  `json:"sellerName"`
	SellerPhone  string  `json:"sellerPhone"`
	PickupDate   string  `json:"pickupDate"`
	PickupTicket string  `json:"pickupTicket"`
	EvidenceURL  *string `json:"evidenceUrl,omitempty"`
}

type resolutionPayload struct {
	Kind   string            `json:"kind"`
	Fields map[string]string `json:"fields"`
}

type transitionRequest struct {
	To           string             `json:"to"`
	Folio        string             `json:"folio,omitempty"`
	Handover     *handoverPayload   `json:"handover,omitempty"`
	Resolution   *resolutionPayload `json:"resolution,omitempty"`
	DeliveryDate string             `json:"deliveryDate,omitempty"`
	Note         string             `json:"note,omitempty"`
}

type processResponse struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	State    string         `json:"state"`
	BranchID string         `json:"branchId"`
	VendorID string         `json:"vendorId"`
	Product  productPayload `json:"product"`

	Folio          *string          `json:"folio,omitempty"`
	Handover       *handoverPayload `json:"handover,omitempty"`
	ResolutionKind *string          `json:"resolutionKind,omitempty"`
	Resolution     json.RawMessage  `json:"resolution,omitempty"`

	CustomerDeliveryDate *string           `json:"customerDeliveryDate,omitempty"`
	ActorStamps          map[string]string `json:"actorStamps"`

	CreatedAt    string  `json:"createdAt"`
	UpdatedAt    string  `json:"updatedAt"`
	HandedOverAt *string `json:"handedOverAt,omitempty"`
	ResolvedAt   *string `json:"resolvedAt,omitempty"`
	DeliveredAt  *string `json:"deliveredAt,omitempty"`
	ClosedAt     *string `json:"closedAt,omitempty"`
}

type eventResponse struct {
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	ActorID   *string         `json:"actorId,omitempty"`
	CreatedAt string          `json:"createdAt"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type branchResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

type vendorResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func toProcessResponse(rec process.Record) processResponse {
	resp := processResponse{
		ID:       rec.ID,
		Kind:     string(rec.Kind),
		State:    string(rec.State),
		BranchID: rec.BranchID,
		VendorID: rec.VendorID,
		Product: productPayload{
			Name:          rec.Product.Name,
			SKU:           rec.Product.SKU,
			InvoiceNumber: rec.Product.InvoiceNumber,
			InvoiceValue:  rec.Product.InvoiceValue,
			Description:   rec.Product.Description,
		},
		Folio:        rec.Folio,
		ActorStamps:  rec.ActorStamps,
		CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    rec.UpdatedAt.Format(time.RFC3339),
		HandedOverAt: formatTimePtr(rec.HandedOverAt),
		ResolvedAt:   formatTimePtr(rec.ResolvedAt),
		DeliveredAt:  formatTimePtr(rec.DeliveredAt),
		ClosedAt:     formatTimePtr(rec.ClosedAt),
	}
	if resp.ActorStamps == nil {
		resp.ActorStamps = map[string]string{}
	}
	if rec.Handover != nil {
		resp.Handover = &handoverPayload{
			SellerName:   rec.Handover.SellerName,
			SellerPhone:  rec.Handover.SellerPhone,
			PickupDate:   rec.Handover.PickupDate.Format("2006-01-02"),
			PickupTicket: rec.Handover.PickupTicket,
			EvidenceURL:  rec.Handover.EvidenceURL,
		}
	}
	if rec.ResolutionKind != nil {
		kind := string(*rec.ResolutionKind)
		resp.ResolutionKind = &kind
		resp.Resolution = json.RawMessage(rec.ResolutionData)
	}
	if rec.CustomerDeliveryDate != nil {
		d := rec.CustomerDeliveryDate.Format("2006-01-02")
		resp.CustomerDeliveryDate = &d
	}
	return resp
}

func toEventResponse(ev process.Event) eventResponse {
	return eventResponse{
		Seq:       ev.Seq,
		Type:      ev.Type,
		ActorID:   ev.ActorID,
		CreatedAt: ev.CreatedAt.Format(time.RFC3339),
		Payload:   json.RawMessage(ev.Payload),
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
