package process

import (
	"strconv"
	"strings"
	"time"
)

// ResolutionKind is the remedy the vendor settled on.
type ResolutionKind string

const (
	ResolutionCreditNote       ResolutionKind = "credit_note"
	ResolutionPhysicalExchange ResolutionKind = "physical_exchange"
	// ResolutionRepair is valid for warranties only.
	ResolutionRepair ResolutionKind = "repair"
)

// Payload field keys accepted by the registry.
const (
	FieldCreditNoteFolio        = "credit_note_folio"
	FieldCreditNoteValue        = "credit_note_value"
	FieldAffectedInvoices       = "affected_invoices"
	FieldNotifiedBy             = "notified_by"
	FieldNotificationDate       = "notification_date"
	FieldReceivedByBranchPerson = "received_by_branch_person"
	FieldReentryDate            = "reentry_date"
	FieldDeliveredToCustomer    = "delivered_to_customer_person"
	FieldCustomerDeliveryDate   = "customer_delivery_date"
	FieldRepairComments         = "repair_comments"
)

const dateLayout = "2006-01-02"

// CreditNoteDetails is the validated credit note remedy.
type CreditNoteDetails struct {
	Folio            string    `json:"credit_note_folio"`
	Value            float64   `json:"credit_note_value"`
	AffectedInvoices string    `json:"affected_invoices"`
	NotifiedBy       string    `json:"notified_by"`
	NotificationDate time.Time `json:"notification_date"`
}

// PhysicalExchangeDetails is the validated exchange remedy. The customer
// delivery pair is required for warranties only; returns stop at branch
// reentry.
type PhysicalExchangeDetails struct {
	ReceivedByBranchPerson    string     `json:"received_by_branch_person"`
	ReentryDate               time.Time  `json:"reentry_date"`
	DeliveredToCustomerPerson string     `json:"delivered_to_customer_person,omitempty"`
	CustomerDeliveryDate      *time.Time `json:"customer_delivery_date,omitempty"`
}

// RepairDetails is the validated repair remedy (warranty only).
type RepairDetails struct {
	Comments string `json:"repair_comments"`
}

// Resolution is the tagged union a raw payload parses into. Exactly one
// variant pointer is set, matching Kind.
type Resolution struct {
	Kind             ResolutionKind           `json:"kind"`
	CreditNote       *CreditNoteDetails       `json:"credit_note,omitempty"`
	PhysicalExchange *PhysicalExchangeDetails `json:"physical_exchange,omitempty"`
	Repair           *RepairDetails           `json:"repair,omitempty"`
}

type fieldRule struct {
	key  string
	kind fieldType
}

type fieldType int

const (
	fieldText fieldType = iota
	fieldNumber
	fieldDate
)

// requiredFields declares, per (process kind, resolution kind), the payload
// keys a submission must carry and how each one is checked.
var requiredFields = map[Kind]map[ResolutionKind][]fieldRule{
	KindWarranty: {
		ResolutionCreditNote: {
			{FieldCreditNoteFolio, fieldText},
			{FieldCreditNoteValue, fieldNumber},
			{FieldAffectedInvoices, fieldText},
			{FieldNotifiedBy, fieldText},
			{FieldNotificationDate, fieldDate},
		},
		ResolutionPhysicalExchange: {
			{FieldReceivedByBranchPerson, fieldText},
			{FieldReentryDate, fieldDate},
			{FieldDeliveredToCustomer, fieldText},
			{FieldCustomerDeliveryDate, fieldDate},
		},
		ResolutionRepair: {
			{FieldRepairComments, fieldText},
		},
	},
	KindReturn: {
		ResolutionCreditNote: {
			{FieldCreditNoteFolio, fieldText},
			{FieldCreditNoteValue, fieldNumber},
			{FieldAffectedInvoices, fieldText},
			{FieldNotifiedBy, fieldText},
			{FieldNotificationDate, fieldDate},
		},
		ResolutionPhysicalExchange: {
			{FieldReceivedByBranchPerson, fieldText},
			{FieldReentryDate, fieldDate},
		},
	},
}

// ResolutionKinds lists the remedies available to a process kind.
func ResolutionKinds(kind Kind) []ResolutionKind {
	switch kind {
	case KindWarranty:
		return []ResolutionKind{ResolutionCreditNote, ResolutionPhysicalExchange, ResolutionRepair}
	case KindReturn:
		return []ResolutionKind{ResolutionCreditNote, ResolutionPhysicalExchange}
	default:
		return nil
	}
}

// ValidateResolution checks a raw payload against the required-field set for
// (kind, resKind). It is pure: the returned error lists every missing or
// invalid key, and nothing else is touched.
func ValidateResolution(kind Kind, resKind ResolutionKind, fields map[string]string) error {
	rules, ok := requiredFields[kind][resKind]
	if !ok {
		return &InvalidResolutionDataError{
			Kind:           kind,
			ResolutionKind: resKind,
			Fields:         []string{"resolution_kind"},
		}
	}

	var bad []string
	for _, rule := range rules {
		raw, present := fields[rule.key]
		raw = strings.TrimSpace(raw)
		if !present || raw == "" {
			bad = append(bad, rule.key)
			continue
		}
		switch rule.kind {
		case fieldNumber:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v < 0 {
				bad = append(bad, rule.key)
			}
		case fieldDate:
			if _, err := time.Parse(dateLayout, raw); err != nil {
				bad = append(bad, rule.key)
			}
		}
	}
	if len(bad) > 0 {
		return &InvalidResolutionDataError{Kind: kind, ResolutionKind: resKind, Fields: bad}
	}
	return nil
}

// ParseResolution validates the payload and builds the typed union. Optional
// keys beyond the required set are ignored so callers can forward form data
// as-is.
func ParseResolution(kind Kind, resKind ResolutionKind, fields map[string]string) (Resolution, error) {
	if err := ValidateResolution(kind, resKind, fields); err != nil {
		return Resolution{}, err
	}

	get := func(key string) string { return strings.TrimSpace(fields[key]) }
	date := func(key string) time.Time {
		t, _ := time.Parse(dateLayout, get(key))
		return t
	}

	res := Resolution{Kind: resKind}
	switch resKind {
	case ResolutionCreditNote:
		value, _ := strconv.ParseFloat(get(FieldCreditNoteValue), 64)
		res.CreditNote = &CreditNoteDetails{
			Folio:            get(FieldCreditNoteFolio),
			Value:            value,
			AffectedInvoices: get(FieldAffectedInvoices),
			NotifiedBy:       get(FieldNotifiedBy),
			NotificationDate: date(FieldNotificationDate),
		}
	case ResolutionPhysicalExchange:
		details := &PhysicalExchangeDetails{
			ReceivedByBranchPerson: get(FieldReceivedByBranchPerson),
			ReentryDate:            date(FieldReentryDate),
		}
		if kind == KindWarranty {
			details.DeliveredToCustomerPerson = get(FieldDeliveredToCustomer)
			d := date(FieldCustomerDeliveryDate)
			details.CustomerDeliveryDate = &d
		}
		res.PhysicalExchange = details
	case ResolutionRepair:
		res.Repair = &RepairDetails{Comments: get(FieldRepairComments)}
	}
	return res, nil
}
