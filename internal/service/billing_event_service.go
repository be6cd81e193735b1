package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"warehouse-billing/internal/model"
	"warehouse-billing/internal/repository"
	"warehouse-billing/pkg/apperror"
	"warehouse-billing/pkg/pagination"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

// MovementUsage is the billable side of a stock movement.
type MovementUsage struct {
	MovementID  uuid.UUID
	ClientID    uuid.UUID
	ServiceCode string
	EventDate   time.Time
	Qty         decimal.Decimal
	BoxCount    int64
	ActorID     uuid.UUID
}

type RecordUsageRequest struct {
	ClientID      string `json:"client_id" binding:"required"`
	ServiceCode   string `json:"service_code" binding:"required"`
	EventDate     string `json:"event_date" binding:"required"` // YYYY-MM-DD
	Qty           string `json:"qty"`
	BoxCount      int64  `json:"box_count"`
	ReferenceID   string `json:"reference_id"`   // optional idempotency key
	ManualAmount  string `json:"manual_amount"`  // optional, bypasses the price resolver
	PricingPolicy string `json:"pricing_policy"` // required with manual_amount
}

type BillingEventQuery struct {
	ClientID    string
	Status      string
	ServiceCode string
	Month       string // YYYY-MM
	InvoiceID   string
	Page        int
	Limit       int
}

type BillingEventResponse struct {
	ID            string  `json:"id"`
	ClientID      string  `json:"client_id"`
	ServiceCode   string  `json:"service_code"`
	ReferenceType string  `json:"reference_type"`
	ReferenceID   string  `json:"reference_id"`
	EventDate     string  `json:"event_date"`
	Qty           string  `json:"qty"`
	BoxCount      int64   `json:"box_count"`
	PricingPolicy string  `json:"pricing_policy"`
	UnitPrice     string  `json:"unit_price"`
	AmountTHB     *string `json:"amount_thb"`
	AmountKRW     *string `json:"amount_krw"`
	FxRateUsed    *string `json:"fx_rate_used"`
	InvoicedKRW   *string `json:"invoiced_krw"`
	Status        string  `json:"status"`
	InvoiceID     *string `json:"invoice_id"`
}

// --- Interface ---

type BillingEventService interface {
	// UpsertEventFromMovement stores the billing event of a movement. It
	// returns nil, nil when the client has no price in force for the service.
	UpsertEventFromMovement(ctx context.Context, usage MovementUsage) (*model.BillingEvent, error)
	// SoftDeleteEventFromMovement tombstones the movement's event, if any.
	SoftDeleteEventFromMovement(ctx context.Context, movementID uuid.UUID) error
	RecordServiceUsage(ctx context.Context, req RecordUsageRequest, actorID uuid.UUID) (*model.BillingEvent, error)
	DeleteServiceUsage(ctx context.Context, id string, actorID uuid.UUID) error
	// UnmarkEvent returns an INVOICED event to PENDING when its invoice is a
	// draft or no longer active. A draft is discarded and all its events released.
	UnmarkEvent(ctx context.Context, id string, actorID uuid.UUID) (*model.BillingEvent, error)
	ListBillingEvents(ctx context.Context, q BillingEventQuery) ([]BillingEventResponse, int64, error)
}

type billingEventService struct {
	eventRepo   repository.BillingEventRepository
	invoiceRepo repository.InvoiceRepository
	serviceRepo repository.ServiceRepository
	auditRepo   repository.AuditRepository
	prices      PriceService
	txManager   repository.TransactionManager
	obs         Observers
}

func NewBillingEventService(
	eventRepo repository.BillingEventRepository,
	invoiceRepo repository.InvoiceRepository,
	serviceRepo repository.ServiceRepository,
	auditRepo repository.AuditRepository,
	prices PriceService,
	txManager repository.TransactionManager,
	obs Observers,
) BillingEventService {
	return &billingEventService{
		eventRepo:   eventRepo,
		invoiceRepo: invoiceRepo,
		serviceRepo: serviceRepo,
		auditRepo:   auditRepo,
		prices:      prices,
		txManager:   txManager,
		obs:         obs.withDefaults(),
	}
}

type eventDraft struct {
	refType   string
	refID     string
	clientID  uuid.UUID
	service   model.BillableService
	policy    model.PricingPolicy
	unitPrice decimal.Decimal
	amount    decimal.Decimal
	date      time.Time
	qty       decimal.Decimal
	boxCount  int64
	actorID   uuid.UUID
}

// storeEvent is the find-or-create-or-reactivate step keyed by the event reference.
func (s *billingEventService) storeEvent(ctx context.Context, d eventDraft) (*model.BillingEvent, error) {
	event, err := s.eventRepo.FindByReferenceForUpdate(ctx, d.refType, d.refID)
	if err != nil {
		return nil, apperror.FromStorage("billing event", err)
	}
	if event != nil && event.IsActive() && event.Status == model.BillingEventInvoiced {
		return nil, apperror.InvalidState(apperror.CodeEventAlreadyInvoiced, "billing event is already invoiced")
	}

	isNew := event == nil
	if isNew {
		event = &model.BillingEvent{
			ReferenceType: d.refType,
			ReferenceID:   d.refID,
			CreatedBy:     d.actorID,
		}
	}
	event.ClientID = d.clientID
	event.ServiceID = d.service.ID
	event.ServiceCode = d.service.Code
	event.EventDate = dateOnly(d.date)
	event.Qty = d.qty
	event.BoxCount = d.boxCount
	event.PricingPolicy = d.policy
	event.UnitPrice = d.unitPrice
	event.SetAmount(d.amount)
	event.Release()
	event.Reactivate()

	if isNew {
		err = s.eventRepo.Create(ctx, event)
	} else {
		err = s.eventRepo.Save(ctx, event)
	}
	if err != nil {
		return nil, apperror.FromStorage("billing event", err)
	}
	s.obs.Metrics.EventStored()
	return event, nil
}

// --- Implementation ---

func (s *billingEventService) UpsertEventFromMovement(ctx context.Context, usage MovementUsage) (*model.BillingEvent, error) {
	if err := requireActor(usage.ActorID); err != nil {
		return nil, err
	}
	if usage.MovementID == uuid.Nil || usage.ClientID == uuid.Nil {
		return nil, apperror.Validation("movement and client are required")
	}

	resolved, err := s.prices.ResolveActivePrice(ctx, usage.ClientID, usage.ServiceCode, usage.EventDate)
	if err != nil && apperror.KindOf(err) != apperror.KindNotFound {
		return nil, err
	}
	// an unknown service code bills nothing, same as an unpriced one
	if resolved == nil {
		s.obs.Log.Sugar().Debugf("no active price for client %s service %s, movement %s not billed",
			usage.ClientID, usage.ServiceCode, usage.MovementID)
		return nil, nil
	}

	var event *model.BillingEvent
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var storeErr error
		event, storeErr = s.storeEvent(txCtx, eventDraft{
			refType:   model.EventRefStockTransaction,
			refID:     usage.MovementID.String(),
			clientID:  usage.ClientID,
			service:   resolved.Service,
			policy:    resolved.Policy.PricingPolicy,
			unitPrice: resolved.Policy.UnitPrice,
			amount:    ComputeAmount(resolved.Policy.UnitPrice, resolved.Service.BillingBasis, usage.Qty, usage.BoxCount),
			date:      usage.EventDate,
			qty:       usage.Qty,
			boxCount:  usage.BoxCount,
			actorID:   usage.ActorID,
		})
		return storeErr
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (s *billingEventService) SoftDeleteEventFromMovement(ctx context.Context, movementID uuid.UUID) error {
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		event, err := s.eventRepo.FindByReferenceForUpdate(txCtx, model.EventRefStockTransaction, movementID.String())
		if err != nil {
			return apperror.FromStorage("billing event", err)
		}
		return s.tombstone(txCtx, event)
	})
}

func (s *billingEventService) tombstone(ctx context.Context, event *model.BillingEvent) error {
	if event == nil || !event.IsActive() {
		return nil
	}
	if event.Status == model.BillingEventInvoiced {
		return apperror.InvalidState(apperror.CodeEventAlreadyInvoiced, "billing event is already invoiced")
	}
	event.Tombstone(time.Now().UTC())
	return apperror.FromStorage("billing event", s.eventRepo.Save(ctx, event))
}

func (s *billingEventService) RecordServiceUsage(ctx context.Context, req RecordUsageRequest, actorID uuid.UUID) (*model.BillingEvent, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	clientID, err := parseID("client_id", req.ClientID)
	if err != nil {
		return nil, err
	}
	eventDate, err := parseDate("event_date", req.EventDate)
	if err != nil {
		return nil, err
	}
	qty := decimal.Zero
	if req.Qty != "" {
		if qty, err = decimal.NewFromString(req.Qty); err != nil || qty.IsNegative() {
			return nil, apperror.Validation("qty must be a non-negative decimal")
		}
	}
	if req.BoxCount < 0 {
		return nil, apperror.Validation("box_count must not be negative")
	}
	refID := strings.TrimSpace(req.ReferenceID)
	if refID == "" {
		refID = uuid.NewString()
	}

	draft := eventDraft{
		refType:  model.EventRefManual,
		refID:    refID,
		clientID: clientID,
		date:     eventDate,
		qty:      qty,
		boxCount: req.BoxCount,
		actorID:  actorID,
	}

	code := strings.ToUpper(strings.TrimSpace(req.ServiceCode))
	if req.ManualAmount != "" {
		amount, err := decimal.NewFromString(req.ManualAmount)
		if err != nil || amount.IsNegative() {
			return nil, apperror.Validation("manual_amount must be a non-negative decimal")
		}
		policy := model.PricingPolicy(req.PricingPolicy)
		if !policy.Valid() {
			return nil, apperror.Validation("pricing_policy is required with manual_amount")
		}
		svc, err := s.serviceRepo.FindByCode(ctx, code)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("billable service " + code)
		}
		if err != nil {
			return nil, apperror.FromStorage("billable service", err)
		}
		draft.service = *svc
		draft.policy = policy
		draft.unitPrice = Round4(amount)
		draft.amount = Round4(amount)
	} else {
		resolved, err := s.prices.ResolveActivePrice(ctx, clientID, code, eventDate)
		if err != nil {
			return nil, err
		}
		if resolved == nil {
			return nil, apperror.Precondition(apperror.CodeNoActivePrice, "no active price policy for "+code)
		}
		draft.service = resolved.Service
		draft.policy = resolved.Policy.PricingPolicy
		draft.unitPrice = resolved.Policy.UnitPrice
		draft.amount = ComputeAmount(resolved.Policy.UnitPrice, resolved.Service.BillingBasis, qty, req.BoxCount)
	}

	var event *model.BillingEvent
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var storeErr error
		if event, storeErr = s.storeEvent(txCtx, draft); storeErr != nil {
			return storeErr
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionRecordUsage, "billing_event", event.ID.String(), req)
	})
	if err != nil {
		return nil, s.obs.fail("billing.record_usage", err)
	}
	return event, nil
}

func (s *billingEventService) DeleteServiceUsage(ctx context.Context, id string, actorID uuid.UUID) error {
	if err := requireActor(actorID); err != nil {
		return err
	}
	eventID, err := parseID("event id", id)
	if err != nil {
		return err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		event, err := s.eventRepo.FindByIDForUpdate(txCtx, eventID)
		if err != nil {
			return apperror.FromStorage("billing event", err)
		}
		if event.ReferenceType != model.EventRefManual {
			return apperror.Validation("only manually recorded usage can be deleted, reverse the stock movement instead")
		}
		if err := s.tombstone(txCtx, event); err != nil {
			return err
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionDeleteUsage, "billing_event", event.ID.String(), nil)
	})
	return s.obs.fail("billing.delete_usage", err)
}

func (s *billingEventService) UnmarkEvent(ctx context.Context, id string, actorID uuid.UUID) (*model.BillingEvent, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	eventID, err := parseID("event id", id)
	if err != nil {
		return nil, err
	}

	var event *model.BillingEvent
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		seen, err := s.eventRepo.FindByID(txCtx, eventID)
		if err != nil {
			return apperror.FromStorage("billing event", err)
		}

		// the owning invoice ranks before the event, so lock it first
		previous := seen.InvoiceID
		var draft *model.Invoice
		if previous != nil {
			invoice, err := s.invoiceRepo.FindByIDForUpdate(txCtx, *previous)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.FromStorage("invoice", err)
			}
			if invoice != nil {
				if invoice.Status != model.InvoiceDraft {
					return apperror.InvalidState(apperror.CodeEventAlreadyInvoiced,
						"billing event belongs to "+string(invoice.Status)+" invoice "+invoice.InvoiceNo)
				}
				draft = invoice
			}
		}

		event, err = s.eventRepo.FindByIDForUpdate(txCtx, eventID)
		if err != nil {
			return apperror.FromStorage("billing event", err)
		}
		if !event.Status.CanTransitionTo(model.BillingEventPending) {
			return apperror.InvalidState(apperror.CodeInvalidStatus, "billing event is not invoiced")
		}
		if !sameInvoice(previous, event.InvoiceID) {
			return apperror.Conflict(apperror.CodeRetryableConflict, "billing event changed invoice, retry the request")
		}

		released := int64(1)
		if draft != nil {
			// the draft is discarded whole and every event on it released
			if released, err = s.eventRepo.ReleaseByInvoice(txCtx, draft.ID); err != nil {
				return apperror.FromStorage("billing event", err)
			}
			now := time.Now().UTC()
			if err := s.invoiceRepo.TombstoneItems(txCtx, draft.ID, now); err != nil {
				return apperror.FromStorage("invoice item", err)
			}
			if err := s.invoiceRepo.Tombstone(txCtx, draft.ID, now); err != nil {
				return apperror.FromStorage("invoice", err)
			}
			event.Release()
		} else {
			event.Release()
			if err := s.eventRepo.Save(txCtx, event); err != nil {
				return apperror.FromStorage("billing event", err)
			}
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionUnmarkEvent, "billing_event", event.ID.String(),
			map[string]interface{}{"invoice_id": previous, "draft_discarded": draft != nil, "released": released})
	})
	if err != nil {
		return nil, s.obs.fail("billing.unmark_event", err)
	}
	return event, nil
}

func (s *billingEventService) ListBillingEvents(ctx context.Context, q BillingEventQuery) ([]BillingEventResponse, int64, error) {
	p := pagination.New(q.Page, q.Limit)
	q.Page, q.Limit = p.Page, p.Limit

	filter := repository.BillingEventFilter{
		Status:      model.BillingEventStatus(strings.ToUpper(q.Status)),
		ServiceCode: strings.ToUpper(q.ServiceCode),
		Page:        q.Page,
		Limit:       q.Limit,
	}
	var err error
	if filter.ClientID, err = parseOptionalID("client_id", q.ClientID); err != nil {
		return nil, 0, err
	}
	if filter.InvoiceID, err = parseOptionalID("invoice_id", q.InvoiceID); err != nil {
		return nil, 0, err
	}
	if q.Month != "" {
		month, err := ParseBillingMonth(q.Month)
		if err != nil {
			return nil, 0, err
		}
		from, to := month.Start, month.Next()
		filter.From, filter.To = &from, &to
	}

	events, total, err := s.eventRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, apperror.FromStorage("billing event", err)
	}
	res := make([]BillingEventResponse, 0, len(events))
	for _, e := range events {
		res = append(res, ToBillingEventResponse(e))
	}
	return res, total, nil
}

// --- Mapping ---

func optionalDecimal(v decimal.NullDecimal) *string {
	if !v.Valid {
		return nil
	}
	s := v.Decimal.String()
	return &s
}

func optionalID(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func ToBillingEventResponse(e model.BillingEvent) BillingEventResponse {
	return BillingEventResponse{
		ID:            e.ID.String(),
		ClientID:      e.ClientID.String(),
		ServiceCode:   e.ServiceCode,
		ReferenceType: e.ReferenceType,
		ReferenceID:   e.ReferenceID,
		EventDate:     e.EventDate.Format("2006-01-02"),
		Qty:           e.Qty.String(),
		BoxCount:      e.BoxCount,
		PricingPolicy: string(e.PricingPolicy),
		UnitPrice:     e.UnitPrice.String(),
		AmountTHB:     optionalDecimal(e.AmountTHB),
		AmountKRW:     optionalDecimal(e.AmountKRW),
		FxRateUsed:    optionalDecimal(e.FxRateUsed),
		InvoicedKRW:   optionalDecimal(e.InvoicedKRW),
		Status:        string(e.Status),
		InvoiceID:     optionalID(e.InvoiceID),
	}
}

func sameInvoice(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
