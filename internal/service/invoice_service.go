package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"warehouse-billing/internal/model"
	"warehouse-billing/internal/repository"
	"warehouse-billing/pkg/apperror"
	"warehouse-billing/pkg/pagination"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- DTOs ---

type GenerateInvoiceRequest struct {
	ClientID    string `json:"client_id" binding:"required"`
	Month       string `json:"month" binding:"required"` // YYYY-MM
	InvoiceDate string `json:"invoice_date"`             // YYYY-MM-DD, defaults to the last day of the month
	Regenerate  bool   `json:"regenerate"`
}

type InvoiceQuery struct {
	ClientID string
	Month    string
	Status   string
	Page     int
	Limit    int
}

type InvoiceItemResponse struct {
	ID          string `json:"id"`
	ItemType    string `json:"item_type"`
	ServiceCode string `json:"service_code"`
	Description string `json:"description"`
	Qty         string `json:"qty"`
	UnitPrice   string `json:"unit_price"`
	Amount      string `json:"amount"`
}

type InvoiceResponse struct {
	ID                string                `json:"id"`
	InvoiceNo         string                `json:"invoice_no"`
	ClientID          string                `json:"client_id"`
	BillingMonth      string                `json:"billing_month"`
	Origin            string                `json:"origin"`
	Currency          string                `json:"currency"`
	Status            string                `json:"status"`
	InvoiceDate       string                `json:"invoice_date"`
	ExchangeRateID    *string               `json:"exchange_rate_id"`
	FxRate            *string               `json:"fx_rate"`
	VATRate           string                `json:"vat_rate"`
	Subtotal          string                `json:"subtotal"`
	VAT               string                `json:"vat"`
	Total             string                `json:"total"`
	SettlementBatchID *string               `json:"settlement_batch_id"`
	DuplicatedFromID  *string               `json:"duplicated_from_id"`
	IssuedAt          *string               `json:"issued_at"`
	PaidAt            *string               `json:"paid_at"`
	CreatedAt         string                `json:"created_at"`
	Items             []InvoiceItemResponse `json:"items,omitempty"`
}

// --- Interface ---

type InvoiceService interface {
	// Generate aggregates the client's PENDING events of the month into a
	// draft invoice. An existing draft is returned unchanged unless
	// Regenerate is set; a non-draft invoice blocks generation.
	Generate(ctx context.Context, req GenerateInvoiceRequest, actorID uuid.UUID) (*model.Invoice, error)
	Issue(ctx context.Context, id string, actorID uuid.UUID) (*model.Invoice, error)
	MarkPaid(ctx context.Context, id string, actorID uuid.UUID) (*model.Invoice, error)
	// Duplicate copies an invoice into a new draft with a fresh number.
	Duplicate(ctx context.Context, id string, actorID uuid.UUID) (*model.Invoice, error)
	Get(ctx context.Context, id string) (*model.Invoice, error)
	List(ctx context.Context, q InvoiceQuery) ([]InvoiceResponse, int64, error)
}

type invoiceService struct {
	builder   *invoiceBuilder
	eventRepo repository.BillingEventRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	obs       Observers
}

func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	eventRepo repository.BillingEventRepository,
	seqRepo repository.SequenceRepository,
	rateRepo repository.ExchangeRateRepository,
	auditRepo repository.AuditRepository,
	taxes TaxService,
	txManager repository.TransactionManager,
	settings InvoiceSettings,
	obs Observers,
) InvoiceService {
	return &invoiceService{
		builder: &invoiceBuilder{
			invoiceRepo: invoiceRepo,
			seqRepo:     seqRepo,
			rateRepo:    rateRepo,
			taxes:       taxes,
			settings:    settings.withDefaults(),
		},
		eventRepo: eventRepo,
		auditRepo: auditRepo,
		txManager: txManager,
		obs:       obs.withDefaults(),
	}
}

// normalizeToKRW converts an event amount into invoice currency, truncated to 100.
func normalizeToKRW(e model.BillingEvent, fx decimal.Decimal) decimal.Decimal {
	if e.PricingPolicy == model.PricingTHBBased {
		return Trunc100(nullOrZero(e.AmountTHB).Mul(fx))
	}
	return Trunc100(nullOrZero(e.AmountKRW))
}

type serviceGroup struct {
	qty    decimal.Decimal
	amount decimal.Decimal
	events int
}

// --- Implementation ---

func (s *invoiceService) Generate(ctx context.Context, req GenerateInvoiceRequest, actorID uuid.UUID) (*model.Invoice, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	clientID, err := parseID("client_id", req.ClientID)
	if err != nil {
		return nil, err
	}
	month, err := ParseBillingMonth(req.Month)
	if err != nil {
		return nil, err
	}
	invoiceDate := month.LastDay()
	if req.InvoiceDate != "" {
		if invoiceDate, err = parseDate("invoice_date", req.InvoiceDate); err != nil {
			return nil, err
		}
	}

	var (
		invoice *model.Invoice
		reused  bool
	)
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.builder.invoiceRepo.LockGenerationSlot(txCtx, clientID, month.String()); err != nil {
			return apperror.FromStorage("invoice generation slot", err)
		}
		existing, err := s.builder.invoiceRepo.FindGeneratedForUpdate(txCtx, clientID, month.String())
		if err != nil {
			return apperror.FromStorage("invoice", err)
		}
		if existing != nil {
			if existing.Status != model.InvoiceDraft {
				return apperror.InvalidState(apperror.CodeInvoiceIssued,
					fmt.Sprintf("invoice %s is %s, duplicate it to produce a new draft", existing.InvoiceNo, existing.Status))
			}
			if !req.Regenerate {
				invoice, reused = existing, true
				return nil
			}
			if err := s.discardDraft(txCtx, existing); err != nil {
				return err
			}
		}

		rate, err := s.builder.lockRate(txCtx, invoiceDate)
		if err != nil {
			return err
		}
		number, err := s.builder.nextNumber(txCtx, clientID, month)
		if err != nil {
			return err
		}
		events, err := s.eventRepo.LockPendingInRange(txCtx, clientID, month.Start, month.Next())
		if err != nil {
			return apperror.FromStorage("billing event", err)
		}
		if len(events) == 0 {
			return apperror.Precondition(apperror.CodeNoPendingEvents,
				fmt.Sprintf("no pending billing events for client %s in %s", clientID, month))
		}

		invoice = s.builder.newDraft(number, clientID, month, invoiceDate, model.InvoiceOriginGenerated, rate, actorID)
		if err := s.builder.insert(txCtx, invoice); err != nil {
			if apperror.CodeOf(err) == apperror.CodeConflict {
				return apperror.Wrap(apperror.KindConflict, apperror.CodeRetryableConflict,
					"invoice for this client and month is being generated concurrently, retry the request", err)
			}
			return err
		}

		groups := make(map[string]*serviceGroup)
		for i := range events {
			e := &events[i]
			amount := normalizeToKRW(*e, rate.Rate)
			e.Status = model.BillingEventInvoiced
			e.InvoiceID = &invoice.ID
			e.FxRateUsed = decimal.NewNullDecimal(rate.Rate)
			e.InvoicedKRW = decimal.NewNullDecimal(amount)
			if err := s.eventRepo.Save(txCtx, e); err != nil {
				return apperror.FromStorage("billing event", err)
			}

			g, ok := groups[e.ServiceCode]
			if !ok {
				g = &serviceGroup{qty: decimal.Zero, amount: decimal.Zero}
				groups[e.ServiceCode] = g
			}
			g.qty = g.qty.Add(e.Qty)
			g.amount = g.amount.Add(amount)
			g.events++
		}

		codes := make([]string, 0, len(groups))
		for code := range groups {
			codes = append(codes, code)
		}
		sort.Strings(codes)

		lines := make([]model.InvoiceItem, 0, len(codes))
		for _, code := range codes {
			g := groups[code]
			amount := Trunc100(g.amount)
			lines = append(lines, model.InvoiceItem{
				ItemType:    model.InvoiceItemService,
				ServiceCode: code,
				Description: fmt.Sprintf("%s (%d events)", code, g.events),
				Qty:         g.qty,
				UnitPrice:   displayUnitPrice(amount, g.qty),
				Amount:      amount,
			})
		}
		if err := s.builder.finalize(txCtx, invoice, lines); err != nil {
			return err
		}

		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionGenerateInvoice, "invoice", invoice.ID.String(),
			map[string]interface{}{
				"invoice_no": invoice.InvoiceNo,
				"month":      month.String(),
				"events":     len(events),
				"fx_rate":    rate.Rate.String(),
				"total":      invoice.Total.String(),
				"regenerate": req.Regenerate,
			})
	})
	if err != nil {
		return nil, s.obs.fail("invoice.generate", err)
	}

	if reused {
		return s.load(ctx, invoice.ID)
	}

	s.obs.Metrics.InvoiceGenerated(string(model.InvoiceOriginGenerated))
	s.obs.Log.Info("invoice generated",
		zap.String("invoice_no", invoice.InvoiceNo),
		zap.String("client_id", clientID.String()),
		zap.String("month", month.String()),
		zap.String("total", invoice.Total.String()),
	)
	s.obs.Notifier.Publish(EventInvoiceGenerated, ToInvoiceResponse(*invoice))
	return invoice, nil
}

// discardDraft releases the draft's events and tombstones its rows.
func (s *invoiceService) discardDraft(ctx context.Context, draft *model.Invoice) error {
	if _, err := s.eventRepo.ReleaseByInvoice(ctx, draft.ID); err != nil {
		return apperror.FromStorage("billing event", err)
	}
	now := time.Now().UTC()
	if err := s.builder.invoiceRepo.TombstoneItems(ctx, draft.ID, now); err != nil {
		return apperror.FromStorage("invoice item", err)
	}
	if err := s.builder.invoiceRepo.Tombstone(ctx, draft.ID, now); err != nil {
		return apperror.FromStorage("invoice", err)
	}
	return nil
}

func (s *invoiceService) Issue(ctx context.Context, id string, actorID uuid.UUID) (*model.Invoice, error) {
	inv, err := s.transition(ctx, id, actorID, model.InvoiceDraft, model.InvoiceIssued, model.ActionIssueInvoice)
	if err != nil {
		return nil, s.obs.fail("invoice.issue", err)
	}
	s.obs.Notifier.Publish(EventInvoiceIssued, ToInvoiceResponse(*inv))
	return inv, nil
}

func (s *invoiceService) MarkPaid(ctx context.Context, id string, actorID uuid.UUID) (*model.Invoice, error) {
	inv, err := s.transition(ctx, id, actorID, model.InvoiceIssued, model.InvoicePaid, model.ActionMarkInvoicePaid)
	if err != nil {
		return nil, s.obs.fail("invoice.mark_paid", err)
	}
	s.obs.Notifier.Publish(EventInvoicePaid, ToInvoiceResponse(*inv))
	return inv, nil
}

// transition moves a locked invoice from exactly `from` to `to`.
func (s *invoiceService) transition(ctx context.Context, id string, actorID uuid.UUID, from, to model.InvoiceStatus, action string) (*model.Invoice, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	invoiceID, err := parseID("invoice id", id)
	if err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		inv, err := s.builder.invoiceRepo.FindByIDForUpdate(txCtx, invoiceID)
		if err != nil {
			return apperror.FromStorage("invoice", err)
		}
		if inv.Status != from || !inv.Status.CanTransitionTo(to) {
			return apperror.InvalidState(apperror.CodeInvalidStatus,
				fmt.Sprintf("invoice %s is %s, expected %s", inv.InvoiceNo, inv.Status, from))
		}

		now := time.Now().UTC()
		inv.Status = to
		switch to {
		case model.InvoiceIssued:
			inv.IssuedBy, inv.IssuedAt = &actorID, &now
		case model.InvoicePaid:
			inv.PaidBy, inv.PaidAt = &actorID, &now
		}
		if err := s.builder.invoiceRepo.Save(txCtx, inv); err != nil {
			return apperror.FromStorage("invoice", err)
		}
		return writeAudit(txCtx, s.auditRepo, actorID, action, "invoice", inv.ID.String(),
			map[string]string{"from": string(from), "to": string(to)})
	})
	if err != nil {
		return nil, err
	}

	s.obs.Metrics.InvoiceTransition(string(from), string(to))
	s.obs.Log.Info("invoice transitioned", zap.String("invoice_id", id), zap.String("to", string(to)))
	return s.load(ctx, invoiceID)
}

func (s *invoiceService) Duplicate(ctx context.Context, id string, actorID uuid.UUID) (*model.Invoice, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	sourceID, err := parseID("invoice id", id)
	if err != nil {
		return nil, err
	}

	var copyInv *model.Invoice
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		src, err := s.builder.invoiceRepo.FindByIDForUpdate(txCtx, sourceID)
		if err != nil {
			return apperror.FromStorage("invoice", err)
		}
		items, err := s.builder.invoiceRepo.ListItems(txCtx, src.ID)
		if err != nil {
			return apperror.FromStorage("invoice item", err)
		}
		month, err := ParseBillingMonth(src.BillingMonth)
		if err != nil {
			return err
		}
		number, err := s.builder.nextNumber(txCtx, src.ClientID, month)
		if err != nil {
			return err
		}

		copyInv = &model.Invoice{
			InvoiceNo:         number,
			ClientID:          src.ClientID,
			BillingMonth:      src.BillingMonth,
			Origin:            model.InvoiceOriginDuplicate,
			Currency:          src.Currency,
			Status:            model.InvoiceDraft,
			InvoiceDate:       src.InvoiceDate,
			ExchangeRateID:    src.ExchangeRateID,
			FxBase:            src.FxBase,
			FxQuote:           src.FxQuote,
			FxRate:            src.FxRate,
			VATRate:           src.VATRate,
			Subtotal:          src.Subtotal,
			VAT:               src.VAT,
			Total:             src.Total,
			SettlementBatchID: nil,
			DuplicatedFromID:  &src.ID,
			CreatedBy:         actorID,
			Lifecycle:         model.ActiveLifecycle(),
		}
		if err := s.builder.invoiceRepo.Create(txCtx, copyInv); err != nil {
			return apperror.FromStorage("invoice", err)
		}

		copies := make([]model.InvoiceItem, 0, len(items))
		for _, it := range items {
			copies = append(copies, model.InvoiceItem{
				InvoiceID:        copyInv.ID,
				ItemType:         it.ItemType,
				ServiceCode:      it.ServiceCode,
				Description:      it.Description,
				Qty:              it.Qty,
				UnitPrice:        it.UnitPrice,
				Amount:           it.Amount,
				SettlementLineID: it.SettlementLineID,
				Lifecycle:        model.ActiveLifecycle(),
			})
		}
		if err := s.builder.invoiceRepo.CreateItems(txCtx, copies); err != nil {
			return apperror.FromStorage("invoice item", err)
		}
		copyInv.Items = copies

		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionDuplicateInvoice, "invoice", copyInv.ID.String(),
			map[string]string{"source_id": src.ID.String(), "source_no": src.InvoiceNo})
	})
	if err != nil {
		return nil, s.obs.fail("invoice.duplicate", err)
	}

	s.obs.Metrics.InvoiceGenerated(string(model.InvoiceOriginDuplicate))
	return copyInv, nil
}

func (s *invoiceService) load(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	inv, err := s.builder.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.FromStorage("invoice", err)
	}
	return inv, nil
}

func (s *invoiceService) Get(ctx context.Context, id string) (*model.Invoice, error) {
	invoiceID, err := parseID("invoice id", id)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, invoiceID)
}

func (s *invoiceService) List(ctx context.Context, q InvoiceQuery) ([]InvoiceResponse, int64, error) {
	p := pagination.New(q.Page, q.Limit)
	q.Page, q.Limit = p.Page, p.Limit

	filter := repository.InvoiceFilter{
		Status: model.InvoiceStatus(strings.ToLower(q.Status)),
		Page:   q.Page,
		Limit:  q.Limit,
	}
	var err error
	if filter.ClientID, err = parseOptionalID("client_id", q.ClientID); err != nil {
		return nil, 0, err
	}
	if q.Month != "" {
		month, err := ParseBillingMonth(q.Month)
		if err != nil {
			return nil, 0, err
		}
		filter.BillingMonth = month.String()
	}

	invoices, total, err := s.builder.invoiceRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, apperror.FromStorage("invoice", err)
	}
	res := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		res = append(res, ToInvoiceResponse(inv))
	}
	return res, total, nil
}

// --- Mapping ---

func optionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func ToInvoiceResponse(inv model.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:                inv.ID.String(),
		InvoiceNo:         inv.InvoiceNo,
		ClientID:          inv.ClientID.String(),
		BillingMonth:      inv.BillingMonth,
		Origin:            string(inv.Origin),
		Currency:          inv.Currency,
		Status:            string(inv.Status),
		InvoiceDate:       inv.InvoiceDate.Format("2006-01-02"),
		ExchangeRateID:    optionalID(inv.ExchangeRateID),
		FxRate:            optionalDecimal(inv.FxRate),
		VATRate:           inv.VATRate.String(),
		Subtotal:          inv.Subtotal.String(),
		VAT:               inv.VAT.String(),
		Total:             inv.Total.String(),
		SettlementBatchID: optionalID(inv.SettlementBatchID),
		DuplicatedFromID:  optionalID(inv.DuplicatedFromID),
		IssuedAt:          optionalTime(inv.IssuedAt),
		PaidAt:            optionalTime(inv.PaidAt),
		CreatedAt:         inv.CreatedAt.Format(time.RFC3339),
	}
	for _, it := range inv.Items {
		resp.Items = append(resp.Items, InvoiceItemResponse{
			ID:          it.ID.String(),
			ItemType:    string(it.ItemType),
			ServiceCode: it.ServiceCode,
			Description: it.Description,
			Qty:         it.Qty.String(),
			UnitPrice:   it.UnitPrice.String(),
			Amount:      it.Amount.String(),
		})
	}
	return resp
}
