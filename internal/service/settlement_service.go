package service

import (
	"context"
	"fmt"
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

type GenerateSettlementRequest struct {
	ClientID string `json:"client_id" binding:"required"`
	Month    string `json:"month" binding:"required"` // YYYY-MM
}

type ReopenRequestInput struct {
	Reason string `json:"reason" binding:"required"`
}

type ReopenDecisionInput struct {
	Note string `json:"note"`
}

type SettlementQuery struct {
	ClientID string
	Status   string
	Page     int
	Limit    int
}

type SettlementLineResponse struct {
	ID             string `json:"id"`
	BillingEventID string `json:"billing_event_id"`
	ServiceCode    string `json:"service_code"`
	EventDate      string `json:"event_date"`
	Qty            string `json:"qty"`
	Currency       string `json:"currency"`
	Amount         string `json:"amount"`
}

type ReopenRequestResponse struct {
	ID           string  `json:"id"`
	BatchID      string  `json:"batch_id"`
	Status       string  `json:"status"`
	Reason       string  `json:"reason"`
	RequestedBy  string  `json:"requested_by"`
	DecidedBy    *string `json:"decided_by"`
	DecidedAt    *string `json:"decided_at"`
	DecisionNote string  `json:"decision_note"`
	CreatedAt    string  `json:"created_at"`
}

type SettlementLogResponse struct {
	Action    string  `json:"action"`
	ActorID   string  `json:"actor_id"`
	RequestID *string `json:"request_id"`
	Reason    string  `json:"reason"`
	CreatedAt string  `json:"created_at"`
}

type SettlementBatchResponse struct {
	ID             string                   `json:"id"`
	ClientID       string                   `json:"client_id"`
	BillingMonth   string                   `json:"billing_month"`
	Status         string                   `json:"status"`
	ExchangeRateID *string                  `json:"exchange_rate_id"`
	FxRate         string                   `json:"fx_rate"`
	SubtotalKRW    string                   `json:"subtotal_krw"`
	SubtotalTHB    string                   `json:"subtotal_thb"`
	TotalKRW       string                   `json:"total_krw"`
	LineCount      int                      `json:"line_count"`
	ClosedAt       *string                  `json:"closed_at"`
	ClosedBy       *string                  `json:"closed_by"`
	Lines          []SettlementLineResponse `json:"lines,omitempty"`
	Requests       []ReopenRequestResponse  `json:"reopen_requests,omitempty"`
	Logs           []SettlementLogResponse  `json:"logs,omitempty"`
}

// --- Interface ---

type SettlementService interface {
	// Generate rebuilds the batch of (client, month) from the active
	// service events and leaves it reviewed.
	Generate(ctx context.Context, req GenerateSettlementRequest, actorID uuid.UUID) (*model.SettlementBatch, error)
	// IssueInvoice converts a reviewed or closed batch into a draft invoice.
	// Calling it again returns the same invoice.
	IssueInvoice(ctx context.Context, batchID string, actorID uuid.UUID) (*model.Invoice, error)
	Close(ctx context.Context, batchID string, actorID uuid.UUID) (*model.SettlementBatch, error)
	RequestReopen(ctx context.Context, batchID string, in ReopenRequestInput, actorID uuid.UUID) (*model.SettlementReopenRequest, error)
	ApproveReopen(ctx context.Context, requestID string, in ReopenDecisionInput, actorID uuid.UUID) (*model.SettlementBatch, error)
	RejectReopen(ctx context.Context, requestID string, in ReopenDecisionInput, actorID uuid.UUID) (*model.SettlementReopenRequest, error)
	GetBatch(ctx context.Context, batchID string) (*SettlementBatchResponse, error)
	ListBatches(ctx context.Context, q SettlementQuery) ([]SettlementBatchResponse, int64, error)
}

type settlementService struct {
	repo      repository.SettlementRepository
	eventRepo repository.BillingEventRepository
	builder   *invoiceBuilder
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	obs       Observers
}

func NewSettlementService(
	repo repository.SettlementRepository,
	eventRepo repository.BillingEventRepository,
	invoiceRepo repository.InvoiceRepository,
	seqRepo repository.SequenceRepository,
	rateRepo repository.ExchangeRateRepository,
	auditRepo repository.AuditRepository,
	taxes TaxService,
	txManager repository.TransactionManager,
	settings InvoiceSettings,
	obs Observers,
) SettlementService {
	return &settlementService{
		repo:      repo,
		eventRepo: eventRepo,
		builder: &invoiceBuilder{
			invoiceRepo: invoiceRepo,
			seqRepo:     seqRepo,
			rateRepo:    rateRepo,
			taxes:       taxes,
			settings:    settings.withDefaults(),
		},
		auditRepo: auditRepo,
		txManager: txManager,
		obs:       obs.withDefaults(),
	}
}

func (s *settlementService) appendLog(ctx context.Context, batchID uuid.UUID, requestID *uuid.UUID, action string, actorID uuid.UUID, reason string) error {
	return apperror.FromStorage("settlement log", s.repo.AppendLog(ctx, &model.SettlementReopenLog{
		BatchID:   batchID,
		RequestID: requestID,
		Action:    action,
		ActorID:   actorID,
		Reason:    reason,
	}))
}

// --- Implementation ---

func (s *settlementService) Generate(ctx context.Context, req GenerateSettlementRequest, actorID uuid.UUID) (*model.SettlementBatch, error) {
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

	settings := s.builder.settings
	rate, err := s.builder.rateRepo.FindOnOrBefore(ctx, settings.FxBase, settings.FxQuote, month.LastDay())
	if err != nil {
		return nil, s.obs.fail("settlement.generate", apperror.FromStorage("exchange rate", err))
	}
	if rate == nil {
		return nil, s.obs.fail("settlement.generate", apperror.Precondition(apperror.CodeFXNotFound,
			fmt.Sprintf("no active %s/%s rate on or before %s", settings.FxBase, settings.FxQuote, month.LastDay().Format("2006-01-02"))))
	}

	var batch *model.SettlementBatch
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		batch, err = s.repo.FindBatchForUpdate(txCtx, clientID, month.String())
		if err != nil {
			return apperror.FromStorage("settlement batch", err)
		}

		if batch == nil {
			batch = &model.SettlementBatch{
				ClientID:     clientID,
				BillingMonth: month.String(),
				Status:       model.SettlementCalculating,
				CreatedBy:    actorID,
			}
			if err := s.repo.CreateBatch(txCtx, batch); err != nil {
				if apperror.CodeOf(apperror.FromStorage("settlement batch", err)) == apperror.CodeConflict {
					return apperror.Wrap(apperror.KindConflict, apperror.CodeRetryableConflict,
						"settlement batch is being generated concurrently, retry the request", err)
				}
				return apperror.FromStorage("settlement batch", err)
			}
		} else {
			if batch.Status == model.SettlementClosed {
				return apperror.InvalidState(apperror.CodeAlreadyClosed, "settlement batch is closed, request a reopen first")
			}
			invoiced, err := s.builder.invoiceRepo.ExistsActiveForBatch(txCtx, batch.ID)
			if err != nil {
				return apperror.FromStorage("invoice", err)
			}
			if invoiced {
				return apperror.InvalidState(apperror.CodeBatchInvoiced, "settlement batch already has an invoice")
			}
			batch.Status = model.SettlementCalculating
			if err := s.repo.DeleteLines(txCtx, batch.ID); err != nil {
				return apperror.FromStorage("settlement line", err)
			}
		}

		events, err := s.eventRepo.ListActiveInRange(txCtx, clientID, month.Start, month.Next())
		if err != nil {
			return apperror.FromStorage("billing event", err)
		}

		subKRW, subTHB := decimal.Zero, decimal.Zero
		lines := make([]model.SettlementLine, 0, len(events))
		for _, e := range events {
			line := model.SettlementLine{
				BatchID:        batch.ID,
				BillingEventID: e.ID,
				ServiceCode:    e.ServiceCode,
				EventDate:      e.EventDate,
				Qty:            e.Qty,
			}
			if e.PricingPolicy == model.PricingTHBBased {
				line.Currency = model.CurrencyTHB
				line.Amount = nullOrZero(e.AmountTHB)
				subTHB = subTHB.Add(line.Amount)
			} else {
				line.Currency = model.CurrencyKRW
				line.Amount = nullOrZero(e.AmountKRW)
				subKRW = subKRW.Add(line.Amount)
			}
			lines = append(lines, line)
		}
		if len(lines) > 0 {
			if err := s.repo.CreateLines(txCtx, lines); err != nil {
				return apperror.FromStorage("settlement line", err)
			}
		}

		batch.ExchangeRateID = &rate.ID
		batch.FxRate = rate.Rate
		batch.SubtotalKRW = Round4(subKRW)
		batch.SubtotalTHB = Round4(subTHB)
		batch.TotalKRW = Round4(subKRW.Add(subTHB.Mul(rate.Rate)))
		batch.LineCount = len(lines)
		batch.Status = model.SettlementReviewed
		if err := s.repo.SaveBatch(txCtx, batch); err != nil {
			return apperror.FromStorage("settlement batch", err)
		}
		batch.Lines = lines

		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionGenerateBatch, "settlement_batch", batch.ID.String(),
			map[string]interface{}{
				"month":     month.String(),
				"lines":     len(lines),
				"fx_rate":   rate.Rate.String(),
				"total_krw": batch.TotalKRW.String(),
			})
	})
	if err != nil {
		return nil, s.obs.fail("settlement.generate", err)
	}

	s.obs.Metrics.SettlementAction("generate")
	s.obs.Log.Info("settlement batch generated",
		zap.String("batch_id", batch.ID.String()),
		zap.String("client_id", clientID.String()),
		zap.String("month", month.String()),
		zap.Int("lines", batch.LineCount),
		zap.String("total_krw", batch.TotalKRW.String()),
	)
	s.obs.Notifier.Publish(EventSettlementGenerated, ToSettlementBatchResponse(*batch))
	return batch, nil
}

func (s *settlementService) IssueInvoice(ctx context.Context, batchID string, actorID uuid.UUID) (*model.Invoice, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	id, err := parseID("batch id", batchID)
	if err != nil {
		return nil, err
	}

	var (
		invoice *model.Invoice
		reused  bool
	)
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		batch, err := s.repo.FindBatchByIDForUpdate(txCtx, id)
		if err != nil {
			return apperror.FromStorage("settlement batch", err)
		}
		if batch.Status != model.SettlementReviewed && batch.Status != model.SettlementClosed {
			return apperror.InvalidState(apperror.CodeInvalidStatus,
				"settlement batch is "+string(batch.Status)+", expected reviewed or closed")
		}

		existing, err := s.builder.invoiceRepo.FindActiveByBatchForUpdate(txCtx, batch.ID)
		if err != nil {
			return apperror.FromStorage("invoice", err)
		}
		if existing != nil {
			invoice, reused = existing, true
			return nil
		}

		if batch.ExchangeRateID == nil {
			return apperror.Precondition(apperror.CodeFXNotFound, "settlement batch has no exchange rate, regenerate it")
		}
		rate, err := s.builder.lockRateByID(txCtx, *batch.ExchangeRateID)
		if err != nil {
			return err
		}
		month, err := ParseBillingMonth(batch.BillingMonth)
		if err != nil {
			return err
		}
		batchLines, err := s.repo.ListLines(txCtx, batch.ID)
		if err != nil {
			return apperror.FromStorage("settlement line", err)
		}
		if len(batchLines) == 0 {
			return apperror.Precondition(apperror.CodeNoPendingEvents, "settlement batch has no lines")
		}
		number, err := s.builder.nextNumber(txCtx, batch.ClientID, month)
		if err != nil {
			return err
		}

		invoice = s.builder.newDraft(number, batch.ClientID, month, month.LastDay(), model.InvoiceOriginSettlement, rate, actorID)
		invoice.SettlementBatchID = &batch.ID
		if err := s.builder.insert(txCtx, invoice); err != nil {
			return err
		}

		events, err := s.lockLineEvents(txCtx, batchLines)
		if err != nil {
			return err
		}

		lines := make([]model.InvoiceItem, 0, len(batchLines))
		for _, l := range batchLines {
			amount := l.Amount
			if l.Currency == model.CurrencyTHB {
				amount = amount.Mul(rate.Rate)
			}
			amount = Trunc100(amount)

			e := events[l.BillingEventID]
			e.Status = model.BillingEventInvoiced
			e.InvoiceID = &invoice.ID
			e.FxRateUsed = decimal.NewNullDecimal(rate.Rate)
			e.InvoicedKRW = decimal.NewNullDecimal(amount)
			if err := s.eventRepo.Save(txCtx, e); err != nil {
				return apperror.FromStorage("billing event", err)
			}
			lineID := l.ID
			lines = append(lines, model.InvoiceItem{
				ItemType:         model.InvoiceItemSettlement,
				ServiceCode:      l.ServiceCode,
				Description:      fmt.Sprintf("%s %s", l.ServiceCode, l.EventDate.Format("2006-01-02")),
				Qty:              l.Qty,
				UnitPrice:        displayUnitPrice(amount, l.Qty),
				Amount:           amount,
				SettlementLineID: &lineID,
			})
		}
		if err := s.builder.finalize(txCtx, invoice, lines); err != nil {
			return err
		}

		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionIssueFromBatch, "invoice", invoice.ID.String(),
			map[string]string{"batch_id": batch.ID.String(), "invoice_no": invoice.InvoiceNo})
	})
	if err != nil {
		return nil, s.obs.fail("settlement.issue_invoice", err)
	}
	if reused {
		inv, err := s.builder.invoiceRepo.FindByID(ctx, invoice.ID)
		if err != nil {
			return nil, apperror.FromStorage("invoice", err)
		}
		return inv, nil
	}

	s.obs.Metrics.InvoiceGenerated(string(model.InvoiceOriginSettlement))
	s.obs.Log.Info("invoice issued from settlement batch",
		zap.String("batch_id", batchID),
		zap.String("invoice_no", invoice.InvoiceNo),
	)
	s.obs.Notifier.Publish(EventInvoiceGenerated, ToInvoiceResponse(*invoice))
	return invoice, nil
}

// lockLineEvents locks the source events of the batch lines. Every event must
// still be active and pending, so the monthly generator and the batch never
// bill the same event.
func (s *settlementService) lockLineEvents(ctx context.Context, lines []model.SettlementLine) (map[uuid.UUID]*model.BillingEvent, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.BillingEventID)
	}
	locked, err := s.eventRepo.LockByIDs(ctx, ids)
	if err != nil {
		return nil, apperror.FromStorage("billing event", err)
	}

	events := make(map[uuid.UUID]*model.BillingEvent, len(locked))
	for i := range locked {
		e := &locked[i]
		if e.Status != model.BillingEventPending {
			return nil, apperror.InvalidState(apperror.CodeEventAlreadyInvoiced,
				"billing event "+e.ID.String()+" is already invoiced, regenerate the settlement batch")
		}
		events[e.ID] = e
	}
	for _, id := range ids {
		if _, ok := events[id]; !ok {
			return nil, apperror.Precondition(apperror.CodeBatchStale,
				"billing event "+id.String()+" was removed, regenerate the settlement batch")
		}
	}
	return events, nil
}

func (s *settlementService) Close(ctx context.Context, batchID string, actorID uuid.UUID) (*model.SettlementBatch, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	id, err := parseID("batch id", batchID)
	if err != nil {
		return nil, err
	}

	var batch *model.SettlementBatch
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if batch, err = s.repo.FindBatchByIDForUpdate(txCtx, id); err != nil {
			return apperror.FromStorage("settlement batch", err)
		}
		switch batch.Status {
		case model.SettlementClosed:
			return apperror.InvalidState(apperror.CodeAlreadyClosed, "settlement batch is already closed")
		case model.SettlementReviewed:
		default:
			return apperror.InvalidState(apperror.CodeInvalidStatus, "only a reviewed settlement batch can be closed")
		}

		now := time.Now().UTC()
		batch.Status = model.SettlementClosed
		batch.ClosedAt, batch.ClosedBy = &now, &actorID
		if err := s.repo.SaveBatch(txCtx, batch); err != nil {
			return apperror.FromStorage("settlement batch", err)
		}
		return s.appendLog(txCtx, batch.ID, nil, model.SettlementActionClose, actorID, "")
	})
	if err != nil {
		return nil, s.obs.fail("settlement.close", err)
	}

	s.obs.Metrics.SettlementAction(model.SettlementActionClose)
	s.obs.Log.Info("settlement batch closed", zap.String("batch_id", batchID))
	s.obs.Notifier.Publish(EventSettlementClosed, ToSettlementBatchResponse(*batch))
	return batch, nil
}

func (s *settlementService) RequestReopen(ctx context.Context, batchID string, in ReopenRequestInput, actorID uuid.UUID) (*model.SettlementReopenRequest, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	id, err := parseID("batch id", batchID)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, apperror.Validation("reason is required")
	}

	var req *model.SettlementReopenRequest
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		batch, err := s.repo.FindBatchByIDForUpdate(txCtx, id)
		if err != nil {
			return apperror.FromStorage("settlement batch", err)
		}
		if batch.Status != model.SettlementClosed {
			return apperror.InvalidState(apperror.CodeBatchNotClosed, "only a closed settlement batch can be reopened")
		}
		open, err := s.repo.HasOpenRequest(txCtx, batch.ID)
		if err != nil {
			return apperror.FromStorage("reopen request", err)
		}
		if open {
			return apperror.Conflict(apperror.CodeReopenRequested, "a reopen request is already pending for this batch")
		}

		req = &model.SettlementReopenRequest{
			BatchID:     batch.ID,
			Status:      model.ReopenRequested,
			Reason:      reason,
			RequestedBy: actorID,
		}
		if err := s.repo.CreateRequest(txCtx, req); err != nil {
			err = apperror.FromStorage("reopen request", err)
			if apperror.CodeOf(err) == apperror.CodeConflict {
				return apperror.Conflict(apperror.CodeReopenRequested, "a reopen request is already pending for this batch")
			}
			return err
		}
		return s.appendLog(txCtx, batch.ID, &req.ID, model.SettlementActionReopenRequest, actorID, reason)
	})
	if err != nil {
		return nil, s.obs.fail("settlement.request_reopen", err)
	}

	s.obs.Metrics.SettlementAction(model.SettlementActionReopenRequest)
	return req, nil
}

// decide loads the request, then locks the batch before the request row.
func (s *settlementService) decide(ctx context.Context, requestID string, actorID uuid.UUID, fn func(txCtx context.Context, batch *model.SettlementBatch, req *model.SettlementReopenRequest) error) error {
	if err := requireActor(actorID); err != nil {
		return err
	}
	id, err := parseID("request id", requestID)
	if err != nil {
		return err
	}
	peek, err := s.repo.FindRequestByID(ctx, id)
	if err != nil {
		return apperror.FromStorage("reopen request", err)
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		batch, err := s.repo.FindBatchByIDForUpdate(txCtx, peek.BatchID)
		if err != nil {
			return apperror.FromStorage("settlement batch", err)
		}
		req, err := s.repo.FindRequestByIDForUpdate(txCtx, id)
		if err != nil {
			return apperror.FromStorage("reopen request", err)
		}
		if req.Status != model.ReopenRequested {
			return apperror.InvalidState(apperror.CodeInvalidStatus, "reopen request is already "+string(req.Status))
		}
		return fn(txCtx, batch, req)
	})
}

func (s *settlementService) ApproveReopen(ctx context.Context, requestID string, in ReopenDecisionInput, actorID uuid.UUID) (*model.SettlementBatch, error) {
	var batch *model.SettlementBatch
	err := s.decide(ctx, requestID, actorID, func(txCtx context.Context, b *model.SettlementBatch, req *model.SettlementReopenRequest) error {
		if b.Status != model.SettlementClosed {
			return apperror.InvalidState(apperror.CodeBatchNotClosed, "settlement batch is no longer closed")
		}
		now := time.Now().UTC()
		req.Status = model.ReopenApproved
		req.DecidedBy, req.DecidedAt = &actorID, &now
		req.DecisionNote = strings.TrimSpace(in.Note)
		if err := s.repo.SaveRequest(txCtx, req); err != nil {
			return apperror.FromStorage("reopen request", err)
		}

		b.Status = model.SettlementReviewed
		b.ClosedAt, b.ClosedBy = nil, nil
		if err := s.repo.SaveBatch(txCtx, b); err != nil {
			return apperror.FromStorage("settlement batch", err)
		}
		batch = b
		return s.appendLog(txCtx, b.ID, &req.ID, model.SettlementActionReopen, actorID, req.DecisionNote)
	})
	if err != nil {
		return nil, s.obs.fail("settlement.approve_reopen", err)
	}

	s.obs.Metrics.SettlementAction(model.SettlementActionReopen)
	s.obs.Log.Info("settlement batch reopened", zap.String("batch_id", batch.ID.String()), zap.String("request_id", requestID))
	s.obs.Notifier.Publish(EventSettlementReopened, ToSettlementBatchResponse(*batch))
	return batch, nil
}

func (s *settlementService) RejectReopen(ctx context.Context, requestID string, in ReopenDecisionInput, actorID uuid.UUID) (*model.SettlementReopenRequest, error) {
	var decided *model.SettlementReopenRequest
	err := s.decide(ctx, requestID, actorID, func(txCtx context.Context, b *model.SettlementBatch, req *model.SettlementReopenRequest) error {
		now := time.Now().UTC()
		req.Status = model.ReopenRejected
		req.DecidedBy, req.DecidedAt = &actorID, &now
		req.DecisionNote = strings.TrimSpace(in.Note)
		if err := s.repo.SaveRequest(txCtx, req); err != nil {
			return apperror.FromStorage("reopen request", err)
		}
		decided = req
		return s.appendLog(txCtx, b.ID, &req.ID, model.SettlementActionReject, actorID, req.DecisionNote)
	})
	if err != nil {
		return nil, s.obs.fail("settlement.reject_reopen", err)
	}
	s.obs.Metrics.SettlementAction(model.SettlementActionReject)
	return decided, nil
}

func (s *settlementService) GetBatch(ctx context.Context, batchID string) (*SettlementBatchResponse, error) {
	id, err := parseID("batch id", batchID)
	if err != nil {
		return nil, err
	}
	batch, err := s.repo.FindBatchByID(ctx, id)
	if err != nil {
		return nil, apperror.FromStorage("settlement batch", err)
	}
	requests, err := s.repo.ListRequests(ctx, id)
	if err != nil {
		return nil, apperror.FromStorage("reopen request", err)
	}
	logs, err := s.repo.ListLogs(ctx, id)
	if err != nil {
		return nil, apperror.FromStorage("settlement log", err)
	}

	resp := ToSettlementBatchResponse(*batch)
	for _, r := range requests {
		resp.Requests = append(resp.Requests, ToReopenRequestResponse(r))
	}
	for _, l := range logs {
		resp.Logs = append(resp.Logs, SettlementLogResponse{
			Action:    l.Action,
			ActorID:   l.ActorID.String(),
			RequestID: optionalID(l.RequestID),
			Reason:    l.Reason,
			CreatedAt: l.CreatedAt.Format(time.RFC3339),
		})
	}
	return &resp, nil
}

func (s *settlementService) ListBatches(ctx context.Context, q SettlementQuery) ([]SettlementBatchResponse, int64, error) {
	p := pagination.New(q.Page, q.Limit)
	q.Page, q.Limit = p.Page, p.Limit
	clientID, err := parseOptionalID("client_id", q.ClientID)
	if err != nil {
		return nil, 0, err
	}

	batches, total, err := s.repo.ListBatches(ctx, clientID, model.SettlementBatchStatus(strings.ToLower(q.Status)), q.Page, q.Limit)
	if err != nil {
		return nil, 0, apperror.FromStorage("settlement batch", err)
	}
	res := make([]SettlementBatchResponse, 0, len(batches))
	for _, b := range batches {
		res = append(res, ToSettlementBatchResponse(b))
	}
	return res, total, nil
}

// --- Mapping ---

func ToSettlementBatchResponse(b model.SettlementBatch) SettlementBatchResponse {
	resp := SettlementBatchResponse{
		ID:             b.ID.String(),
		ClientID:       b.ClientID.String(),
		BillingMonth:   b.BillingMonth,
		Status:         string(b.Status),
		ExchangeRateID: optionalID(b.ExchangeRateID),
		FxRate:         b.FxRate.String(),
		SubtotalKRW:    b.SubtotalKRW.String(),
		SubtotalTHB:    b.SubtotalTHB.String(),
		TotalKRW:       b.TotalKRW.String(),
		LineCount:      b.LineCount,
		ClosedAt:       optionalTime(b.ClosedAt),
		ClosedBy:       optionalID(b.ClosedBy),
	}
	for _, l := range b.Lines {
		resp.Lines = append(resp.Lines, SettlementLineResponse{
			ID:             l.ID.String(),
			BillingEventID: l.BillingEventID.String(),
			ServiceCode:    l.ServiceCode,
			EventDate:      l.EventDate.Format("2006-01-02"),
			Qty:            l.Qty.String(),
			Currency:       l.Currency,
			Amount:         l.Amount.String(),
		})
	}
	return resp
}

func ToReopenRequestResponse(r model.SettlementReopenRequest) ReopenRequestResponse {
	return ReopenRequestResponse{
		ID:           r.ID.String(),
		BatchID:      r.BatchID.String(),
		Status:       string(r.Status),
		Reason:       r.Reason,
		RequestedBy:  r.RequestedBy.String(),
		DecidedBy:    optionalID(r.DecidedBy),
		DecidedAt:    optionalTime(r.DecidedAt),
		DecisionNote: r.DecisionNote,
		CreatedAt:    r.CreatedAt.Format(time.RFC3339),
	}
}
