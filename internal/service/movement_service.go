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

type PostMovementRequest struct {
	ClientID      string `json:"client_id" binding:"required"`
	ProductID     string `json:"product_id" binding:"required"`
	LotID         string `json:"lot_id" binding:"required"`
	WarehouseID   string `json:"warehouse_id" binding:"required"`
	LocationID    string `json:"location_id" binding:"required"`
	TxnType       string `json:"txn_type" binding:"required"`
	ReferenceType string `json:"reference_type" binding:"required"`
	ReferenceID   string `json:"reference_id" binding:"required"`
	// Qty is positive for every type except ADJUSTMENT, where the sign is the direction.
	Qty         int64  `json:"qty"`
	TxnDate     string `json:"txn_date"` // YYYY-MM-DD, defaults to today
	Note        string `json:"note"`
	ServiceCode string `json:"service_code"` // billable service, empty for unbilled movements
	BoxCount    int64  `json:"box_count"`
}

type ReverseMovementRequest struct {
	TxnType       string `json:"txn_type" binding:"required"`
	ReferenceType string `json:"reference_type" binding:"required"`
	ReferenceID   string `json:"reference_id" binding:"required"`
}

type MovementQuery struct {
	ClientID      string
	ReferenceType string
	ReferenceID   string
	IncludeAll    bool
	Page          int
	Limit         int
}

type MovementResponse struct {
	ID            string `json:"id"`
	ClientID      string `json:"client_id"`
	ProductID     string `json:"product_id"`
	LotID         string `json:"lot_id"`
	WarehouseID   string `json:"warehouse_id"`
	LocationID    string `json:"location_id"`
	TxnType       string `json:"txn_type"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
	QtyIn         int64  `json:"qty_in"`
	QtyOut        int64  `json:"qty_out"`
	TxnDate       string `json:"txn_date"`
	Note          string `json:"note"`
	State         string `json:"state"`
}

type BalanceResponse struct {
	ClientID     string `json:"client_id"`
	ProductID    string `json:"product_id"`
	LotID        string `json:"lot_id"`
	WarehouseID  string `json:"warehouse_id"`
	LocationID   string `json:"location_id"`
	AvailableQty int64  `json:"available_qty"`
	ReservedQty  int64  `json:"reserved_qty"`
}

// BalanceCheck compares a stored balance with the sum of its active ledger entries.
type BalanceCheck struct {
	BalanceResponse
	LedgerQty int64 `json:"ledger_qty"`
	Drift     int64 `json:"drift"`
}

// --- Interface ---

type MovementService interface {
	// PostMovement creates or re-posts the line identified by
	// (txn_type, reference_type, reference_id). A re-post applies only the
	// difference against the previous version to the balances.
	PostMovement(ctx context.Context, req PostMovementRequest, actorID uuid.UUID) (*model.StockTransaction, error)
	// ReverseLine undoes a posted line and drops its billing event.
	ReverseLine(ctx context.Context, req ReverseMovementRequest, actorID uuid.UUID) error
	ListMovements(ctx context.Context, q MovementQuery) ([]MovementResponse, int64, error)
	GetBalance(ctx context.Context, key model.StockKey) (*BalanceResponse, error)
	ListBalances(ctx context.Context, clientID string, page, limit int) ([]BalanceResponse, int64, error)
	VerifyBalance(ctx context.Context, key model.StockKey) (*BalanceCheck, error)
}

type movementService struct {
	stockRepo repository.StockRepository
	ledger    StockLedger
	events    BillingEventService
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	obs       Observers
}

func NewMovementService(
	stockRepo repository.StockRepository,
	ledger StockLedger,
	events BillingEventService,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	obs Observers,
) MovementService {
	return &movementService{
		stockRepo: stockRepo,
		ledger:    ledger,
		events:    events,
		auditRepo: auditRepo,
		txManager: txManager,
		obs:       obs.withDefaults(),
	}
}

// quantities splits a requested qty into qty_in and qty_out for the type.
func quantities(txnType model.StockTxnType, qty int64) (in, out int64, err error) {
	switch txnType {
	case model.StockTxnInbound, model.StockTxnReturnRestock:
		if qty <= 0 {
			return 0, 0, apperror.Validation("qty must be positive")
		}
		return qty, 0, nil
	case model.StockTxnOutbound:
		if qty <= 0 {
			return 0, 0, apperror.Validation("qty must be positive")
		}
		return 0, qty, nil
	case model.StockTxnReturnDispose:
		// received and written off in the same step
		if qty <= 0 {
			return 0, 0, apperror.Validation("qty must be positive")
		}
		return qty, qty, nil
	case model.StockTxnAdjustment:
		if qty == 0 {
			return 0, 0, apperror.Validation("adjustment qty must not be zero")
		}
		if qty > 0 {
			return qty, 0, nil
		}
		return 0, -qty, nil
	}
	return 0, 0, apperror.Validation("unknown txn_type " + string(txnType))
}

func parseStockKey(req PostMovementRequest) (model.StockKey, error) {
	return ParseStockKey(req.ClientID, req.ProductID, req.LotID, req.WarehouseID, req.LocationID)
}

// ParseStockKey validates the five ids of a stock position.
func ParseStockKey(clientID, productID, lotID, warehouseID, locationID string) (model.StockKey, error) {
	var (
		key model.StockKey
		err error
	)
	if key.ClientID, err = parseID("client_id", clientID); err != nil {
		return key, err
	}
	if key.ProductID, err = parseID("product_id", productID); err != nil {
		return key, err
	}
	if key.LotID, err = parseID("lot_id", lotID); err != nil {
		return key, err
	}
	if key.WarehouseID, err = parseID("warehouse_id", warehouseID); err != nil {
		return key, err
	}
	if key.LocationID, err = parseID("location_id", locationID); err != nil {
		return key, err
	}
	return key, nil
}

func keyString(k model.StockKey) string {
	return strings.Join([]string{
		k.ClientID.String(), k.ProductID.String(), k.LotID.String(), k.WarehouseID.String(), k.LocationID.String(),
	}, "/")
}

// applyDeltas locks every touched balance in key order, rejects any result
// below zero, then applies the deltas.
func (s *movementService) applyDeltas(ctx context.Context, deltas map[model.StockKey]int64) error {
	keys := make([]model.StockKey, 0, len(deltas))
	for k := range deltas {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keyString(keys[i]) < keyString(keys[j]) })

	for _, k := range keys {
		balance, err := s.ledger.LockBalance(ctx, k)
		if err != nil {
			return err
		}
		if balance.AvailableQty+deltas[k] < 0 {
			return apperror.InvalidState(apperror.CodeInsufficientStock,
				fmt.Sprintf("available %d, requested change %d", balance.AvailableQty, deltas[k]))
		}
	}
	for _, k := range keys {
		if deltas[k] == 0 {
			continue
		}
		if _, err := s.ledger.AdjustBalance(ctx, k, deltas[k]); err != nil {
			return err
		}
	}
	return nil
}

// sameEntry reports whether the locked entry is still the one read before locking.
func sameEntry(prior, locked *model.StockTransaction) bool {
	if prior == nil || locked == nil {
		return prior == nil && locked == nil
	}
	return prior.ID == locked.ID && prior.StockKey == locked.StockKey &&
		prior.QtyIn == locked.QtyIn && prior.QtyOut == locked.QtyOut
}

var errMovementChanged = apperror.New(apperror.KindConflict, apperror.CodeRetryableConflict,
	"stock movement changed concurrently, retry the request")

// --- Implementation ---

func (s *movementService) PostMovement(ctx context.Context, req PostMovementRequest, actorID uuid.UUID) (*model.StockTransaction, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	key, err := parseStockKey(req)
	if err != nil {
		return nil, err
	}
	txnType := model.StockTxnType(strings.ToUpper(strings.TrimSpace(req.TxnType)))
	qtyIn, qtyOut, err := quantities(txnType, req.Qty)
	if err != nil {
		return nil, err
	}
	txnDate := dateOnly(time.Now().UTC())
	if req.TxnDate != "" {
		if txnDate, err = parseDate("txn_date", req.TxnDate); err != nil {
			return nil, err
		}
	}
	if req.BoxCount < 0 {
		return nil, apperror.Validation("box_count must not be negative")
	}
	refType := strings.ToUpper(strings.TrimSpace(req.ReferenceType))
	refID := strings.TrimSpace(req.ReferenceID)

	prior, err := s.stockRepo.FindActiveTxn(ctx, txnType, refType, refID)
	if err != nil {
		return nil, apperror.FromStorage("stock transaction", err)
	}

	var txn *model.StockTransaction
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		deltas := map[model.StockKey]int64{key: qtyIn - qtyOut}
		if prior != nil {
			deltas[prior.StockKey] -= prior.Delta()
		}
		if err := s.applyDeltas(txCtx, deltas); err != nil {
			return err
		}

		locked, err := s.stockRepo.FindActiveTxnForUpdate(txCtx, txnType, refType, refID)
		if err != nil {
			return apperror.FromStorage("stock transaction", err)
		}
		if !sameEntry(prior, locked) {
			return errMovementChanged
		}

		txn, err = s.ledger.RecordMovement(txCtx, MovementInput{
			TxnType:       txnType,
			ReferenceType: refType,
			ReferenceID:   refID,
			Key:           key,
			QtyIn:         qtyIn,
			QtyOut:        qtyOut,
			TxnDate:       txnDate,
			Note:          req.Note,
			ActorID:       actorID,
		})
		if err != nil {
			return err
		}

		if code := strings.TrimSpace(req.ServiceCode); code != "" {
			qty := req.Qty
			if qty < 0 {
				qty = -qty
			}
			event, err := s.events.UpsertEventFromMovement(txCtx, MovementUsage{
				MovementID:  txn.ID,
				ClientID:    key.ClientID,
				ServiceCode: strings.ToUpper(code),
				EventDate:   txnDate,
				Qty:         decimal.NewFromInt(qty),
				BoxCount:    req.BoxCount,
				ActorID:     actorID,
			})
			if err != nil {
				return err
			}
			if event == nil {
				// unpriced on this date: drop any event left by an earlier version
				if err := s.events.SoftDeleteEventFromMovement(txCtx, txn.ID); err != nil {
					return err
				}
			}
		} else if err := s.events.SoftDeleteEventFromMovement(txCtx, txn.ID); err != nil {
			return err
		}

		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionPostMovement, "stock_transaction", txn.ID.String(),
			map[string]interface{}{
				"txn_type":     txnType,
				"reference":    refType + ":" + refID,
				"qty_in":       qtyIn,
				"qty_out":      qtyOut,
				"service_code": req.ServiceCode,
				"repost":       prior != nil,
			})
	})
	if err != nil {
		return nil, s.obs.fail("stock.post_movement", err)
	}

	op := "create"
	if prior != nil {
		op = "update"
	}
	s.obs.Metrics.MovementPosted(string(txnType), op)
	s.obs.Log.Info("stock movement posted",
		zap.String("txn_id", txn.ID.String()),
		zap.String("txn_type", string(txnType)),
		zap.String("reference", refType+":"+refID),
		zap.Int64("delta", txn.Delta()),
	)
	s.obs.Notifier.Publish(EventMovementPosted, ToMovementResponse(*txn))
	return txn, nil
}

func (s *movementService) ReverseLine(ctx context.Context, req ReverseMovementRequest, actorID uuid.UUID) error {
	if err := requireActor(actorID); err != nil {
		return err
	}
	txnType := model.StockTxnType(strings.ToUpper(strings.TrimSpace(req.TxnType)))
	if !txnType.Valid() {
		return apperror.Validation("unknown txn_type " + req.TxnType)
	}
	refType := strings.ToUpper(strings.TrimSpace(req.ReferenceType))
	refID := strings.TrimSpace(req.ReferenceID)

	prior, err := s.stockRepo.FindActiveTxn(ctx, txnType, refType, refID)
	if err != nil {
		return apperror.FromStorage("stock transaction", err)
	}
	if prior == nil {
		return apperror.NotFound("stock transaction")
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.applyDeltas(txCtx, map[model.StockKey]int64{prior.StockKey: -prior.Delta()}); err != nil {
			return err
		}
		locked, err := s.stockRepo.FindActiveTxnForUpdate(txCtx, txnType, refType, refID)
		if err != nil {
			return apperror.FromStorage("stock transaction", err)
		}
		if !sameEntry(prior, locked) {
			return errMovementChanged
		}
		if err := s.ledger.ReverseMovement(txCtx, txnType, refType, refID); err != nil {
			return err
		}
		if err := s.events.SoftDeleteEventFromMovement(txCtx, prior.ID); err != nil {
			return err
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionReverseMovement, "stock_transaction", prior.ID.String(),
			map[string]interface{}{"reference": refType + ":" + refID, "delta": -prior.Delta()})
	})
	if err != nil {
		return s.obs.fail("stock.reverse_line", err)
	}

	s.obs.Metrics.MovementPosted(string(txnType), "reverse")
	s.obs.Log.Info("stock movement reversed", zap.String("txn_id", prior.ID.String()))
	s.obs.Notifier.Publish(EventMovementReversed, ToMovementResponse(*prior))
	return nil
}

func (s *movementService) ListMovements(ctx context.Context, q MovementQuery) ([]MovementResponse, int64, error) {
	p := pagination.New(q.Page, q.Limit)
	q.Page, q.Limit = p.Page, p.Limit
	clientID, err := parseOptionalID("client_id", q.ClientID)
	if err != nil {
		return nil, 0, err
	}

	txns, total, err := s.stockRepo.ListTxns(ctx, repository.StockTxnFilter{
		ClientID:      clientID,
		ReferenceType: strings.ToUpper(q.ReferenceType),
		ReferenceID:   q.ReferenceID,
		IncludeAll:    q.IncludeAll,
		Page:          q.Page,
		Limit:         q.Limit,
	})
	if err != nil {
		return nil, 0, apperror.FromStorage("stock transaction", err)
	}
	res := make([]MovementResponse, 0, len(txns))
	for _, t := range txns {
		res = append(res, ToMovementResponse(t))
	}
	return res, total, nil
}

func (s *movementService) GetBalance(ctx context.Context, key model.StockKey) (*BalanceResponse, error) {
	balance, err := s.stockRepo.FindBalance(ctx, key)
	if err != nil {
		return nil, apperror.FromStorage("stock balance", err)
	}
	resp := ToBalanceResponse(*balance)
	return &resp, nil
}

func (s *movementService) ListBalances(ctx context.Context, clientID string, page, limit int) ([]BalanceResponse, int64, error) {
	p := pagination.New(page, limit)
	page, limit = p.Page, p.Limit
	id, err := parseID("client_id", clientID)
	if err != nil {
		return nil, 0, err
	}
	balances, total, err := s.stockRepo.ListBalances(ctx, id, page, limit)
	if err != nil {
		return nil, 0, apperror.FromStorage("stock balance", err)
	}
	res := make([]BalanceResponse, 0, len(balances))
	for _, b := range balances {
		res = append(res, ToBalanceResponse(b))
	}
	return res, total, nil
}

func (s *movementService) VerifyBalance(ctx context.Context, key model.StockKey) (*BalanceCheck, error) {
	balance, err := s.stockRepo.FindBalance(ctx, key)
	if err != nil {
		return nil, apperror.FromStorage("stock balance", err)
	}
	sum, err := s.stockRepo.SumActiveDelta(ctx, key)
	if err != nil {
		return nil, apperror.FromStorage("stock transaction", err)
	}
	check := &BalanceCheck{
		BalanceResponse: ToBalanceResponse(*balance),
		LedgerQty:       sum,
		Drift:           balance.AvailableQty - sum,
	}
	if check.Drift != 0 {
		s.obs.Log.Warn("stock balance drift",
			zap.String("key", keyString(key)),
			zap.Int64("available", balance.AvailableQty),
			zap.Int64("ledger", sum),
		)
	}
	return check, nil
}

// --- Mapping ---

func ToMovementResponse(t model.StockTransaction) MovementResponse {
	return MovementResponse{
		ID:            t.ID.String(),
		ClientID:      t.ClientID.String(),
		ProductID:     t.ProductID.String(),
		LotID:         t.LotID.String(),
		WarehouseID:   t.WarehouseID.String(),
		LocationID:    t.LocationID.String(),
		TxnType:       string(t.TxnType),
		ReferenceType: t.ReferenceType,
		ReferenceID:   t.ReferenceID,
		QtyIn:         t.QtyIn,
		QtyOut:        t.QtyOut,
		TxnDate:       t.TxnDate.Format("2006-01-02"),
		Note:          t.Note,
		State:         string(t.State),
	}
}

func ToBalanceResponse(b model.StockBalance) BalanceResponse {
	return BalanceResponse{
		ClientID:     b.ClientID.String(),
		ProductID:    b.ProductID.String(),
		LotID:        b.LotID.String(),
		WarehouseID:  b.WarehouseID.String(),
		LocationID:   b.LocationID.String(),
		AvailableQty: b.AvailableQty,
		ReservedQty:  b.ReservedQty,
	}
}
