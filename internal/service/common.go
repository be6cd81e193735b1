package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"warehouse-billing/internal/metrics"
	"warehouse-billing/internal/model"
	"warehouse-billing/internal/repository"
	"warehouse-billing/pkg/apperror"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Notifier receives domain events after their transaction commits.
type Notifier interface {
	Publish(event string, payload interface{})
}

type noopNotifier struct{}

func (noopNotifier) Publish(string, interface{}) {}

// Realtime event names
const (
	EventMovementPosted      = "stock.movement_posted"
	EventMovementReversed    = "stock.movement_reversed"
	EventInvoiceGenerated    = "invoice.generated"
	EventInvoiceIssued       = "invoice.issued"
	EventInvoicePaid         = "invoice.paid"
	EventSettlementGenerated = "settlement.generated"
	EventSettlementClosed    = "settlement.closed"
	EventSettlementReopened  = "settlement.reopened"
)

// Observers bundles the logging, metrics and notification sinks a service reports to.
// Every field is optional.
type Observers struct {
	Log      *zap.Logger
	Metrics  *metrics.Metrics
	Notifier Notifier
}

func (o Observers) withDefaults() Observers {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.Notifier == nil {
		o.Notifier = noopNotifier{}
	}
	return o
}

// fail records a failed operation and returns err unchanged.
func (o Observers) fail(operation string, err error) error {
	if err == nil {
		return nil
	}
	code := apperror.CodeOf(err)
	o.Metrics.Failure(operation, code)
	if apperror.KindOf(err) == apperror.KindInternal {
		o.Log.Error(operation+" failed", zap.String("code", code), zap.Error(err))
	} else {
		o.Log.Debug(operation+" rejected", zap.String("code", code), zap.Error(err))
	}
	return err
}

func requireActor(actorID uuid.UUID) error {
	if actorID == uuid.Nil {
		return apperror.New(apperror.KindValidation, apperror.CodeActorRequired, "actor id is required")
	}
	return nil
}

// ParseActor parses the acting user id carried by a request.
func ParseActor(raw string) (uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return uuid.Nil, apperror.New(apperror.KindValidation, apperror.CodeActorRequired, "actor id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperror.New(apperror.KindValidation, apperror.CodeActorRequired, "actor id is not a valid uuid")
	}
	return id, nil
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, apperror.Validation(fmt.Sprintf("invalid %s", field))
	}
	return id, nil
}

func parseOptionalID(field, raw string) (*uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := parseID(field, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// dateOnly truncates t to midnight UTC of its calendar day.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseDate(field, raw string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, apperror.Validation(fmt.Sprintf("invalid %s, expected YYYY-MM-DD", field))
	}
	return t, nil
}

// BillingMonth is a calendar month in UTC.
type BillingMonth struct {
	Start time.Time
}

// ParseBillingMonth accepts "YYYY-MM".
func ParseBillingMonth(raw string) (BillingMonth, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(raw))
	if err != nil {
		return BillingMonth{}, apperror.Validation("invalid billing month, expected YYYY-MM")
	}
	return BillingMonth{Start: t.UTC()}, nil
}

func (m BillingMonth) String() string { return m.Start.Format("2006-01") }

// Period is the yyyymm key of the invoice sequence.
func (m BillingMonth) Period() string { return m.Start.Format("200601") }

// Next is the exclusive upper bound of the month.
func (m BillingMonth) Next() time.Time { return m.Start.AddDate(0, 1, 0) }

// LastDay is the final calendar day of the month.
func (m BillingMonth) LastDay() time.Time { return m.Next().AddDate(0, 0, -1) }

func (m BillingMonth) Contains(t time.Time) bool {
	return !t.Before(m.Start) && t.Before(m.Next())
}

// writeAudit appends an audit row inside the caller's transaction.
func writeAudit(ctx context.Context, repo repository.AuditRepository, actorID uuid.UUID, action, entityName, entityID string, details interface{}) error {
	if repo == nil {
		return nil
	}
	entry := &model.AuditLog{
		UserID:     &actorID,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return apperror.Internal("encode audit details", err)
		}
		entry.Details = datatypes.JSON(raw)
	}
	if err := repo.Log(ctx, entry); err != nil {
		return apperror.FromStorage("audit log", err)
	}
	return nil
}
