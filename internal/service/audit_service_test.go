package service

import (
	"context"
	"testing"

	"warehouse-billing/internal/model"
	"warehouse-billing/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLog_RecordsInvoiceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := uuid.New()

	env.createService(t, "PICK", model.BillingBasisQty)
	env.createRate(t, "2026-02-01", "40")
	env.manualEvent(t, client, "PICK", "2026-02-10", "1", "120", model.PricingTHBBased)

	inv, err := env.invoices.Generate(ctx, GenerateInvoiceRequest{ClientID: client.String(), Month: "2026-02"}, env.actor)
	require.NoError(t, err)
	_, err = env.invoices.Issue(ctx, inv.ID.String(), env.actor)
	require.NoError(t, err)

	audit := NewAuditService(repository.NewAuditRepository(env.db))
	logs, total, err := audit.GetAuditLogs(ctx, AuditQuery{EntityName: "invoice", EntityID: inv.ID.String()})
	require.NoError(t, err)

	assert.EqualValues(t, 2, total)
	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
		assert.Equal(t, env.actor.String(), l.UserID)
	}
	assert.ElementsMatch(t, []string{model.ActionGenerateInvoice, model.ActionIssueInvoice}, actions)
}

func TestAuditLog_FailedOperationLeavesNoRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createRate(t, "2026-02-01", "40")
	_, err := env.invoices.Generate(ctx, GenerateInvoiceRequest{ClientID: uuid.NewString(), Month: "2026-02"}, env.actor)
	require.Error(t, err)

	audit := NewAuditService(repository.NewAuditRepository(env.db))
	_, total, err := audit.GetAuditLogs(ctx, AuditQuery{EntityName: "invoice"})
	require.NoError(t, err)
	assert.Zero(t, total)
}
