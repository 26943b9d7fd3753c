package ledger

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pennywise/backend/internal/models"
)

// Auditor emits a structured event for every committed balance mutation and
// every failed attempt. Balance history must be reconstructible from these
// events alone.
type Auditor struct {
	log *logrus.Logger
}

func NewAuditor() *Auditor {
	return &Auditor{log: logrus.StandardLogger()}
}

func (a *Auditor) Applied(op string, t *models.Transaction, deltas []Delta) {
	fields := logrus.Fields{
		"event":          "balance_applied",
		"operation":      op,
		"transaction_id": t.ID.String(),
		"user_id":        t.UserID.String(),
		"type":           string(t.Type),
		"amount":         t.Amount.String(),
	}
	for i, d := range deltas {
		fields[deltaField(i)] = d.AccountID.String() + ":" + d.Amount.String()
	}
	a.log.WithFields(fields).Info("ledger mutation committed")
}

func (a *Auditor) Failed(op string, txID uuid.UUID, err error) {
	a.log.WithFields(logrus.Fields{
		"event":          "balance_rejected",
		"operation":      op,
		"transaction_id": txID.String(),
		"error":          err.Error(),
	}).Warn("ledger mutation failed")
}

func deltaField(i int) string {
	if i == 0 {
		return "delta_source"
	}
	return "delta_destination"
}
