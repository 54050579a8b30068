package model

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Entry kinds recorded in the durable ledger.
const (
	EntryCredit = "credit"
	EntryDebit  = "debit"
)

// FlexString decodes a JSON string or bare number into a string.
// Payment providers are not consistent about quoting status fields.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	*s = FlexString(data)
	return nil
}

// CreditNotification carries the fields the ledger reads from a provider
// sale notification. Anything else in the payload is ignored.
type CreditNotification struct {
	SaleStatus FlexString      `json:"venda_status"`
	AccountID  string          `json:"usermeta"`
	Amount     decimal.Decimal `json:"valor_venda"`
	SaleCode   string          `json:"codigo_venda"`
}

// Approved reports whether the notification denotes a completed sale.
func (n CreditNotification) Approved() bool {
	return n.SaleStatus == "aprovado" || n.SaleStatus == "1"
}

type DebitRequest struct {
	AccountID      string `json:"account_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

// DebitResult reports the balance left after a successful debit.
type DebitResult struct {
	NewBalanceCents int64
	Status          string
}

// CreditResult reports the outcome of applying a notification. Credited is
// false when the sale was already processed (duplicate delivery).
type CreditResult struct {
	NewBalanceCents int64
	Credited        bool
}

// LedgerEvent is published on the bus after every applied mutation and
// drained into Postgres by the entry worker.
type LedgerEvent struct {
	AccountID      string    `json:"account_id"`
	Kind           string    `json:"kind"`
	AmountCents    int64     `json:"amount_cents"`
	IdempotencyKey string    `json:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at"`
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Account struct {
	ID           string
	Username     string
	BalanceCents int64
	CreatedAt    time.Time
}
