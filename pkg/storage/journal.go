// Package storage keeps an optional local journal of what the bot sent to
// the venue. The journal is write-through and best effort: the trading
// loop logs journal failures and carries on.
package storage

import "time"

// OrderRecord is an accepted order submission.
type OrderRecord struct {
	Wallet   string    `json:"wallet"`
	Market   string    `json:"market"`
	OrderID  string    `json:"orderId"`
	Side     string    `json:"side"`
	Type     string    `json:"type"`
	Quantity string    `json:"quantity"`
	Price    string    `json:"price,omitempty"`
	Status   string    `json:"status,omitempty"`
	At       time.Time `json:"at"`
}

// ErrorRecord is a rejected submission or cancel.
type ErrorRecord struct {
	Wallet  string    `json:"wallet"`
	Market  string    `json:"market"`
	Op      string    `json:"op"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type Journal interface {
	RecordOrder(OrderRecord) error
	RecordError(ErrorRecord) error
	Close() error
}

// NopJournal discards everything.
type NopJournal struct{}

func (NopJournal) RecordOrder(OrderRecord) error { return nil }
func (NopJournal) RecordError(ErrorRecord) error { return nil }
func (NopJournal) Close() error                  { return nil }

var (
	_ Journal = NopJournal{}
	_ Journal = (*PebbleJournal)(nil)
)
