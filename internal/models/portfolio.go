// Package models defines data structures for Benchfolio
package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType identifies the direction of a transaction.
type TransactionType string

const (
	TransactionBuy  TransactionType = "BUY"
	TransactionSell TransactionType = "SELL"
)

// Transaction is a single buy or sell event in a portfolio ledger.
// Immutable once created; ordering key is (Date, Seq) where Seq is the
// insertion order within the portfolio.
type Transaction struct {
	Ticker        string          `json:"ticker"`
	Type          TransactionType `json:"type"`
	Date          time.Time       `json:"date"`
	Seq           int             `json:"seq"`
	Shares        decimal.Decimal `json:"shares"`
	PricePerShare decimal.Decimal `json:"price_per_share"`
	TotalValue    decimal.Decimal `json:"total_value"`
}

// NewTransaction builds a transaction with TotalValue derived from
// shares × price. The date is truncated to day precision.
func NewTransaction(ticker string, txType TransactionType, date time.Time, shares, price decimal.Decimal) Transaction {
	return Transaction{
		Ticker:        strings.ToUpper(strings.TrimSpace(ticker)),
		Type:          txType,
		Date:          DateOnly(date),
		Shares:        shares,
		PricePerShare: price,
		TotalValue:    shares.Mul(price),
	}
}

// Validate rejects malformed transactions at the ingestion boundary.
// Replay never sees a transaction that fails these checks.
func (t Transaction) Validate() error {
	if t.Ticker == "" {
		return fmt.Errorf("transaction missing ticker")
	}
	if t.Type != TransactionBuy && t.Type != TransactionSell {
		return fmt.Errorf("transaction for %s has invalid type %q", t.Ticker, t.Type)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction for %s missing date", t.Ticker)
	}
	if !t.Shares.IsPositive() {
		return fmt.Errorf("transaction for %s on %s has non-positive shares %s",
			t.Ticker, t.Date.Format("2006-01-02"), t.Shares)
	}
	if t.PricePerShare.IsNegative() {
		return fmt.Errorf("transaction for %s on %s has negative price %s",
			t.Ticker, t.Date.Format("2006-01-02"), t.PricePerShare)
	}
	return nil
}

// Portfolio represents an investment portfolio and its full transaction ledger.
type Portfolio struct {
	ID           string        `json:"id" badgerhold:"key"`
	Name         string        `json:"name"`
	Owner        string        `json:"owner,omitempty"`
	Transactions []Transaction `json:"transactions"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Validate checks every transaction in the ledger.
func (p *Portfolio) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("portfolio missing name")
	}
	for i, tx := range p.Transactions {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
	}
	return nil
}

// SortTransactions orders the ledger by (date, insertion order) and
// renumbers Seq so the replay order is stable.
func (p *Portfolio) SortTransactions() {
	sort.SliceStable(p.Transactions, func(i, j int) bool {
		return p.Transactions[i].Date.Before(p.Transactions[j].Date)
	})
	for i := range p.Transactions {
		p.Transactions[i].Seq = i
	}
}

// EarliestTransactionDate returns the date of the first transaction, or the
// zero time for an empty ledger.
func (p *Portfolio) EarliestTransactionDate() time.Time {
	var earliest time.Time
	for _, tx := range p.Transactions {
		if earliest.IsZero() || tx.Date.Before(earliest) {
			earliest = tx.Date
		}
	}
	return earliest
}

// Tickers returns the distinct set of tickers ever transacted, sorted.
func (p *Portfolio) Tickers() []string {
	seen := make(map[string]bool)
	var tickers []string
	for _, tx := range p.Transactions {
		if !seen[tx.Ticker] {
			seen[tx.Ticker] = true
			tickers = append(tickers, tx.Ticker)
		}
	}
	sort.Strings(tickers)
	return tickers
}
