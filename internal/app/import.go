package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rjcarver/benchfolio/internal/common"
	"github.com/rjcarver/benchfolio/internal/interfaces"
	"github.com/rjcarver/benchfolio/internal/models"
)

type importPortfolioFile struct {
	Name         string              `json:"name"`
	Owner        string              `json:"owner"`
	Transactions []importTransaction `json:"transactions"`
}

type importTransaction struct {
	Ticker string `json:"ticker"`
	Type   string `json:"type"`
	Date   string `json:"date"`
	Shares string `json:"shares"`
	Price  string `json:"price"`
}

// ImportPortfolioFromFile reads a portfolio JSON file, validates the ledger,
// and saves it into storage. An existing portfolio with the same name is
// replaced; its ID is kept so references stay stable.
func ImportPortfolioFromFile(ctx context.Context, portfolioStore interfaces.PortfolioStorage, logger *common.Logger, filePath string) (*models.Portfolio, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read portfolio file %s: %w", filePath, err)
	}

	var file importPortfolioFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse portfolio file %s: %w", filePath, err)
	}
	if file.Name == "" {
		return nil, fmt.Errorf("portfolio file %s missing name", filePath)
	}

	portfolio := &models.Portfolio{
		ID:    uuid.NewString(),
		Name:  file.Name,
		Owner: file.Owner,
	}
	if existing, err := portfolioStore.GetPortfolio(ctx, file.Name); err == nil {
		portfolio.ID = existing.ID
		portfolio.CreatedAt = existing.CreatedAt
	}

	for i, raw := range file.Transactions {
		tx, err := parseImportTransaction(raw)
		if err != nil {
			return nil, fmt.Errorf("transaction %d in %s: %w", i, filePath, err)
		}
		portfolio.Transactions = append(portfolio.Transactions, tx)
	}

	if err := portfolioStore.SavePortfolio(ctx, portfolio); err != nil {
		return nil, fmt.Errorf("failed to save portfolio %s: %w", file.Name, err)
	}

	logger.Info().
		Str("portfolio", portfolio.Name).
		Int("transactions", len(portfolio.Transactions)).
		Msg("Portfolio imported")
	return portfolio, nil
}

func parseImportTransaction(raw importTransaction) (models.Transaction, error) {
	date, err := time.Parse("2006-01-02", raw.Date)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("invalid date %q: %w", raw.Date, err)
	}
	shares, err := decimal.NewFromString(raw.Shares)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("invalid shares %q: %w", raw.Shares, err)
	}
	price, err := decimal.NewFromString(raw.Price)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("invalid price %q: %w", raw.Price, err)
	}
	txType := models.TransactionType(strings.ToUpper(strings.TrimSpace(raw.Type)))
	tx := models.NewTransaction(raw.Ticker, txType, date, shares, price)
	if err := tx.Validate(); err != nil {
		return models.Transaction{}, err
	}
	return tx, nil
}
