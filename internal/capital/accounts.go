package capital

import (
	"context"
	"errors"
	"fmt"

	"github.com/DhruvalBhuva/trading-algo/internal/model"
)

// ErrAccountNotFound indicates no account matched the requested ID.
var ErrAccountNotFound = errors.New("capital: account not found")

type accountsResponse struct {
	Accounts []apiAccount `json:"accounts"`
}

type apiAccount struct {
	AccountID   string `json:"accountId"`
	AccountName string `json:"accountName"`
	Currency    string `json:"currency"`
	Balance     struct {
		Balance   float64 `json:"balance"`
		Available float64 `json:"available"`
	} `json:"balance"`
}

func (a apiAccount) toModel() model.Account {
	return model.Account{
		AccountID: a.AccountID,
		Name:      a.AccountName,
		Currency:  a.Currency,
		Balance:   a.Balance.Balance,
		Available: a.Balance.Available,
	}
}

// Accounts fetches all trading accounts with balances.
func (c *Client) Accounts(ctx context.Context) ([]model.Account, error) {
	var resp accountsResponse
	if err := c.get(ctx, "/accounts", nil, &resp); err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}

	accounts := make([]model.Account, 0, len(resp.Accounts))
	for _, a := range resp.Accounts {
		accounts = append(accounts, a.toModel())
	}
	return accounts, nil
}

// AccountByID returns a single account. An empty id selects the first
// account, matching the common single-account setup.
func (c *Client) AccountByID(ctx context.Context, id string) (model.Account, error) {
	accounts, err := c.Accounts(ctx)
	if err != nil {
		return model.Account{}, err
	}
	if len(accounts) == 0 {
		return model.Account{}, ErrAccountNotFound
	}
	if id == "" {
		return accounts[0], nil
	}
	for _, a := range accounts {
		if a.AccountID == id {
			return a, nil
		}
	}
	return model.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
}
