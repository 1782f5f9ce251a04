package app

import (
	"fmt"

	"storyboard/pkg/domain"
)

// GetSubscription returns the user's subscription when one exists.
func (a *App) GetSubscription(userID string) (domain.Subscription, bool, error) {
	sub, found, err := a.store.GetSubscriptionByUser(userID)
	if err != nil {
		return domain.Subscription{}, false, fmt.Errorf("get subscription: %w", err)
	}
	return sub, found, nil
}

// ListCreditTransactions returns the user's credit ledger, newest first.
func (a *App) ListCreditTransactions(userID string) ([]domain.CreditTransaction, error) {
	txs, err := a.store.ListCreditTransactionsByUser(userID, 100)
	if err != nil {
		return nil, fmt.Errorf("list credit transactions: %w", err)
	}
	return txs, nil
}
