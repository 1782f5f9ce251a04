package server

import (
	"io"
	"net/http"

	"storyboard/internal/app"
	"storyboard/pkg/domain"
)

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	sub, found, err := s.app.GetSubscription(user.ID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if !found {
		// Free tier accounts have no subscription row.
		writeData(w, http.StatusOK, nil)
		return
	}
	writeData(w, http.StatusOK, sub)
}

// handleCheckout answers with a placeholder session until the payment
// provider is wired up. Clients exercise the flow against these URLs.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	s.audit(r, "billing.checkout", "success", "user_id", user.ID)
	writeData(w, http.StatusOK, map[string]string{
		"sessionId": "cs_test_placeholder",
		"url":       "https://checkout.stripe.com/c/pay/cs_test_placeholder",
	})
}

// handlePortal requires a billed subscription, then answers with a
// placeholder portal session.
func (s *Server) handlePortal(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	sub, found, err := s.app.GetSubscription(user.ID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if !found || sub.StripeCustomerID == "" {
		s.writeAppError(w, app.BadRequest("No active subscription found", nil))
		return
	}
	writeData(w, http.StatusOK, map[string]string{
		"url": "https://billing.stripe.com/p/session/placeholder",
	})
}

// handleBillingWebhook acknowledges provider callbacks. Events are accepted
// and dropped until billing is wired up, so the provider does not retry
// forever.
func (s *Server) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	_, _ = io.Copy(io.Discard, http.MaxBytesReader(w, r.Body, 1<<20))
	writeData(w, http.StatusOK, map[string]bool{"received": true})
}

func (s *Server) handleCreditTransactions(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	txs, err := s.app.ListCreditTransactions(user.ID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, txs)
}
