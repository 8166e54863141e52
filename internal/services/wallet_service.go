package services

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/eventpay/backend/internal/config"
	"github.com/eventpay/backend/internal/ledger"
	"github.com/go-redis/redis/v8"
)

// WalletService exposes the ledger engine over HTTP: deposits, withdrawals,
// balance enquiry and transaction history for the authenticated user's
// account. Balance reads are cached in Redis for a short TTL and invalidated
// on every mutation.
type WalletService struct {
	engine    *ledger.Engine
	redis     *redis.Client
	cfg       *config.WalletConfig
	validator *ValidationHelper
}

func NewWalletService(engine *ledger.Engine, redisClient *redis.Client, cfg *config.WalletConfig) *WalletService {
	return &WalletService{
		engine:    engine,
		redis:     redisClient,
		cfg:       cfg,
		validator: NewValidationHelper(),
	}
}

// AmountRequest is the deposit/withdraw payload
// @Description Amount in cents
type AmountRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0" example:"2500"` // cents
	Description string `json:"description,omitempty" validate:"max=200"`
}

type balanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"` // cents
	Currency  string `json:"currency"`
}

func accountIDFrom(r *http.Request) (string, bool) {
	accountID, ok := r.Context().Value("accountID").(string)
	return accountID, ok && accountID != ""
}

func (s *WalletService) decodeAmount(w http.ResponseWriter, r *http.Request) (AmountRequest, bool) {
	var req AmountRequest

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return req, false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return req, false
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return req, false
	}
	return req, true
}

// Deposit credits the authenticated account
// @Summary Deposit funds
// @Tags wallet
// @Accept json
// @Produce json
// @Param request body AmountRequest true "Deposit amount in cents"
// @Success 200 {object} models.Transaction
// @Failure 400 {object} ErrorResponse
// @Router /wallet/deposit [post]
func (s *WalletService) Deposit(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFrom(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	req, ok := s.decodeAmount(w, r)
	if !ok {
		return
	}
	if req.Amount > s.cfg.MaxDepositAmount {
		SendErrorResponse(w, fmt.Sprintf("Amount exceeds maximum deposit of %d", s.cfg.MaxDepositAmount), http.StatusBadRequest, nil)
		return
	}

	txn, err := s.engine.Deposit(r.Context(), accountID, req.Amount)
	if err != nil {
		log.Printf("[WALLET] Deposit failed for account %s: %v", accountID, err)
		SendLedgerError(w, err)
		return
	}

	s.invalidateBalance(r, accountID)
	log.Printf("[WALLET] Deposit of %d to account %s, balance %d", req.Amount, accountID, txn.Balance)
	SendJSON(w, http.StatusOK, txn)
}

// Withdraw debits the authenticated account
// @Summary Withdraw funds
// @Tags wallet
// @Accept json
// @Produce json
// @Param request body AmountRequest true "Withdrawal amount in cents"
// @Success 200 {object} models.Transaction
// @Failure 422 {object} ErrorResponse "Insufficient funds"
// @Router /wallet/withdraw [post]
func (s *WalletService) Withdraw(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFrom(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	req, ok := s.decodeAmount(w, r)
	if !ok {
		return
	}

	txn, err := s.engine.Withdraw(r.Context(), accountID, req.Amount)
	if err != nil {
		log.Printf("[WALLET] Withdrawal failed for account %s: %v", accountID, err)
		SendLedgerError(w, err)
		return
	}

	s.invalidateBalance(r, accountID)
	log.Printf("[WALLET] Withdrawal of %d from account %s, balance %d", req.Amount, accountID, txn.Balance)
	SendJSON(w, http.StatusOK, txn)
}

// BalanceEnquiry returns the current balance
// @Summary Get account balance
// @Tags wallet
// @Produce json
// @Success 200 {object} balanceResponse
// @Router /wallet/balance [get]
func (s *WalletService) BalanceEnquiry(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFrom(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if s.redis != nil {
		cached, err := s.redis.Get(r.Context(), balanceKey(accountID)).Int64()
		if err == nil {
			SendJSON(w, http.StatusOK, balanceResponse{AccountID: accountID, Balance: cached, Currency: s.cfg.Currency})
			return
		}
	}

	balance, err := s.engine.Balance(r.Context(), accountID)
	if err != nil {
		SendLedgerError(w, err)
		return
	}

	if s.redis != nil {
		if err := s.redis.Set(r.Context(), balanceKey(accountID), balance, s.cfg.BalanceCacheTTL).Err(); err != nil {
			log.Printf("[WALLET] Failed to cache balance for %s: %v", accountID, err)
		}
	}

	SendJSON(w, http.StatusOK, balanceResponse{AccountID: accountID, Balance: balance, Currency: s.cfg.Currency})
}

// History lists the account's transactions, newest first
// @Summary List transactions
// @Tags wallet
// @Produce json
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Page offset"
// @Success 200 {array} models.Transaction
// @Router /wallet/transactions [get]
func (s *WalletService) History(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFrom(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	txns, err := s.engine.History(r.Context(), accountID, limit, offset)
	if err != nil {
		SendLedgerError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, txns)
}

// CloseAccount freezes the account; the balance must be zero
// @Summary Close account
// @Tags wallet
// @Success 204
// @Failure 409 {object} ErrorResponse "Balance not zero"
// @Router /wallet/close [post]
func (s *WalletService) CloseAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFrom(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if err := s.engine.CloseAccount(r.Context(), accountID); err != nil {
		log.Printf("[WALLET] Close failed for account %s: %v", accountID, err)
		SendLedgerError(w, err)
		return
	}

	s.invalidateBalance(r, accountID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *WalletService) invalidateBalance(r *http.Request, accountID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(r.Context(), balanceKey(accountID)).Err(); err != nil {
		log.Printf("[WALLET] Failed to invalidate balance cache for %s: %v", accountID, err)
	}
}

func balanceKey(accountID string) string {
	return fmt.Sprintf("wallet:balance:%s", accountID)
}
