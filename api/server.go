package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"lender/models"
	"lender/service"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
)

// apiError is the standard JSON error body
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	errCodeInvalidInput      = "INVALID_INPUT"
	errCodeMissingAccount    = "MISSING_ACCOUNT"
	errCodeAssetNotAllowed   = "ASSET_NOT_ALLOWED"
	errCodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	errCodeCollateralBreach  = "COLLATERAL_RATIO_EXCEEDED"
	errCodeLoanBlocks        = "LOAN_BLOCKS_WITHDRAWAL"
	errCodeNotSupplied       = "NOTHING_SUPPLIED"
	errCodeWithdrawTooLarge  = "WITHDRAW_EXCEEDS_SUPPLY"
	errCodeNothingToRepay    = "NOTHING_TO_REPAY"
	errCodeRepayTooLarge     = "REPAY_EXCEEDS_DEBT"
	errCodeNoLiquidity       = "INSUFFICIENT_LIQUIDITY"
	errCodePriceUnavailable  = "PRICE_UNAVAILABLE"
	errCodeUnauthorized      = "UNAUTHORIZED"
	errCodeAccrualNotDue     = "ACCRUAL_NOT_DUE"
	errCodeInternalError     = "INTERNAL_ERROR"
)

// Server is the HTTP JSON surface over the ledger. Callers identify
// themselves with the X-Account header; verifying that identity is out of
// scope here and belongs to whatever fronts this service.
type Server struct {
	router      *mux.Router
	ledger      service.LedgerService
	valuation   service.ValuationService
	accrual     service.AccrualService
	liquidation service.LiquidationService
	registry    *models.AssetRegistry
}

// NewServer creates a new API server
func NewServer(ledger service.LedgerService, valuation service.ValuationService, accrual service.AccrualService, liquidation service.LiquidationService, registry *models.AssetRegistry) *Server {
	server := &Server{
		router:      mux.NewRouter(),
		ledger:      ledger,
		valuation:   valuation,
		accrual:     accrual,
		liquidation: liquidation,
		registry:    registry,
	}
	server.routes()
	return server
}

// Handler returns the root handler with CORS applied
func (s *Server) Handler() http.Handler {
	return cors.Default().Handler(s.router)
}

// routes sets up the API routes
func (s *Server) routes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/assets", s.handleListAssets()).Methods("GET")
	v1.HandleFunc("/markets/{asset}", s.handleGetMarket()).Methods("GET")
	v1.HandleFunc("/suppliers", s.handleListUsers(s.ledger.Suppliers)).Methods("GET")
	v1.HandleFunc("/borrowers", s.handleListUsers(s.ledger.Borrowers)).Methods("GET")

	v1.HandleFunc("/positions", s.handleGetPositions()).Methods("GET")
	v1.HandleFunc("/positions/limits", s.handleGetLimits()).Methods("GET")
	v1.HandleFunc("/history", s.handleGetHistory()).Methods("GET")

	v1.HandleFunc("/supply", s.handleMutation(s.ledger.Supply)).Methods("POST")
	v1.HandleFunc("/withdraw", s.handleMutation(s.ledger.Withdraw)).Methods("POST")
	v1.HandleFunc("/borrow", s.handleMutation(s.ledger.Borrow)).Methods("POST")
	v1.HandleFunc("/repay", s.handleMutation(s.ledger.Repay)).Methods("POST")

	v1.HandleFunc("/accrual", s.handleGetAccrual()).Methods("GET")
	v1.HandleFunc("/liquidate", s.handleLiquidate()).Methods("POST")

	v1.HandleFunc("/health", s.handleHealth()).Methods("GET")
}

// writeJSONError writes a standardized JSON error response
func writeJSONError(w http.ResponseWriter, statusCode int, errCode string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]apiError{"error": {Code: errCode, Message: message}})
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// account extracts the caller's account from the X-Account header
func account(r *http.Request) (string, bool) {
	acct := r.Header.Get("X-Account")
	return acct, acct != ""
}

// writeServiceError maps domain sentinels onto HTTP statuses and error codes
func writeServiceError(w http.ResponseWriter, err error) {
	for _, mapping := range []struct {
		sentinel error
		status   int
		code     string
	}{
		{models.ErrInvalidAmount, http.StatusBadRequest, errCodeInvalidInput},
		{models.ErrAssetNotAllowed, http.StatusBadRequest, errCodeAssetNotAllowed},
		{models.ErrNotSupplied, http.StatusConflict, errCodeNotSupplied},
		{models.ErrWithdrawExceedsSupply, http.StatusConflict, errCodeWithdrawTooLarge},
		{models.ErrLoanBlocksWithdrawal, http.StatusConflict, errCodeLoanBlocks},
		{models.ErrInsufficientLiquidity, http.StatusConflict, errCodeNoLiquidity},
		{models.ErrExceedsCollateralRatio, http.StatusConflict, errCodeCollateralBreach},
		{models.ErrNothingToRepay, http.StatusConflict, errCodeNothingToRepay},
		{models.ErrRepayExceedsDebt, http.StatusConflict, errCodeRepayTooLarge},
		{models.ErrInsufficientFunds, http.StatusConflict, errCodeInsufficientFunds},
		{models.ErrPriceUnavailable, http.StatusServiceUnavailable, errCodePriceUnavailable},
		{models.ErrUnauthorized, http.StatusForbidden, errCodeUnauthorized},
		{models.ErrAccrualNotDue, http.StatusConflict, errCodeAccrualNotDue},
	} {
		if errors.Is(err, mapping.sentinel) {
			writeJSONError(w, mapping.status, mapping.code, mapping.sentinel.Error())
			return
		}
	}

	log.WithError(err).Error("Unhandled service error")
	writeJSONError(w, http.StatusInternalServerError, errCodeInternalError, "internal error")
}

// mutationRequest is the body of all four ledger mutations. Amount is an
// 18-decimal fixed-point integer as a decimal string.
type mutationRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a base-10 integer", s)
	}
	return amount, nil
}

// handleMutation adapts one of the four ledger mutations to HTTP
func (s *Server) handleMutation(op func(ctx context.Context, assetID, userID string, amount *big.Int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := account(r)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, errCodeMissingAccount, "X-Account header is required")
			return
		}

		var req mutationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, errCodeInvalidInput, "malformed JSON body")
			return
		}

		amount, err := parseAmount(req.Amount)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, errCodeInvalidInput, err.Error())
			return
		}

		if err := op(r.Context(), req.Asset, caller, amount); err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleListAssets() http.HandlerFunc {
	type assetResponse struct {
		ID     string `json:"id"`
		FeedID string `json:"feedID"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		assets := s.registry.List()
		response := make([]assetResponse, 0, len(assets))
		for _, a := range assets {
			response = append(response, assetResponse{ID: a.ID, FeedID: a.FeedID})
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func (s *Server) handleGetMarket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assetID := mux.Vars(r)["asset"]

		total, err := s.ledger.TotalSupply(r.Context(), assetID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"asset":       assetID,
			"totalSupply": total.String(),
		})
	}
}

func (s *Server) handleListUsers(list func(ctx context.Context) ([]string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := list(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if users == nil {
			users = []string{}
		}
		writeJSON(w, http.StatusOK, users)
	}
}

func (s *Server) handleGetPositions() http.HandlerFunc {
	type position struct {
		Asset   string `json:"asset"`
		Balance string `json:"balance"`
	}
	type response struct {
		Supplies []position `json:"supplies"`
		Borrows  []position `json:"borrows"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := account(r)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, errCodeMissingAccount, "X-Account header is required")
			return
		}

		resp := response{Supplies: []position{}, Borrows: []position{}}

		for _, side := range []struct {
			assets  func(ctx context.Context, userID string) ([]string, error)
			balance func(ctx context.Context, assetID, userID string) (*big.Int, error)
			out     *[]position
		}{
			{s.ledger.SuppliedAssets, s.ledger.SupplyBalance, &resp.Supplies},
			{s.ledger.BorrowedAssets, s.ledger.BorrowBalance, &resp.Borrows},
		} {
			assets, err := side.assets(r.Context(), caller)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			for _, assetID := range assets {
				balance, err := side.balance(r.Context(), assetID, caller)
				if err != nil {
					writeServiceError(w, err)
					return
				}
				*side.out = append(*side.out, position{Asset: assetID, Balance: balance.String()})
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleGetLimits() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := account(r)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, errCodeMissingAccount, "X-Account header is required")
			return
		}

		supplyUSD, err := s.valuation.SupplyValueUSD(r.Context(), caller)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		borrowUSD, err := s.valuation.BorrowValueUSD(r.Context(), caller)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		headroomUSD, err := s.valuation.MaxAdditionalBorrowUSD(r.Context(), caller)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		response := map[string]string{
			"supplyValueUSD":         supplyUSD.String(),
			"borrowValueUSD":         borrowUSD.String(),
			"maxAdditionalBorrowUSD": headroomUSD.String(),
		}

		// Per-asset limits when requested
		if assetID := r.URL.Query().Get("asset"); assetID != "" {
			maxBorrow, err := s.valuation.MaxTokenBorrow(r.Context(), assetID, caller)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			maxWithdraw, err := s.valuation.MaxWithdraw(r.Context(), assetID, caller)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			response["asset"] = assetID
			response["maxTokenBorrow"] = maxBorrow.String()
			response["maxWithdraw"] = maxWithdraw.String()
		}

		writeJSON(w, http.StatusOK, response)
	}
}

func (s *Server) handleGetHistory() http.HandlerFunc {
	type entryResponse struct {
		Asset         string         `json:"asset"`
		EntryType     string         `json:"entryType"`
		Amount        string         `json:"amount"`
		BalanceBefore string         `json:"balanceBefore"`
		BalanceAfter  string         `json:"balanceAfter"`
		Metadata      map[string]any `json:"metadata,omitempty"`
		CreatedAt     string         `json:"createdAt"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := account(r)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, errCodeMissingAccount, "X-Account header is required")
			return
		}

		entries, err := s.ledger.History(r.Context(), caller, 100)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		response := make([]entryResponse, 0, len(entries))
		for _, e := range entries {
			response = append(response, entryResponse{
				Asset:         e.AssetID,
				EntryType:     string(e.EntryType),
				Amount:        e.Amount.String(),
				BalanceBefore: e.BalanceBefore.String(),
				BalanceAfter:  e.BalanceAfter.String(),
				Metadata:      e.Metadata,
				CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339Nano),
			})
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func (s *Server) handleGetAccrual() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		last, err := s.accrual.LastAccrualAt(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		due, err := s.accrual.CheckDue(r.Context(), time.Now())
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"lastAccrualAt":   last.UTC().Format(time.RFC3339Nano),
			"intervalSeconds": int(s.accrual.Interval().Seconds()),
			"due":             due,
		})
	}
}

func (s *Server) handleLiquidate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := account(r)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, errCodeMissingAccount, "X-Account header is required")
			return
		}

		liquidated, err := s.liquidation.Liquidate(r.Context(), caller)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if liquidated == nil {
			liquidated = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"liquidated": liquidated})
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
