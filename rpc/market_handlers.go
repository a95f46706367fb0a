package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"lyxmarket/crypto"
	"lyxmarket/native/fees"
	"lyxmarket/native/market"
	"lyxmarket/native/royalty"
	"lyxmarket/observability"
)

const (
	codeMarketInvalidParams = -32041
	codeMarketNotFound      = -32042
	codeMarketForbidden     = -32043
	codeMarketConflict      = -32044
	codeMarketPayment       = -32045
	codeMarketInternal      = -32046
)

type createListingParams struct {
	Collection  string `json:"collection"`
	AssetID     string `json:"assetId"`
	Seller      string `json:"seller"`
	Price       string `json:"price"`
	MetadataRef string `json:"metadataRef,omitempty"`
}

type listingIDParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller,omitempty"`
}

type purchaseParams struct {
	ListingID string `json:"listingId"`
	Buyer     string `json:"buyer"`
	Payment   string `json:"payment"`
}

type tradeActorParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
}

type resolveDisputeParams struct {
	ID      string `json:"id"`
	Caller  string `json:"caller"`
	Outcome string `json:"outcome"`
}

type balanceParams struct {
	Address string `json:"address"`
}

type listingJSON struct {
	ID          string `json:"id"`
	Collection  string `json:"collection"`
	AssetID     string `json:"assetId"`
	Seller      string `json:"seller"`
	Price       string `json:"price"`
	MetadataRef string `json:"metadataRef,omitempty"`
	Active      bool   `json:"active"`
	CreatedAt   int64  `json:"createdAt"`
}

type tradeJSON struct {
	ID         string `json:"id"`
	ListingID  string `json:"listingId"`
	Collection string `json:"collection"`
	AssetID    string `json:"assetId"`
	Buyer      string `json:"buyer"`
	Seller     string `json:"seller"`
	Amount     string `json:"amount"`
	CreatedAt  int64  `json:"createdAt"`
	Status     string `json:"status"`
}

type balanceJSON struct {
	Address    string `json:"address"`
	BalanceLYX string `json:"balanceLYX"`
	Nonce      uint64 `json:"nonce"`
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.LYXPrefix, addr[:]).String()
}

func parseAddressParam(value, field string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, fmt.Errorf("invalid %s: %v", field, err)
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func parseHash32Param(value, field string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid %s: %v", field, err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("invalid %s: expected 32 bytes, got %d", field, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func parseAmountParam(value, field string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: not a decimal integer", field)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid %s: must be positive", field)
	}
	return amount, nil
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

// marketErrorCode maps engine sentinels onto the JSON-RPC error space so
// front-ends can distinguish "already sold" from "insufficient funds".
func marketErrorCode(err error) (int, string) {
	switch {
	case errors.Is(err, market.ErrNotFound):
		return codeMarketNotFound, "not_found"
	case errors.Is(err, market.ErrUnauthorized), errors.Is(err, market.ErrNotAssetOwner):
		return codeMarketForbidden, "forbidden"
	case errors.Is(err, market.ErrAlreadyListed),
		errors.Is(err, market.ErrNotListed),
		errors.Is(err, market.ErrInvalidState),
		errors.Is(err, market.ErrAlreadyHeld),
		errors.Is(err, market.ErrNotHeld),
		errors.Is(err, market.ErrTimeoutNotReached):
		return codeMarketConflict, "conflict"
	case errors.Is(err, market.ErrInsufficientPayment),
		errors.Is(err, market.ErrSplitMismatch),
		errors.Is(err, fees.ErrFeeExceedsPrice):
		return codeMarketPayment, "payment"
	case errors.Is(err, market.ErrTransferFailed),
		errors.Is(err, royalty.ErrMalformedRoyaltyData):
		return codeMarketInternal, "internal"
	default:
		return codeMarketInternal, "internal"
	}
}

func writeMarketError(w http.ResponseWriter, id interface{}, err error) int {
	code, message := marketErrorCode(err)
	status := http.StatusBadRequest
	switch code {
	case codeMarketNotFound:
		status = http.StatusNotFound
	case codeMarketForbidden:
		status = http.StatusForbidden
	case codeMarketConflict:
		status = http.StatusConflict
	case codeMarketInternal:
		status = http.StatusInternalServerError
	}
	writeError(w, status, id, code, message, err.Error())
	return code
}

func listingToJSON(l *market.Listing) listingJSON {
	price := "0"
	if l.Price != nil {
		price = l.Price.String()
	}
	return listingJSON{
		ID:          "0x" + hex.EncodeToString(l.ID[:]),
		Collection:  formatAddress(l.Collection),
		AssetID:     "0x" + hex.EncodeToString(l.AssetID[:]),
		Seller:      formatAddress(l.Seller),
		Price:       price,
		MetadataRef: l.MetadataRef,
		Active:      l.Active,
		CreatedAt:   l.CreatedAt,
	}
}

func tradeToJSON(t *market.Trade) tradeJSON {
	amount := "0"
	if t.Amount != nil {
		amount = t.Amount.String()
	}
	return tradeJSON{
		ID:         "0x" + hex.EncodeToString(t.ID[:]),
		ListingID:  "0x" + hex.EncodeToString(t.ListingID[:]),
		Collection: formatAddress(t.Collection),
		AssetID:    "0x" + hex.EncodeToString(t.AssetID[:]),
		Buyer:      formatAddress(t.Buyer),
		Seller:     formatAddress(t.Seller),
		Amount:     amount,
		CreatedAt:  t.CreatedAt,
		Status:     t.Status.String(),
	}
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	start := time.Now()
	var params createListingParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	collection, err := parseAddressParam(params.Collection, "collection")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	assetID, err := parseHash32Param(params.AssetID, "assetId")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	seller, err := parseAddressParam(params.Seller, "seller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	price, err := parseAmountParam(params.Price, "price")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	listing, err := s.registry.CreateListing(collection, assetID, seller, price, params.MetadataRef)
	if err != nil {
		code := writeMarketError(w, req.ID, err)
		observability.ModuleMetrics().ObserveRequest(req.Method, code, start)
		return
	}
	writeResult(w, req.ID, listingToJSON(listing))
	observability.ModuleMetrics().ObserveRequest(req.Method, 0, start)
}

func (s *Server) handleCancelListing(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	start := time.Now()
	var params listingIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	id, err := parseHash32Param(params.ID, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	caller, err := parseAddressParam(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	if err := s.registry.CancelListing(id, caller); err != nil {
		code := writeMarketError(w, req.ID, err)
		observability.ModuleMetrics().ObserveRequest(req.Method, code, start)
		return
	}
	writeResult(w, req.ID, true)
	observability.ModuleMetrics().ObserveRequest(req.Method, 0, start)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	start := time.Now()
	var params purchaseParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	listingID, err := parseHash32Param(params.ListingID, "listingId")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	buyer, err := parseAddressParam(params.Buyer, "buyer")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	payment, err := parseAmountParam(params.Payment, "payment")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	trade, err := s.engine.Purchase(listingID, buyer, payment)
	if err != nil {
		code := writeMarketError(w, req.ID, err)
		observability.ModuleMetrics().ObserveRequest(req.Method, code, start)
		return
	}
	writeResult(w, req.ID, tradeToJSON(trade))
	observability.ModuleMetrics().ObserveRequest(req.Method, 0, start)
}

func (s *Server) handleConfirmReceipt(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleTradeAction(w, req, func(id [32]byte, caller [20]byte) error {
		return s.engine.ConfirmReceipt(id, caller)
	})
}

func (s *Server) handleReclaim(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleTradeAction(w, req, func(id [32]byte, caller [20]byte) error {
		return s.engine.ReclaimAfterTimeout(id, caller)
	})
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleTradeAction(w, req, func(id [32]byte, caller [20]byte) error {
		return s.engine.Dispute(id, caller)
	})
}

func (s *Server) handleTradeAction(w http.ResponseWriter, req *RPCRequest, action func([32]byte, [20]byte) error) {
	start := time.Now()
	var params tradeActorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	id, err := parseHash32Param(params.ID, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	caller, err := parseAddressParam(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	if err := action(id, caller); err != nil {
		code := writeMarketError(w, req.ID, err)
		observability.ModuleMetrics().ObserveRequest(req.Method, code, start)
		return
	}
	writeResult(w, req.ID, true)
	observability.ModuleMetrics().ObserveRequest(req.Method, 0, start)
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	start := time.Now()
	var params resolveDisputeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	id, err := parseHash32Param(params.ID, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	caller, err := parseAddressParam(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	if err := s.engine.ResolveDispute(id, caller, params.Outcome); err != nil {
		code := writeMarketError(w, req.ID, err)
		observability.ModuleMetrics().ObserveRequest(req.Method, code, start)
		return
	}
	writeResult(w, req.ID, true)
	observability.ModuleMetrics().ObserveRequest(req.Method, 0, start)
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	start := time.Now()
	var params listingIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	id, err := parseHash32Param(params.ID, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	listing, err := s.engine.GetListing(id)
	if err != nil {
		code := writeMarketError(w, req.ID, err)
		observability.ModuleMetrics().ObserveRequest(req.Method, code, start)
		return
	}
	writeResult(w, req.ID, listingToJSON(listing))
	observability.ModuleMetrics().ObserveRequest(req.Method, 0, start)
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	start := time.Now()
	var params listingIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	id, err := parseHash32Param(params.ID, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	trade, err := s.engine.GetTrade(id)
	if err != nil {
		code := writeMarketError(w, req.ID, err)
		observability.ModuleMetrics().ObserveRequest(req.Method, code, start)
		return
	}
	writeResult(w, req.ID, tradeToJSON(trade))
	observability.ModuleMetrics().ObserveRequest(req.Method, 0, start)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	start := time.Now()
	var params balanceParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	addr, err := parseAddressParam(params.Address, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		observability.ModuleMetrics().ObserveRequest(req.Method, codeMarketInvalidParams, start)
		return
	}
	acc, err := s.state.GetAccount(addr[:])
	if err != nil {
		code := writeMarketError(w, req.ID, err)
		observability.ModuleMetrics().ObserveRequest(req.Method, code, start)
		return
	}
	writeResult(w, req.ID, balanceJSON{
		Address:    formatAddress(addr),
		BalanceLYX: acc.BalanceLYX.String(),
		Nonce:      acc.Nonce,
	})
	observability.ModuleMetrics().ObserveRequest(req.Method, 0, start)
}
