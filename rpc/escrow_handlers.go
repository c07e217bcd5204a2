package rpc

import (
	"fmt"
	"math/big"
	"net/http"

	"harvestmart/core/types"
	"harvestmart/native/escrow"
)

type escrowCreateParams struct {
	Buyer            string `json:"buyer"`
	Seller           string `json:"seller"`
	Amount           string `json:"amount"`
	ItemRef          string `json:"itemRef"`
	DeliveryDeadline int64  `json:"deliveryDeadline"`
}

type escrowIDParams struct {
	ID uint64 `json:"id"`
}

type escrowCallerParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
}

type escrowResolveParams struct {
	ID        uint64 `json:"id"`
	Caller    string `json:"caller"`
	BuyerWins bool   `json:"buyerWins"`
}

type escrowListParams struct {
	Status string `json:"status"`
}

// escrowView is the wire shape for a custody record. Amounts are decimal
// strings so a 256-bit value survives JSON intact.
type escrowView struct {
	ID               uint64 `json:"id"`
	Buyer            string `json:"buyer"`
	Seller           string `json:"seller"`
	Amount           string `json:"amount"`
	FeeBps           uint32 `json:"feeBps"`
	ItemRef          string `json:"itemRef,omitempty"`
	DeliveryDeadline int64  `json:"deliveryDeadline"`
	CreatedAt        int64  `json:"createdAt"`
	Status           string `json:"status"`
}

func newEscrowView(e *escrow.Escrow) escrowView {
	return escrowView{
		ID:               e.ID,
		Buyer:            types.FormatAddress(e.Buyer),
		Seller:           types.FormatAddress(e.Seller),
		Amount:           e.Amount.String(),
		FeeBps:           e.FeeBps,
		ItemRef:          e.ItemRef,
		DeliveryDeadline: e.DeliveryDeadline,
		CreatedAt:        e.CreatedAt,
		Status:           e.Status.String(),
	}
}

func parseStatus(s string) (escrow.Status, error) {
	switch s {
	case "active":
		return escrow.StatusActive, nil
	case "completed":
		return escrow.StatusCompleted, nil
	case "disputed":
		return escrow.StatusDisputed, nil
	case "refunded":
		return escrow.StatusRefunded, nil
	default:
		return 0, fmt.Errorf("unknown status %q", s)
	}
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func (s *Server) handleEscrowCreate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowCreateParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	buyer, err := types.ParseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", fmt.Sprintf("buyer: %v", err))
		return
	}
	noteCaller(w, types.FormatAddress(buyer))
	seller, err := types.ParseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", fmt.Sprintf("seller: %v", err))
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	esc, err := s.escrow.Create(buyer, seller, params.ItemRef, params.DeliveryDeadline, amount)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newEscrowView(esc))
}

func (s *Server) handleEscrowConfirmDelivery(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowCallerParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", fmt.Sprintf("caller: %v", err))
		return
	}
	noteCaller(w, types.FormatAddress(caller))
	if err := s.escrow.ConfirmDelivery(params.ID, caller); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"id": params.ID, "status": escrow.StatusCompleted.String()})
}

func (s *Server) handleEscrowAutoRelease(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowIDParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if err := s.escrow.AutoRelease(params.ID); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"id": params.ID, "status": escrow.StatusCompleted.String()})
}

func (s *Server) handleEscrowRequestRefund(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowCallerParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", fmt.Sprintf("caller: %v", err))
		return
	}
	noteCaller(w, types.FormatAddress(caller))
	if err := s.escrow.RequestRefund(params.ID, caller); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"id": params.ID, "status": escrow.StatusDisputed.String()})
}

func (s *Server) handleEscrowResolveDispute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowResolveParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", fmt.Sprintf("caller: %v", err))
		return
	}
	noteCaller(w, types.FormatAddress(caller))
	if err := s.escrow.ResolveDispute(params.ID, caller, params.BuyerWins); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	status := escrow.StatusCompleted
	if params.BuyerWins {
		status = escrow.StatusRefunded
	}
	writeResult(w, req.ID, map[string]interface{}{"id": params.ID, "status": status.String()})
}

func (s *Server) handleEscrowSweepExpired(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "no parameters expected")
		return
	}
	released, err := s.escrow.SweepExpired()
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	if released == nil {
		released = []uint64{}
	}
	writeResult(w, req.ID, map[string]interface{}{"released": released})
}

func (s *Server) handleEscrowGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowIDParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	esc, ok := s.escrow.Get(params.ID)
	if !ok {
		s.writeEngineError(w, req.ID, escrow.ErrEscrowNotFound)
		return
	}
	writeResult(w, req.ID, newEscrowView(esc))
}

func (s *Server) handleEscrowListByStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowListParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	status, err := parseStatus(params.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	records, err := s.escrow.ListByStatus(status)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	views := make([]escrowView, 0, len(records))
	for _, rec := range records {
		views = append(views, newEscrowView(rec))
	}
	writeResult(w, req.ID, views)
}
