package rpc

import (
	"fmt"
	"net/http"

	"harvestmart/core/types"
	"harvestmart/native/presale"
)

type presaleCreateParams struct {
	Caller              string `json:"caller"`
	WindowStart         int64  `json:"windowStart"`
	WindowEnd           int64  `json:"windowEnd"`
	UnitPrice           string `json:"unitPrice"`
	MinPurchase         uint64 `json:"minPurchase"`
	MaxPurchase         uint64 `json:"maxPurchase"`
	TotalSupply         uint64 `json:"totalSupply"`
	EligibilityRequired bool   `json:"eligibilityRequired"`
}

type presalePurchaseParams struct {
	ID       uint64 `json:"id"`
	Buyer    string `json:"buyer"`
	Units    uint64 `json:"units"`
	Tendered string `json:"tendered"`
}

type presaleBuyerParams struct {
	ID    uint64 `json:"id"`
	Buyer string `json:"buyer"`
}

type presaleWhitelistParams struct {
	ID     uint64   `json:"id"`
	Caller string   `json:"caller"`
	Buyers []string `json:"buyers"`
}

type presaleSetActiveParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
	Active bool   `json:"active"`
}

type presaleIDParams struct {
	ID uint64 `json:"id"`
}

type presaleView struct {
	ID                  uint64 `json:"id"`
	WindowStart         int64  `json:"windowStart"`
	WindowEnd           int64  `json:"windowEnd"`
	UnitPrice           string `json:"unitPrice"`
	MinPurchase         uint64 `json:"minPurchase"`
	MaxPurchase         uint64 `json:"maxPurchase"`
	TotalSupply         uint64 `json:"totalSupply"`
	SoldSupply          uint64 `json:"soldSupply"`
	Remaining           uint64 `json:"remaining"`
	EligibilityRequired bool   `json:"eligibilityRequired"`
	Active              bool   `json:"active"`
	CreatedAt           int64  `json:"createdAt"`
}

func newPresaleView(p *presale.Presale) presaleView {
	return presaleView{
		ID:                  p.ID,
		WindowStart:         p.WindowStart,
		WindowEnd:           p.WindowEnd,
		UnitPrice:           p.UnitPrice.String(),
		MinPurchase:         p.MinPurchase,
		MaxPurchase:         p.MaxPurchase,
		TotalSupply:         p.TotalSupply,
		SoldSupply:          p.SoldSupply,
		Remaining:           p.Remaining(),
		EligibilityRequired: p.EligibilityRequired,
		Active:              p.Active,
		CreatedAt:           p.CreatedAt,
	}
}

func parseAddressList(raw []string) ([][20]byte, error) {
	addrs := make([][20]byte, 0, len(raw))
	for i, item := range raw {
		addr, err := types.ParseAddress(item)
		if err != nil {
			return nil, fmt.Errorf("buyers[%d]: %w", i, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func (s *Server) handlePresaleCreate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params presaleCreateParams
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
	price, err := parseAmount(params.UnitPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	sale, err := s.presale.Create(caller, params.WindowStart, params.WindowEnd, price, params.MinPurchase, params.MaxPurchase, params.TotalSupply, params.EligibilityRequired)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newPresaleView(sale))
}

func (s *Server) handlePresalePurchase(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params presalePurchaseParams
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
	tendered, err := parseAmount(params.Tendered)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	refundDue, err := s.presale.Purchase(params.ID, buyer, params.Units, tendered)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"id":        params.ID,
		"buyer":     params.Buyer,
		"units":     params.Units,
		"refundDue": refundDue.String(),
	})
}

func (s *Server) handlePresaleRefund(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params presaleBuyerParams
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
	refund, err := s.presale.Refund(params.ID, buyer)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"id":     params.ID,
		"buyer":  params.Buyer,
		"refund": refund.String(),
	})
}

func (s *Server) handlePresaleAddToWhitelist(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleWhitelistEdit(w, req, true)
}

func (s *Server) handlePresaleRemoveFromWhitelist(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleWhitelistEdit(w, req, false)
}

func (s *Server) handleWhitelistEdit(w http.ResponseWriter, req *RPCRequest, add bool) {
	var params presaleWhitelistParams
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
	buyers, err := parseAddressList(params.Buyers)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	var changed int
	if add {
		changed, err = s.presale.AddToWhitelist(params.ID, caller, buyers)
	} else {
		changed, err = s.presale.RemoveFromWhitelist(params.ID, caller, buyers)
	}
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"id": params.ID, "changed": changed})
}

func (s *Server) handlePresaleSetActive(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params presaleSetActiveParams
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
	if err := s.presale.SetActive(params.ID, caller, params.Active); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"id": params.ID, "active": params.Active})
}

func (s *Server) handlePresaleGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params presaleIDParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	sale, ok := s.presale.Get(params.ID)
	if !ok {
		s.writeEngineError(w, req.ID, presale.ErrPresaleNotFound)
		return
	}
	writeResult(w, req.ID, newPresaleView(sale))
}

func (s *Server) handlePresaleBuyerUnits(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params presaleBuyerParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	buyer, err := types.ParseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", fmt.Sprintf("buyer: %v", err))
		return
	}
	units, err := s.presale.BuyerUnits(params.ID, buyer)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"id": params.ID, "buyer": params.Buyer, "units": units})
}
