package rpc

import (
	"fmt"
	"net/http"

	"harvestmart/core/types"
	"harvestmart/native/presale"
)

type feesSetRateParams struct {
	Caller  string `json:"caller"`
	RateBps uint32 `json:"rateBps"`
}

type feesSetCollectorParams struct {
	Caller    string `json:"caller"`
	Collector string `json:"collector"`
}

type feesInfoView struct {
	RateBps   uint32 `json:"rateBps"`
	Collector string `json:"collector"`
}

// requireMarketAdmin gates fee administration on the same role that manages
// presales.
func (s *Server) requireMarketAdmin(raw string) ([20]byte, error) {
	caller, err := types.ParseAddress(raw)
	if err != nil {
		return [20]byte{}, fmt.Errorf("caller: %w", err)
	}
	if s.roles == nil || !s.roles.HasRole(presale.RoleMarketAdmin, caller) {
		return [20]byte{}, presale.ErrUnauthorized
	}
	return caller, nil
}

func (s *Server) handleFeesSetRate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params feesSetRateParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	noteCaller(w, params.Caller)
	if _, err := s.requireMarketAdmin(params.Caller); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	if err := s.fees.SetFeeRate(params.RateBps); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, feesInfoView{RateBps: s.fees.FeeRate(), Collector: types.FormatAddress(s.fees.Collector())})
}

func (s *Server) handleFeesSetCollector(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params feesSetCollectorParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	noteCaller(w, params.Caller)
	if _, err := s.requireMarketAdmin(params.Caller); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	collector, err := types.ParseAddress(params.Collector)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", fmt.Sprintf("collector: %v", err))
		return
	}
	if err := s.fees.SetFeeCollector(collector); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, feesInfoView{RateBps: s.fees.FeeRate(), Collector: types.FormatAddress(s.fees.Collector())})
}

func (s *Server) handleFeesInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "no parameters expected")
		return
	}
	writeResult(w, req.ID, feesInfoView{RateBps: s.fees.FeeRate(), Collector: types.FormatAddress(s.fees.Collector())})
}
