package rpc

import (
	"fmt"
	"net/http"

	nativecommon "harvestmart/native/common"
)

type adminSetPausedParams struct {
	Caller string `json:"caller"`
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

func validModule(name string) bool {
	for _, m := range nativecommon.Modules {
		if m == name {
			return true
		}
	}
	return false
}

func (s *Server) handleAdminSetPaused(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminSetPausedParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	noteCaller(w, params.Caller)
	if _, err := s.requireMarketAdmin(params.Caller); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	if !validModule(params.Module) {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", fmt.Sprintf("unknown module %q", params.Module))
		return
	}
	if err := s.roles.SetPaused(params.Module, params.Paused); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"module": params.Module, "paused": params.Paused})
}

func (s *Server) handleAdminPauses(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "no parameters expected")
		return
	}
	out := make(map[string]bool, len(nativecommon.Modules))
	for _, m := range nativecommon.Modules {
		out[m] = s.roles.IsPaused(m)
	}
	writeResult(w, req.ID, out)
}
