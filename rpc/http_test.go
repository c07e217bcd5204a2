package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"harvestmart/core/types"
	"harvestmart/native/escrow"
	"harvestmart/native/fees"
	"harvestmart/native/presale"
	"harvestmart/storage"
)

const testToken = "test-token"

var (
	testBuyer  = [20]byte{0x0b, 0x01}
	testSeller = [20]byte{0x0c, 0x01}
	testAdmin  = [20]byte{0x0a, 0x01}
	testVault  = [20]byte{0x0f, 0x01}
)

func newTestServer(t *testing.T) (*Server, *storage.Ledger) {
	t.Helper()
	ledger := storage.NewLedger(storage.NewMemDB())
	if err := ledger.GrantRole(presale.RoleMarketAdmin, testAdmin); err != nil {
		t.Fatalf("grant admin: %v", err)
	}
	if err := ledger.GrantRole(escrow.RoleArbiter, testAdmin); err != nil {
		t.Fatalf("grant arbiter: %v", err)
	}
	if err := ledger.PutAccount(testBuyer, &types.Account{Balance: big.NewInt(1_000_000)}); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}
	calc, err := fees.NewCalculator(250, [20]byte{0xfe, 0x01})
	if err != nil {
		t.Fatalf("calculator: %v", err)
	}
	escrowEngine := escrow.NewEngine()
	escrowEngine.SetState(ledger)
	escrowEngine.SetFees(calc)
	escrowEngine.SetVault(testVault)
	escrowEngine.SetNowFunc(func() int64 { return 10_000 })
	escrowEngine.SetPauses(ledger)
	presaleEngine := presale.NewEngine()
	presaleEngine.SetState(ledger)
	presaleEngine.SetNowFunc(func() int64 { return 10_000 })
	presaleEngine.SetPauses(ledger)
	srv := NewServer(escrowEngine, presaleEngine, calc, ledger, nil, nil, ServerConfig{AuthToken: testToken})
	return srv, ledger
}

func rpcCall(t *testing.T, handler http.Handler, token, method string, params interface{}) (int, RPCResponse) {
	t.Helper()
	reqParams := []interface{}{}
	if params != nil {
		reqParams = append(reqParams, params)
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
		"params":  reqParams,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var resp RPCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, resp
}

func resultMap(t *testing.T, resp RPCResponse) map[string]interface{} {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	out, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result is %T, want object", resp.Result)
	}
	return out
}

func TestEscrowCreateAndGet(t *testing.T) {
	srv, ledger := newTestServer(t)
	router := srv.Router()

	status, resp := rpcCall(t, router, testToken, "escrow_create", escrowCreateParams{
		Buyer:            types.FormatAddress(testBuyer),
		Seller:           types.FormatAddress(testSeller),
		Amount:           "10000",
		ItemRef:          "lot-42",
		DeliveryDeadline: 20_000,
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	created := resultMap(t, resp)
	if created["id"].(float64) != 1 {
		t.Fatalf("id = %v, want 1", created["id"])
	}
	if created["status"] != "active" {
		t.Fatalf("status = %v, want active", created["status"])
	}

	vaultAcc, err := ledger.GetAccount(testVault)
	if err != nil {
		t.Fatalf("vault account: %v", err)
	}
	if vaultAcc.Balance.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("vault balance = %s, want 10000", vaultAcc.Balance)
	}

	status, resp = rpcCall(t, router, "", "escrow_get", escrowIDParams{ID: 1})
	if status != http.StatusOK {
		t.Fatalf("get status = %d, want 200", status)
	}
	got := resultMap(t, resp)
	if got["amount"] != "10000" || got["feeBps"].(float64) != 250 {
		t.Fatalf("unexpected view: %v", got)
	}
}

func TestMutatingMethodsRequireBearerToken(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	status, resp := rpcCall(t, router, "", "escrow_create", escrowCreateParams{
		Buyer:            types.FormatAddress(testBuyer),
		Seller:           types.FormatAddress(testSeller),
		Amount:           "10000",
		DeliveryDeadline: 20_000,
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("error = %+v, want code %d", resp.Error, codeUnauthorized)
	}

	status, resp = rpcCall(t, router, "wrong-token", "escrow_create", escrowCreateParams{
		Buyer:            types.FormatAddress(testBuyer),
		Seller:           types.FormatAddress(testSeller),
		Amount:           "10000",
		DeliveryDeadline: 20_000,
	})
	if status != http.StatusUnauthorized || resp.Error == nil {
		t.Fatalf("wrong token: status = %d error = %+v", status, resp.Error)
	}
}

func TestMethodNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	status, resp := rpcCall(t, srv.Router(), "", "escrow_destroy", escrowIDParams{ID: 1})
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("error = %+v, want code %d", resp.Error, codeMethodNotFound)
	}
}

func TestEngineErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	status, resp := rpcCall(t, router, "", "escrow_get", escrowIDParams{ID: 99})
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	if resp.Error == nil || resp.Error.Code != codeNotFound {
		t.Fatalf("error = %+v, want code %d", resp.Error, codeNotFound)
	}

	status, resp = rpcCall(t, router, testToken, "escrow_create", escrowCreateParams{
		Buyer:            types.FormatAddress(testBuyer),
		Seller:           types.FormatAddress(testSeller),
		Amount:           "0",
		DeliveryDeadline: 20_000,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("error = %+v, want code %d", resp.Error, codeInvalidParams)
	}
	if resp.Error.Data != escrow.ErrInvalidAmount.Error() {
		t.Fatalf("error data = %v, want %q", resp.Error.Data, escrow.ErrInvalidAmount.Error())
	}
}

func TestPresaleLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	_, resp := rpcCall(t, router, testToken, "presale_create", presaleCreateParams{
		Caller:      types.FormatAddress(testAdmin),
		WindowStart: 5_000,
		WindowEnd:   50_000,
		UnitPrice:   "100",
		MinPurchase: 1,
		MaxPurchase: 10,
		TotalSupply: 100,
	})
	created := resultMap(t, resp)
	if created["id"].(float64) != 1 || created["remaining"].(float64) != 100 {
		t.Fatalf("unexpected presale view: %v", created)
	}

	_, resp = rpcCall(t, router, testToken, "presale_purchase", presalePurchaseParams{
		ID:       1,
		Buyer:    types.FormatAddress(testBuyer),
		Units:    5,
		Tendered: "520",
	})
	purchase := resultMap(t, resp)
	if purchase["refundDue"] != "20" {
		t.Fatalf("refundDue = %v, want 20", purchase["refundDue"])
	}

	_, resp = rpcCall(t, router, "", "presale_buyerUnits", presaleBuyerParams{
		ID:    1,
		Buyer: types.FormatAddress(testBuyer),
	})
	units := resultMap(t, resp)
	if units["units"].(float64) != 5 {
		t.Fatalf("units = %v, want 5", units["units"])
	}
}

func TestPresaleCreateRequiresAdminRole(t *testing.T) {
	srv, _ := newTestServer(t)
	status, resp := rpcCall(t, srv.Router(), testToken, "presale_create", presaleCreateParams{
		Caller:      types.FormatAddress(testBuyer),
		WindowStart: 5_000,
		WindowEnd:   50_000,
		UnitPrice:   "100",
		MinPurchase: 1,
		MaxPurchase: 10,
		TotalSupply: 100,
	})
	if status != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", status)
	}
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("error = %+v, want code %d", resp.Error, codeUnauthorized)
	}
}

func TestFeesAdmin(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	_, resp := rpcCall(t, router, "", "fees_info", nil)
	info := resultMap(t, resp)
	if info["rateBps"].(float64) != 250 {
		t.Fatalf("rateBps = %v, want 250", info["rateBps"])
	}

	_, resp = rpcCall(t, router, testToken, "fees_setRate", feesSetRateParams{
		Caller:  types.FormatAddress(testAdmin),
		RateBps: 125,
	})
	updated := resultMap(t, resp)
	if updated["rateBps"].(float64) != 125 {
		t.Fatalf("rateBps = %v, want 125", updated["rateBps"])
	}

	status, resp := rpcCall(t, router, testToken, "fees_setRate", feesSetRateParams{
		Caller:  types.FormatAddress(testBuyer),
		RateBps: 10,
	})
	if status != http.StatusForbidden || resp.Error == nil {
		t.Fatalf("non-admin set rate: status = %d error = %+v", status, resp.Error)
	}
}

func TestRateLimitRejectsBurstOverflow(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.cfg.RateLimitPerSec = 0.001
	srv.cfg.RateLimitBurst = 1
	router := srv.Router()

	status, _ := rpcCall(t, router, "", "fees_info", nil)
	if status != http.StatusOK {
		t.Fatalf("first call status = %d, want 200", status)
	}
	status, resp := rpcCall(t, router, "", "fees_info", nil)
	if status != http.StatusTooManyRequests {
		t.Fatalf("second call status = %d, want 429", status)
	}
	if resp.Error == nil || resp.Error.Code != codeRateLimited {
		t.Fatalf("error = %+v, want code %d", resp.Error, codeRateLimited)
	}
}

func TestAdminPauseSwitch(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	status, resp := rpcCall(t, router, testToken, "admin_setPaused", adminSetPausedParams{
		Caller: types.FormatAddress(testBuyer),
		Module: "escrow",
		Paused: true,
	})
	if status != http.StatusForbidden || resp.Error == nil {
		t.Fatalf("non-admin pause: status = %d error = %+v", status, resp.Error)
	}

	_, resp = rpcCall(t, router, testToken, "admin_setPaused", adminSetPausedParams{
		Caller: types.FormatAddress(testAdmin),
		Module: "escrow",
		Paused: true,
	})
	paused := resultMap(t, resp)
	if paused["paused"] != true {
		t.Fatalf("pause result = %v", paused)
	}

	_, resp = rpcCall(t, router, "", "admin_pauses", nil)
	switches := resultMap(t, resp)
	if switches["escrow"] != true || switches["presale"] != false {
		t.Fatalf("pauses = %v", switches)
	}

	status, resp = rpcCall(t, router, testToken, "escrow_create", escrowCreateParams{
		Buyer:            types.FormatAddress(testBuyer),
		Seller:           types.FormatAddress(testSeller),
		Amount:           "10000",
		DeliveryDeadline: 20_000,
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("paused create status = %d, want 422", status)
	}
	if resp.Error == nil || resp.Error.Code != codePrecondition {
		t.Fatalf("paused create error = %+v, want code %d", resp.Error, codePrecondition)
	}
}

func TestAuditRecordsParsedCaller(t *testing.T) {
	srv, _ := newTestServer(t)
	audit, err := NewAuditStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("NewAuditStore: %v", err)
	}
	defer audit.Close()
	srv.audit = audit
	router := srv.Router()

	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  "escrow_create",
		"params": []interface{}{escrowCreateParams{
			Buyer:            types.FormatAddress(testBuyer),
			Seller:           types.FormatAddress(testSeller),
			Amount:           "10000",
			DeliveryDeadline: 20_000,
		}},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testToken)
	// A spoofed header must not reach the audit trail.
	req.Header.Set("X-Caller", "0xffffffffffffffffffffffffffffffffffffffff")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	var caller, outcome string
	row := audit.db.QueryRow(`SELECT caller, outcome FROM audit_log WHERE method = 'escrow_create'`)
	if err := row.Scan(&caller, &outcome); err != nil {
		t.Fatalf("scan audit row: %v", err)
	}
	if caller != types.FormatAddress(testBuyer) {
		t.Fatalf("audit caller = %q, want %q", caller, types.FormatAddress(testBuyer))
	}
	if outcome != "ok" {
		t.Fatalf("audit outcome = %q, want ok", outcome)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: code = %d body = %q", rec.Code, rec.Body.String())
	}
}
