package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"TaxPool/internal/bank"
	"TaxPool/internal/ledger"
	"TaxPool/internal/model"
	"TaxPool/internal/oracle"
	"TaxPool/internal/recorder"
	"TaxPool/internal/vault"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testServer struct {
	srv   *httptest.Server
	auth  *Authenticator
	coord *oracle.Coordinator
	now   *time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	native, link := bank.New("ETH"), bank.New("LINK")
	for _, a := range []model.Address{"alice", "admin"} {
		if err := native.Mint(a, model.Ether(10)); err != nil {
			t.Fatal(err)
		}
	}
	if err := link.Mint("ledger", model.Ether(1)); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := recorder.NewMemoryRecorder()
	v := vault.New(native, "vault", "admin", "ledger", rec)
	if err := v.Deposit("admin", model.Ether(2)); err != nil {
		t.Fatal(err)
	}
	coord := oracle.NewCoordinator("coordinator", link, "k", model.Bps(model.Ether(1), 1000), 4)
	l, err := ledger.New(ledger.Config{
		Address:        "ledger",
		DevWallet:      "dev",
		DevFeeBps:      100,
		TaxBps:         1900,
		SellTaxBps:     1900,
		MinPurchase:    model.Bps(model.Ether(1), 100),
		Interval:       7 * 24 * time.Hour,
		Coordinator:    coord.Address(),
		CoordinatorKey: coord.PublicKey(),
		KeyID:          "k",
		OracleFee:      model.Bps(model.Ether(1), 1000),
	}, ledger.Deps{
		Native: native, FeeToken: link, Vault: v, Oracle: coord, Recorder: rec,
		Now: func() time.Time { return now },
	})
	if err != nil {
		t.Fatal(err)
	}
	auth, err := NewAuthenticator([]byte(testSecret), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	ts := &testServer{auth: auth, coord: coord, now: &now}
	ts.srv = httptest.NewServer(NewRouter(NewHandler(l, v), auth))
	t.Cleanup(ts.srv.Close)
	return ts
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  struct {
		Code string `json:"code"`
	} `json:"error"`
}

// do sends a request authenticated as account; an empty account sends no token.
func (ts *testServer) do(t *testing.T, method, path, account, body string) (int, envelope) {
	t.Helper()
	headers := map[string]string{}
	if account != "" {
		token, err := ts.auth.Issue(model.Address(account))
		if err != nil {
			t.Fatal(err)
		}
		headers["Authorization"] = "Bearer " + token
	}
	return ts.send(t, method, path, body, headers)
}

func (ts *testServer) send(t *testing.T, method, path, body string, headers map[string]string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func TestBuySellAndBalance(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(t, http.MethodPost, "/v1/buy", "alice", `{"payment":"1 ether"}`)
	if code != http.StatusOK {
		t.Fatalf("buy: %d %+v", code, env)
	}
	var bought struct {
		TokensIssued string `json:"tokens_issued"`
	}
	json.Unmarshal(env.Data, &bought)
	if bought.TokensIssued != "800000000000000000" {
		t.Errorf("tokens issued = %s", bought.TokensIssued)
	}

	code, env = ts.do(t, http.MethodGet, "/v1/accounts/alice/balance", "", "")
	var bal struct {
		Balance string `json:"balance"`
	}
	json.Unmarshal(env.Data, &bal)
	if code != http.StatusOK || bal.Balance != "800000000000000000" {
		t.Errorf("balance: %d %s", code, bal.Balance)
	}

	code, env = ts.do(t, http.MethodPost, "/v1/sell", "alice", `{"amount":"0.5 ether"}`)
	var sold struct {
		Proceeds string `json:"proceeds"`
	}
	json.Unmarshal(env.Data, &sold)
	if code != http.StatusOK || sold.Proceeds != "405000000000000000" {
		t.Errorf("sell: %d %s", code, sold.Proceeds)
	}
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name    string
		method  string
		path    string
		account string
		body    string
		status  int
		code    string
	}{
		{"missing account", http.MethodPost, "/v1/buy", "", `{"payment":"1"}`, http.StatusUnauthorized, "unauthorized"},
		{"bad json", http.MethodPost, "/v1/buy", "alice", `{`, http.StatusBadRequest, "invalid_json"},
		{"zero buy", http.MethodPost, "/v1/buy", "alice", `{"payment":"0"}`, http.StatusBadRequest, "invalid_amount"},
		{"below minimum", http.MethodPost, "/v1/buy", "alice", `{"payment":"0.001 ether"}`, http.StatusBadRequest, "invalid_amount"},
		{"unparseable", http.MethodPost, "/v1/buy", "alice", `{"payment":"lots"}`, http.StatusBadRequest, "invalid_amount"},
		{"cannot pay", http.MethodPost, "/v1/buy", "bob", `{"payment":"1 ether"}`, http.StatusConflict, "insufficient_funds"},
		{"zero sell", http.MethodPost, "/v1/sell", "alice", `{"amount":"0"}`, http.StatusBadRequest, "invalid_amount"},
		{"overdraft", http.MethodPost, "/v1/sell", "alice", `{"amount":"1"}`, http.StatusConflict, "insufficient_balance"},
		{"not due", http.MethodPost, "/v1/upkeep", "keeper", ``, http.StatusConflict, "not_due"},
		{"withdraw by stranger", http.MethodPost, "/v1/vault/emergency-withdraw", "alice", `{"recipient":"alice","amount":"1"}`, http.StatusForbidden, "not_authorized"},
		{"withdraw too much", http.MethodPost, "/v1/vault/emergency-withdraw", "admin", `{"recipient":"safe","amount":"5 ether"}`, http.StatusConflict, "insufficient_funds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := ts.do(t, tt.method, tt.path, tt.account, tt.body)
			if code != tt.status || env.Error.Code != tt.code {
				t.Errorf("got %d %q, want %d %q", code, env.Error.Code, tt.status, tt.code)
			}
		})
	}
}

func TestUpkeepFlow(t *testing.T) {
	ts := newTestServer(t)
	if code, _ := ts.do(t, http.MethodPost, "/v1/buy", "alice", `{"payment":"2 ether"}`); code != http.StatusOK {
		t.Fatal("buy failed")
	}

	_, env := ts.do(t, http.MethodGet, "/v1/upkeep", "", "")
	var check struct {
		UpkeepNeeded bool   `json:"upkeep_needed"`
		Aux          string `json:"aux"`
	}
	json.Unmarshal(env.Data, &check)
	if check.UpkeepNeeded || len(check.Aux) != 64 {
		t.Fatalf("check before interval = %+v", check)
	}

	*ts.now = ts.now.Add(7 * 24 * time.Hour)
	code, env := ts.do(t, http.MethodPost, "/v1/upkeep", "keeper", `{"aux":"0x`+check.Aux+`"}`)
	if code != http.StatusAccepted {
		t.Fatalf("perform: %d %+v", code, env)
	}
	var performed struct {
		RequestID string `json:"request_id"`
	}
	json.Unmarshal(env.Data, &performed)

	if code, env := ts.do(t, http.MethodPost, "/v1/upkeep", "keeper", ``); code != http.StatusConflict || env.Error.Code != "request_pending" {
		t.Errorf("second perform: %d %q", code, env.Error.Code)
	}

	_, env = ts.do(t, http.MethodGet, "/v1/status", "", "")
	var st statusDTO
	json.Unmarshal(env.Data, &st)
	if st.Pending == nil || st.Pending.RequestID != performed.RequestID || st.TaxPool != "380000000000000000" {
		t.Errorf("status = %+v", st)
	}

	ts.coord.Drain(context.Background())

	_, env = ts.do(t, http.MethodGet, "/v1/requests/"+performed.RequestID, "", "")
	var req struct {
		Fulfilled bool `json:"fulfilled"`
	}
	json.Unmarshal(env.Data, &req)
	if !req.Fulfilled {
		t.Error("request should be fulfilled")
	}
}

func TestEmergencyWithdraw(t *testing.T) {
	ts := newTestServer(t)
	code, env := ts.do(t, http.MethodPost, "/v1/vault/emergency-withdraw", "admin", `{"recipient":"safe","amount":"1.5 ether"}`)
	if code != http.StatusOK {
		t.Fatalf("withdraw: %d %+v", code, env)
	}
	var out map[string]string
	json.Unmarshal(env.Data, &out)
	if out["vault_balance"] != "500000000000000000" {
		t.Errorf("vault balance = %s", out["vault_balance"])
	}
}

func TestAuth_SpoofedAccountRejected(t *testing.T) {
	ts := newTestServer(t)
	withdraw := `{"recipient":"mallory","amount":"1 ether"}`

	forged, err := (&Authenticator{secret: []byte("not-the-server-secret-at-all-000"), ttl: time.Hour, now: time.Now}).Issue("admin")
	if err != nil {
		t.Fatal(err)
	}
	stale := &Authenticator{secret: []byte(testSecret), ttl: time.Hour, now: func() time.Time { return time.Now().Add(-2 * time.Hour) }}
	expired, err := stale.Issue("admin")
	if err != nil {
		t.Fatal(err)
	}
	alice, err := ts.auth.Issue("alice")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		headers map[string]string
		status  int
	}{
		{"header only", map[string]string{"X-Account": "admin"}, http.StatusUnauthorized},
		{"wrong secret", map[string]string{"Authorization": "Bearer " + forged}, http.StatusUnauthorized},
		{"expired", map[string]string{"Authorization": "Bearer " + expired}, http.StatusUnauthorized},
		{"garbage", map[string]string{"Authorization": "Bearer admin"}, http.StatusUnauthorized},
		{"not bearer", map[string]string{"Authorization": "Basic YWRtaW46"}, http.StatusUnauthorized},
		{"header ignored", map[string]string{"Authorization": "Bearer " + alice, "X-Account": "admin"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := ts.send(t, http.MethodPost, "/v1/vault/emergency-withdraw", withdraw, tt.headers)
			if code != tt.status {
				t.Errorf("got %d %q, want %d", code, env.Error.Code, tt.status)
			}
		})
	}

	_, env := ts.do(t, http.MethodGet, "/v1/status", "", "")
	var st statusDTO
	json.Unmarshal(env.Data, &st)
	if st.VaultBalance != "2000000000000000000" {
		t.Errorf("vault balance after rejected withdrawals = %s", st.VaultBalance)
	}
}

func TestAuthenticator_RoundTrip(t *testing.T) {
	auth, err := NewAuthenticator([]byte(testSecret), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	token, err := auth.Issue("alice")
	if err != nil {
		t.Fatal(err)
	}
	account, err := auth.Parse(token)
	if err != nil || account != "alice" {
		t.Fatalf("parse = %q, %v", account, err)
	}
	if _, err := auth.Issue(""); err == nil {
		t.Error("expected error for empty account")
	}
	if _, err := NewAuthenticator(nil, time.Minute); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	code, env := ts.do(t, http.MethodGet, "/healthz", "", "")
	if code != http.StatusOK || env.Status != "success" {
		t.Errorf("healthz: %d %+v", code, env)
	}
}
