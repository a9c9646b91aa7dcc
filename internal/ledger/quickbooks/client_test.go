package quickbooks_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/urbix-hr/urbix/internal/ledger"
	"github.com/urbix-hr/urbix/internal/ledger/quickbooks"
)

type apiStub struct {
	t *testing.T

	tokenCalls   atomic.Int64
	queryCalls   atomic.Int64
	createCalls  atomic.Int64
	lastCreate   atomic.Pointer[map[string]any]
	queryMatches []map[string]any
	createStatus int
	createBody   string
	failCreates  int32 // respond 500 to the first N creates
}

func (s *apiStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/tokens", func(w http.ResponseWriter, r *http.Request) {
		s.tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "refresh_token" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-test", "refresh_token": "rt-next", "expires_in": 3600,
		})
	})
	mux.HandleFunc("/company/9130/query", func(w http.ResponseWriter, r *http.Request) {
		s.queryCalls.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer at-test" {
			s.t.Errorf("query auth header = %q", got)
		}
		q := r.URL.Query().Get("query")
		entity := strings.Fields(q)[3] // SELECT * FROM <entity> WHERE ...
		resp := map[string]any{"QueryResponse": map[string]any{}}
		if len(s.queryMatches) > 0 {
			resp["QueryResponse"] = map[string]any{entity: s.queryMatches}
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/company/9130/", func(w http.ResponseWriter, r *http.Request) {
		s.createCalls.Add(1)
		if atomic.AddInt32(&s.failCreates, -1) >= 0 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			s.t.Errorf("create payload not json: %v", err)
		}
		s.lastCreate.Store(&payload)
		if s.createStatus != 0 {
			w.WriteHeader(s.createStatus)
			io.WriteString(w, s.createBody)
			return
		}
		io.WriteString(w, `{"JournalEntry":{"Id":"77","SyncToken":"0"}}`)
	})
	return mux
}

func newTestClient(t *testing.T) (*quickbooks.Client, *apiStub) {
	t.Helper()
	stub := &apiStub{t: t, failCreates: -1}
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	client := quickbooks.NewClient(quickbooks.Credentials{
		ClientID:     "cid",
		ClientSecret: "secret",
		RefreshToken: "rt-initial",
		RealmID:      "9130",
		Environment:  "sandbox",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)),
		quickbooks.WithEndpoint(server.URL+"/company/9130"),
		quickbooks.WithTokenEndpoint(server.URL+"/oauth/tokens"),
		quickbooks.WithHTTPClient(server.Client()),
		quickbooks.WithMaxRetries(2),
	)
	return client, stub
}

func testEntry() ledger.JournalEntry {
	amount := decimal.NewFromInt(1500)
	return ledger.JournalEntry{
		DocNumber: "PR-202407",
		TxnDate:   time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC),
		Memo:      "Payroll for July 2024",
		Lines: []ledger.JournalLine{
			{Account: ledger.AccountRef{ID: "60", Name: "Salaries Expense"}, Side: ledger.SideDebit, Amount: amount, Description: "Gross"},
			{Account: ledger.AccountRef{ID: "21", Name: "Salaries Payable"}, Side: ledger.SideCredit, Amount: amount, Description: "Net"},
		},
	}
}

func TestUpsertJournalEntryCreates(t *testing.T) {
	client, stub := newTestClient(t)

	id, err := client.UpsertJournalEntry(context.Background(), testEntry())
	require.NoError(t, err)
	require.Equal(t, "77", id)

	require.EqualValues(t, 1, stub.queryCalls.Load(), "upsert queries by doc number first")
	require.EqualValues(t, 1, stub.createCalls.Load())

	payload := *stub.lastCreate.Load()
	require.Equal(t, "PR-202407", payload["DocNumber"])
	require.Equal(t, "2024-07-31", payload["TxnDate"])
	if _, ok := payload["Id"]; ok {
		t.Fatal("create payload must not carry an Id when no document exists")
	}
	lines := payload["Line"].([]any)
	require.Len(t, lines, 2)
	first := lines[0].(map[string]any)
	detail := first["JournalEntryLineDetail"].(map[string]any)
	require.Equal(t, "DEBIT", detail["PostingType"])
}

func TestUpsertJournalEntryUpdatesInPlace(t *testing.T) {
	client, stub := newTestClient(t)
	stub.queryMatches = []map[string]any{{"Id": "77", "SyncToken": "3"}}

	id, err := client.UpsertJournalEntry(context.Background(), testEntry())
	require.NoError(t, err)
	require.Equal(t, "77", id)

	payload := *stub.lastCreate.Load()
	require.Equal(t, "77", payload["Id"], "resubmission must update the existing document")
	require.Equal(t, "3", payload["SyncToken"])
}

func TestRejectionIsNotRetried(t *testing.T) {
	client, stub := newTestClient(t)
	stub.createStatus = http.StatusBadRequest
	stub.createBody = `{"Fault":{"Error":[{"Message":"Invalid account","Detail":"Account 60 is inactive"}],"type":"ValidationFault"}}`

	_, err := client.UpsertJournalEntry(context.Background(), testEntry())
	require.ErrorIs(t, err, ledger.ErrRejected)
	require.False(t, ledger.Retryable(err))
	require.Contains(t, err.Error(), "Account 60 is inactive")
	require.EqualValues(t, 1, stub.createCalls.Load(), "4xx must not be retried")
}

func TestTransportFailureRetries(t *testing.T) {
	client, stub := newTestClient(t)
	stub.failCreates = 1 // one 502, then healthy

	id, err := client.UpsertJournalEntry(context.Background(), testEntry())
	require.NoError(t, err)
	require.Equal(t, "77", id)
	require.EqualValues(t, 2, stub.createCalls.Load())
}

func TestTransportFailureExhaustsRetries(t *testing.T) {
	client, stub := newTestClient(t)
	stub.failCreates = 10

	_, err := client.UpsertJournalEntry(context.Background(), testEntry())
	require.ErrorIs(t, err, ledger.ErrTransport)
	require.True(t, ledger.Retryable(err))
	// initial attempt plus WithMaxRetries(2)
	require.EqualValues(t, 3, stub.createCalls.Load())
}

func TestAccessTokenCachedAcrossCalls(t *testing.T) {
	client, stub := newTestClient(t)

	_, err := client.UpsertJournalEntry(context.Background(), testEntry())
	require.NoError(t, err)
	_, err = client.UpsertJournalEntry(context.Background(), testEntry())
	require.NoError(t, err)

	require.EqualValues(t, 1, stub.tokenCalls.Load(), "second call reuses the cached access token")
}

func TestUpsertVendorMatchesDisplayName(t *testing.T) {
	client, stub := newTestClient(t)
	stub.queryMatches = []map[string]any{{"Id": "55", "SyncToken": "1"}}
	stub.createBody = `{"Vendor":{"Id":"55","SyncToken":"2"}}`
	stub.createStatus = http.StatusOK

	id, err := client.UpsertVendor(context.Background(), ledger.VendorRecord{
		DisplayName:      "Nadeesha Perera (EMP003)",
		PrintOnCheckName: "Nadeesha Perera",
		Active:           true,
		Email:            "nadeesha@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "55", id)

	payload := *stub.lastCreate.Load()
	require.Equal(t, "55", payload["Id"])
	require.Equal(t, "Employee", payload["VendorType"])
	addr := payload["PrimaryEmailAddr"].(map[string]any)
	require.Equal(t, "nadeesha@example.com", addr["Address"])
}
