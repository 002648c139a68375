package chainagent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestInvokeToolSendsInputAndToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/tools/send_arbitrum_eth" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("expected bearer token, got %q", got)
		}
		var input map[string]string
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if input["amount"] != "0.001" {
			t.Fatalf("unexpected input: %v", input)
		}
		_ = json.NewEncoder(w).Encode(ToolResult{Tool: "send_arbitrum_eth", State: "submitted", Stage: "report", TxID: "0xabc", Status: "Done"})
	}))
	client.SetAPIToken("secret")

	result, err := client.InvokeTool(context.Background(), "send_arbitrum_eth", map[string]string{"to_address": "0x1", "amount": "0.001"})
	if err != nil {
		t.Fatalf("invoke tool: %v", err)
	}
	if !result.Submitted() || result.TxID != "0xabc" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestInvokeToolReturnsFailedOutcome(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusGatewayTimeout)
		_ = json.NewEncoder(w).Encode(ToolResult{State: "failed", Stage: "submit", Code: "SUBMISSION_UNKNOWN", Status: "Error: timeout"})
	}))

	result, err := client.InvokeTool(context.Background(), "send_arbitrum_eth", "0x1 0.001")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusGatewayTimeout || apiErr.Code != "SUBMISSION_UNKNOWN" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if result.Stage != "submit" {
		t.Fatalf("expected stage submit, got %q", result.Stage)
	}
}

func TestInvokeToolDecodesErrorEnvelope(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"工具不存在"}}`))
	}))

	_, err := client.InvokeTool(context.Background(), "missing", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestSubmitAndWaitTask(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		var sub TaskSubmission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			t.Fatalf("decode submission: %v", err)
		}
		if sub.Tool != "pump_fun_create_token" {
			t.Fatalf("unexpected tool: %s", sub.Tool)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(Task{ID: "task-1", Tool: sub.Tool, Status: StatusPending, MaxRetries: 3})
	})
	mux.HandleFunc("GET /api/v1/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "task-1" {
			t.Fatalf("unexpected id: %s", r.PathValue("id"))
		}
		task := Task{ID: "task-1", Status: StatusRunning, Attempts: 1}
		if polls.Add(1) >= 2 {
			task.Status = StatusSucceeded
			task.Result = &TaskResult{State: "submitted", TxID: "sig", Address: "mint"}
		}
		_ = json.NewEncoder(w).Encode(task)
	})
	client := newTestClient(t, mux)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	created, err := client.SubmitTask(ctx, TaskSubmission{
		Tool:  "pump_fun_create_token",
		Input: map[string]string{"name": "TestCoin", "symbol": "TC", "uri": "https://example.com"},
	})
	if err != nil {
		t.Fatalf("submit task: %v", err)
	}
	if created.ID != "task-1" || created.Status != StatusPending {
		t.Fatalf("unexpected task: %+v", created)
	}

	done, err := client.WaitTask(ctx, created.ID, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait task: %v", err)
	}
	if done.Result == nil || done.Result.Address != "mint" {
		t.Fatalf("unexpected result: %+v", done.Result)
	}
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	if _, err := NewClient("localhost:8080", nil); err == nil {
		t.Fatal("expected error for url without scheme")
	}
}
