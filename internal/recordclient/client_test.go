package recordclient_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progenxxx/hris-sub006/internal/recordclient"
	"github.com/progenxxx/hris-sub006/internal/workflow"
)

func kind(t *testing.T, name string) *workflow.KindConfig {
	t.Helper()
	k, ok := workflow.DefaultRegistry().Get(name)
	require.True(t, ok)
	return k
}

func newClient(t *testing.T, srv *httptest.Server, retries int) *recordclient.Client {
	t.Helper()
	c, err := recordclient.New(kind(t, workflow.KindTravelOrders), recordclient.Options{
		BaseURL:    srv.URL,
		Token:      "secret-token",
		MaxRetries: retries,
	})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/travel_orders/list", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{
			"code":    0,
			"message": "success",
			"data": map[string]any{
				"travel_orders": []map[string]any{
					{"id": "1", "status": "pending", "employee_name": "Juan"},
				},
			},
		})
	}))
	defer srv.Close()

	records, err := newClient(t, srv, 0).List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, workflow.StatusPending, records[0].Status)
	assert.Equal(t, "Juan", records[0].EmployeeName)
}

func TestMethodOverride(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		seen = append(seen, r.URL.Path+"?"+r.URL.RawQuery)
		writeJSON(w, http.StatusOK, map[string]any{"code": 0, "message": "success", "data": map[string]any{"id": "9"}})
	}))
	defer srv.Close()
	c := newClient(t, srv, 0)

	_, err := c.Update(context.Background(), "9", workflow.Draft{Title: "Trip"})
	require.NoError(t, err)
	require.NoError(t, c.Delete(context.Background(), "9"))

	assert.Equal(t, []string{
		"/api/v1/travel_orders/9?_method=PUT",
		"/api/v1/travel_orders/9?_method=DELETE",
	}, seen)
}

func TestUpdateStatusBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/travel_orders/42/status", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"status": "approved", "remarks": ""}, body)
		writeJSON(w, http.StatusOK, map[string]any{"code": 0, "data": map[string]any{"id": "42", "status": "approved"}})
	}))
	defer srv.Close()

	rec, err := newClient(t, srv, 0).UpdateStatus(context.Background(), "42", workflow.StatusRequest{Status: workflow.StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApproved, rec.Status)
}

func TestRemoteRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"code":    422,
			"message": "validation failed",
			"errors":  map[string][]string{"remarks": {"remarks are required"}},
		})
	}))
	defer srv.Close()

	_, err := newClient(t, srv, 3).UpdateStatus(context.Background(), "1", workflow.StatusRequest{Status: workflow.StatusRejected})
	var rerr *workflow.RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusUnprocessableEntity, rerr.StatusCode)
	assert.Equal(t, []string{"remarks are required"}, rerr.Fields["remarks"])
	assert.Equal(t, workflow.KindRemoteRejected, workflow.Classify(err))
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"code": 0, "data": map[string]any{"travel_orders": []any{}}})
	}))
	defer srv.Close()

	records, err := newClient(t, srv, 3).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPostIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newClient(t, srv, 3).BulkUpdateStatus(context.Background(), workflow.BulkRequest{IDs: []string{"1"}, Status: workflow.StatusApproved})
	assert.Equal(t, workflow.KindNetworkFailure, workflow.Classify(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := recordclient.New(kind(t, workflow.KindLeave), recordclient.Options{BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	_, err = c.List(context.Background())
	var nerr *workflow.NetworkError
	require.ErrorAs(t, err, &nerr)
	assert.Contains(t, err.Error(), "failed to load leave, please try again")
}

func TestExport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/travel_orders/export", r.URL.Path)
		assert.Equal(t, "approved", r.URL.Query().Get("status"))
		assert.Equal(t, "2024-06-30", r.URL.Query().Get("to_date"))
		assert.False(t, r.URL.Query().Has("search"))
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		_, _ = w.Write([]byte("PK\x03\x04xlsx"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := newClient(t, srv, 0).Export(context.Background(), workflow.Criteria{StatusTab: "approved", DateTo: "2024-06-30"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, "PK\x03\x04xlsx", buf.String())
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := recordclient.New(kind(t, workflow.KindLeave), recordclient.Options{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestSubscribe(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/travel_orders", r.URL.Path)
		assert.Equal(t, "secret-token", r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		first, _ := json.Marshal(workflow.ChangeEvent{Kind: workflow.KindTravelOrders, Action: workflow.ActionStatus, IDs: []string{"1"}})
		other, _ := json.Marshal(workflow.ChangeEvent{Kind: workflow.KindLeave, Action: workflow.ActionDeleted, IDs: []string{"2"}})
		second, _ := json.Marshal(workflow.ChangeEvent{Kind: workflow.KindTravelOrders, Action: workflow.ActionCreated, IDs: []string{"3"}})
		batch := bytes.Join([][]byte{first, other, second}, []byte{'\n'})
		_ = conn.WriteMessage(websocket.TextMessage, batch)

		// 保持连接直到客户端断开
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan workflow.ChangeEvent, 4)
	done := make(chan error, 1)
	go func() {
		done <- newClient(t, srv, 0).Subscribe(ctx, func(ev workflow.ChangeEvent) { events <- ev })
	}()

	var got []string
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev.Action)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	assert.Equal(t, []string{workflow.ActionStatus, workflow.ActionCreated}, got)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not stop")
	}
}
