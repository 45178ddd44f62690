package websocket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progenxxx/hris-sub006/internal/auth"
	"github.com/progenxxx/hris-sub006/internal/websocket"
	"github.com/progenxxx/hris-sub006/internal/workflow"
)

func newHubServer(t *testing.T) (*websocket.Hub, *auth.TokenValidator, *httptest.Server) {
	gin.SetMode(gin.TestMode)
	validator, err := auth.NewTokenValidator("test-secret", "hris")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := websocket.NewHub(nil)
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws/:kind", websocket.WebSocketHandler(websocket.HandlerOptions{
		Hub:       hub,
		Validator: validator,
		Kinds:     workflow.DefaultRegistry(),
	}))
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return hub, validator, ts
}

func dial(t *testing.T, ts *httptest.Server, kind, token string) (*gorillaWS.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + kind + "?token=" + token
	return gorillaWS.DefaultDialer.Dial(url, nil)
}

func TestHub_PublishesByKind(t *testing.T) {
	hub, validator, ts := newHubServer(t)
	token, err := validator.Issue(workflow.Principal{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	meetings, _, err := dial(t, ts, workflow.KindMeetings, token)
	require.NoError(t, err)
	defer meetings.Close()
	leave, _, err := dial(t, ts, workflow.KindLeave, token)
	require.NoError(t, err)
	defer leave.Close()

	require.Eventually(t, func() bool { return hub.GetClientCount("") == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.GetClientCount(workflow.KindMeetings))

	hub.Publish(workflow.ChangeEvent{Kind: workflow.KindLeave, Action: workflow.ActionStatus, IDs: []string{"l1"}})
	hub.Publish(workflow.ChangeEvent{Kind: workflow.KindMeetings, Action: workflow.ActionCreated, IDs: []string{"m1"}})

	_ = meetings.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := meetings.ReadMessage()
	require.NoError(t, err)
	var ev workflow.ChangeEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, workflow.KindMeetings, ev.Kind)
	assert.Equal(t, []string{"m1"}, ev.IDs)

	_ = leave.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err = leave.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, []string{"l1"}, ev.IDs)
}

func TestHub_UnregistersOnClose(t *testing.T) {
	hub, validator, ts := newHubServer(t)
	token, err := validator.Issue(workflow.Principal{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	conn, _, err := dial(t, ts, workflow.KindEvents, token)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.GetClientCount(workflow.KindEvents) == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.GetClientCount("") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketHandler_Rejects(t *testing.T) {
	_, validator, ts := newHubServer(t)

	_, resp, err := dial(t, ts, workflow.KindMeetings, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := validator.Issue(workflow.Principal{UserID: "u1"}, time.Hour)
	require.NoError(t, err)
	_, resp, err = dial(t, ts, "payroll", token)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
