package recordclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/progenxxx/hris-sub006/internal/workflow"
)

const (
	minReconnectDelay = 500 * time.Millisecond
	maxReconnectDelay = 30 * time.Second
)

// EventsURL 推送地址,http(s) 换成 ws(s),token 放在查询参数中
func (c *Client) EventsURL() (string, error) {
	u, err := url.Parse(c.baseURL + c.path(c.kind.Endpoints.Events, ""))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Subscribe 订阅记录变更,断线后按指数退避重连,直到 ctx 结束
func (c *Client) Subscribe(ctx context.Context, onEvent func(workflow.ChangeEvent)) error {
	target, err := c.EventsURL()
	if err != nil {
		return fmt.Errorf("invalid events url: %w", err)
	}

	delay := minReconnectDelay
	for {
		connected, err := c.listen(ctx, target, onEvent)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			delay = minReconnectDelay
		}
		c.log.WithError(err).WithField("retry_in", delay).Warn("Event stream disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// listen 建立一次连接并读取消息,返回是否曾连接成功
func (c *Client) listen(ctx context.Context, target string, onEvent func(workflow.ChangeEvent)) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return false, &workflow.NetworkError{Op: "subscribe to " + c.kind.Name, Err: err}
	}
	defer conn.Close()
	c.log.Debug("Event stream connected")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		// 服务端可能把多条消息用换行合并发送
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var ev workflow.ChangeEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				c.log.WithError(err).Debug("Skipping malformed event")
				continue
			}
			if ev.Kind != "" && !strings.EqualFold(ev.Kind, c.kind.Name) {
				continue
			}
			onEvent(ev)
		}
	}
}
