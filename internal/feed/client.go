// Package feed applies live record updates pushed over a WebSocket.
// Every text message carries one or more "symbol,price,volume,timestamp" lines.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"stock-lookup/internal/store"
)

// Applier 接收解析后的记录，lookup.Service 实现该接口。
type Applier interface {
	Set(symbol string, rec store.Record) error
	Remove(symbol string) (bool, error)
}

// Recorder 推送指标
type Recorder interface {
	RecordFeedConnection()
	RecordFeedRecord(applied bool)
}

// Client 连接推送源并把每条记录写入 Applier，断线自动重连。
type Client struct {
	URL            string
	Dialer         *websocket.Dialer
	ReconnectDelay time.Duration
	MaxRetries     int           // 连续拨号失败上限
	ReadTimeout    time.Duration // 0 表示不设读超时

	applier Applier
	metrics Recorder
	sink    store.EventSink
}

// NewClient builds a client; metrics and sink may be nil.
func NewClient(url string, applier Applier, metrics Recorder, sink store.EventSink) *Client {
	return &Client{
		URL:            url,
		Dialer:         websocket.DefaultDialer,
		ReconnectDelay: 3 * time.Second,
		MaxRetries:     5,
		applier:        applier,
		metrics:        metrics,
		sink:           sink,
	}
}

// Run 阻塞直到 ctx 结束或连续拨号失败超过 MaxRetries。
func (c *Client) Run(ctx context.Context) error {
	retries := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, _, err := c.Dialer.DialContext(ctx, c.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if retries >= c.MaxRetries {
				return fmt.Errorf("feed %s: dial failed after %d retries: %w", c.URL, c.MaxRetries, err)
			}
			retries++
			if !c.sleep(ctx, time.Duration(retries)*c.ReconnectDelay) {
				return ctx.Err()
			}
			continue
		}
		retries = 0
		if c.metrics != nil {
			c.metrics.RecordFeedConnection()
		}

		err = c.readLoop(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logEvent("feed_disconnected", map[string]interface{}{
			"url":   c.URL,
			"error": fmt.Sprint(err),
			"clean": IsClosed(err),
		})
		if !c.sleep(ctx, c.ReconnectDelay) {
			return ctx.Err()
		}
	}
}

// readLoop 读取消息直到连接断开；ctx 结束时主动关闭连接以打断阻塞读。
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	if c.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
		})
	}
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if c.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.HandleMessage(msg)
	}
}

// HandleMessage 解析一条消息中的所有行；格式错误的行被跳过并计数。
func (c *Client) HandleMessage(msg []byte) (applied, rejected int) {
	var errs []string
	for _, line := range strings.Split(string(msg), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		err := c.applyLine(line)
		if err != nil {
			rejected++
			errs = append(errs, err.Error())
		} else {
			applied++
		}
		if c.metrics != nil {
			c.metrics.RecordFeedRecord(err == nil)
		}
	}
	fields := map[string]interface{}{
		"url":      c.URL,
		"applied":  applied,
		"rejected": rejected,
	}
	if len(errs) > 0 {
		fields["errors"] = errs
	}
	c.logEvent("feed_update", fields)
	return applied, rejected
}

// applyLine 处理单行：symbol,price,volume,timestamp 写入；-SYMBOL 删除。
func (c *Client) applyLine(line string) error {
	if sym, ok := strings.CutPrefix(line, "-"); ok && !strings.Contains(sym, ",") {
		_, err := c.applier.Remove(sym)
		return err
	}
	rec, err := store.ParseLine(line)
	if err != nil {
		return err
	}
	return c.applier.Set(rec.Symbol, rec)
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Client) logEvent(event string, fields map[string]interface{}) {
	if c.sink != nil {
		c.sink(event, fields)
	}
}

// IsClosed reports whether err is a normal websocket close.
func IsClosed(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure
}
