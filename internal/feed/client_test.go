package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-lookup/internal/store"
)

type storeApplier struct{ st *store.Store }

func (a storeApplier) Set(symbol string, rec store.Record) error { return a.st.Set(symbol, rec) }

func (a storeApplier) Remove(symbol string) (bool, error) {
	if err := store.ValidateSymbol(symbol); err != nil {
		return false, err
	}
	return a.st.Delete(symbol), nil
}

type countingRecorder struct {
	mu       sync.Mutex
	connects int
	applied  int
	rejected int
}

func (r *countingRecorder) RecordFeedConnection() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects++
}

func (r *countingRecorder) RecordFeedRecord(applied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if applied {
		r.applied++
	} else {
		r.rejected++
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// newFeedServer 推送 messages 后保持连接直到测试结束
func newFeedServer(t *testing.T, messages ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	stop := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		<-stop
	}))
	t.Cleanup(func() {
		close(stop)
		srv.Close()
	})
	return srv
}

func TestClientAppliesStreamedRecords(t *testing.T) {
	srv := newFeedServer(t,
		"AAPL,150.25,1000,2024-01-01T00:00:00",
		"MSFT,410,5,2024-01-01\nBAD,notanumber,1,2024-01-01\n",
	)
	st := store.New(nil)
	rec := &countingRecorder{}
	c := NewClient(wsURL(srv), storeApplier{st: st}, rec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return st.Len() == 2 }, 2*time.Second, 10*time.Millisecond)
	got, err := st.Get("AAPL")
	require.NoError(t, err)
	assert.Equal(t, "150.25", got.Price.String())

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.connects)
	assert.Equal(t, 2, rec.applied)
	assert.Equal(t, 1, rec.rejected)
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	c := NewClient(url, storeApplier{st: store.New(nil)}, nil, nil)
	c.ReconnectDelay = time.Millisecond
	c.MaxRetries = 2

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
}

func TestHandleMessageReportsEvents(t *testing.T) {
	st := store.New(nil)
	var fields map[string]interface{}
	c := NewClient("ws://unused", storeApplier{st: st}, nil, func(event string, f map[string]interface{}) {
		if event == "feed_update" {
			fields = f
		}
	})

	applied, rejected := c.HandleMessage([]byte("AAPL,1,1,2024-01-01\n\nMSFT,1,1,2024-01-01,extra\nmsft,1,1,2024-01-01"))
	assert.Equal(t, 1, applied)
	assert.Equal(t, 2, rejected)
	require.NotNil(t, fields)
	assert.Equal(t, 1, fields["applied"])
	assert.Len(t, fields["errors"], 2)
}

func TestHandleMessageRemovesSymbols(t *testing.T) {
	st := store.New(nil)
	c := NewClient("ws://unused", storeApplier{st: st}, nil, nil)

	applied, rejected := c.HandleMessage([]byte("AAPL,1,1,2024-01-01\nMSFT,2,2,2024-01-01"))
	require.Equal(t, 2, applied)
	require.Equal(t, 0, rejected)

	applied, rejected = c.HandleMessage([]byte("-MSFT\n-bad symbol"))
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, []string{"AAPL"}, st.Symbols())
}
