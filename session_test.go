package cdptab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/page"
)

func TestForceIP(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		in   string
		want string
	}{
		{
			"ws://127.0.0.1:9222/devtools/page/A1",
			"ws://127.0.0.1:9222/devtools/page/A1",
		},
		{
			"ws://127.0.0.1:9222",
			"ws://127.0.0.1:9222",
		},
		{
			"not a url",
			"not a url",
		},
	} {
		assert.Equal(t, tt.want, forceIP(tt.in), "input %q", tt.in)
	}
}

// newWSServer starts a websocket server that feeds every decoded command to
// reply, writing each returned message back to the client in order.
func newWSServer(t *testing.T, reply func(msg *cdproto.Message) []*cdproto.Message) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			msg := new(cdproto.Message)
			if err := conn.ReadJSON(msg); err != nil {
				return
			}
			for _, out := range reply(msg) {
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialSessionRoundTrip(t *testing.T) {
	t.Parallel()

	var seen int64
	urlstr := newWSServer(t, func(msg *cdproto.Message) []*cdproto.Message {
		atomic.AddInt64(&seen, 1)
		return []*cdproto.Message{{ID: msg.ID, Result: []byte(`{}`)}}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := DialSession(ctx, urlstr, "T1")
	require.NoError(t, err)
	defer sess.Close()
	assert.EqualValues(t, "T1", sess.TargetID())

	require.NoError(t, sess.Execute(ctx, page.CommandEnable, nil, nil))
	require.NoError(t, sess.Execute(ctx, page.CommandStopLoading, nil, nil))
	assert.EqualValues(t, 2, atomic.LoadInt64(&seen))
}

func TestSessionCommandError(t *testing.T) {
	t.Parallel()

	urlstr := newWSServer(t, func(msg *cdproto.Message) []*cdproto.Message {
		return []*cdproto.Message{{
			ID:    msg.ID,
			Error: &cdproto.Error{Code: -32601, Message: "method not found"},
		}}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := DialSession(ctx, urlstr, "T1")
	require.NoError(t, err)
	defer sess.Close()

	err = sess.Execute(ctx, "Bogus.method", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found")
}

func TestSessionEventDelivery(t *testing.T) {
	t.Parallel()

	urlstr := newWSServer(t, func(msg *cdproto.Message) []*cdproto.Message {
		// Push an unsolicited event ahead of the command's reply.
		return []*cdproto.Message{
			{
				Method: cdproto.MethodType("Page.loadEventFired"),
				Params: []byte(`{"timestamp":1}`),
			},
			{ID: msg.ID, Result: []byte(`{}`)},
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := DialSession(ctx, urlstr, "T1")
	require.NoError(t, err)
	defer sess.Close()

	events := make(chan any, 1)
	sess.Listen(ctx, func(ev any) {
		select {
		case events <- ev:
		default:
		}
	})

	require.NoError(t, sess.Execute(ctx, page.CommandEnable, nil, nil))

	select {
	case ev := <-events:
		_, ok := ev.(*page.EventLoadEventFired)
		assert.True(t, ok, "unexpected event type %T", ev)
	case <-time.After(time.Second):
		t.Fatal("event never reached the listener")
	}
}

func TestExecuteAfterClose(t *testing.T) {
	t.Parallel()

	urlstr := newWSServer(t, func(msg *cdproto.Message) []*cdproto.Message {
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := DialSession(ctx, urlstr, "T1")
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	err = sess.Execute(ctx, page.CommandEnable, nil, nil)
	assert.ErrorIs(t, err, ErrChannelClosed)
}
