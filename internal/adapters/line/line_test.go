package line_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/kbrelay/internal/adapters/line"
	"github.com/PabloGalante/kbrelay/internal/adapters/storage/memory"
	"github.com/PabloGalante/kbrelay/internal/domain"
)

const secret = "test-channel-secret"

func textEvent(eventID, replyToken, text string, redelivery bool) string {
	return fmt.Sprintf(`{
		"type": "message",
		"mode": "active",
		"timestamp": 1462629479859,
		"webhookEventId": %q,
		"deliveryContext": {"isRedelivery": %t},
		"replyToken": %q,
		"source": {"type": "user", "userId": "U123"},
		"message": {"type": "text", "id": "468789577898262530", "quoteToken": "q", "text": %q}
	}`, eventID, redelivery, replyToken, text)
}

func callbackBody(events ...string) []byte {
	return []byte(`{"destination":"Ubot","events":[` + strings.Join(events, ",") + `]}`)
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func signedRequest(body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/callback", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", sign(body))
	return req
}

type collector struct {
	mu   sync.Mutex
	msgs []domain.TextMessage
}

func (c *collector) handle(_ context.Context, msg domain.TextMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collector) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.msgs {
		out = append(out, m.Text)
	}
	return out
}

func TestDispatchTextMessage(t *testing.T) {
	d := line.NewDispatcher(secret, 4, nil)
	c := &collector{}
	d.HandleText(c.handle)

	body := callbackBody(textEvent("01EVT1", "rt-1", "What is the treatment dosage?", false))
	require.NoError(t, d.Dispatch(context.Background(), signedRequest(body)))

	require.Len(t, c.msgs, 1)
	msg := c.msgs[0]
	assert.Equal(t, "01EVT1", msg.EventID)
	assert.Equal(t, "rt-1", msg.ReplyToken)
	assert.Equal(t, "What is the treatment dosage?", msg.Text)
	assert.Equal(t, domain.UserID("U123"), msg.UserID)
}

func TestDispatchRejectsBadSignature(t *testing.T) {
	d := line.NewDispatcher(secret, 1, nil)
	c := &collector{}
	d.HandleText(c.handle)

	body := callbackBody(textEvent("01EVT1", "rt-1", "hi", false))
	req := httptest.NewRequest(http.MethodPost, "/callback", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", "bm90IGEgc2lnbmF0dXJl")

	err := d.Dispatch(context.Background(), req)
	require.ErrorIs(t, err, line.ErrInvalidSignature)
	assert.Empty(t, c.msgs)
}

func TestDispatchIgnoresUnhandledKinds(t *testing.T) {
	d := line.NewDispatcher(secret, 1, nil)
	c := &collector{}
	d.HandleText(c.handle)

	follow := `{"type":"follow","mode":"active","timestamp":1,"webhookEventId":"01F","deliveryContext":{"isRedelivery":false},"replyToken":"rt-f","source":{"type":"user","userId":"U1"},"follow":{"isUnblocked":false}}`
	sticker := `{"type":"message","mode":"active","timestamp":1,"webhookEventId":"01S","deliveryContext":{"isRedelivery":false},"replyToken":"rt-s","source":{"type":"user","userId":"U1"},"message":{"type":"sticker","id":"1","quoteToken":"q","packageId":"1","stickerId":"1","stickerResourceType":"STATIC"}}`

	body := callbackBody(follow, sticker, textEvent("01T", "rt-t", "text", false))
	require.NoError(t, d.Dispatch(context.Background(), signedRequest(body)))

	assert.Equal(t, []string{"text"}, c.texts())
}

func TestDispatchSkipsEventsAlreadySeen(t *testing.T) {
	d := line.NewDispatcher(secret, 2, memory.NewEventLedger(16))
	c := &collector{}
	d.HandleText(c.handle)

	first := callbackBody(textEvent("01DUP", "rt-1", "once", false))
	require.NoError(t, d.Dispatch(context.Background(), signedRequest(first)))

	again := callbackBody(textEvent("01DUP", "rt-2", "once", true), textEvent("01NEW", "rt-3", "twice", false))
	require.NoError(t, d.Dispatch(context.Background(), signedRequest(again)))

	assert.ElementsMatch(t, []string{"once", "twice"}, c.texts())
}

func TestDispatchRunsEventsConcurrently(t *testing.T) {
	d := line.NewDispatcher(secret, 2, nil)

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	d.HandleText(func(context.Context, domain.TextMessage) {
		started <- struct{}{}
		<-release
	})

	body := callbackBody(textEvent("01A", "rt-a", "a", false), textEvent("01B", "rt-b", "b", false))
	errc := make(chan error, 1)
	go func() { errc <- d.Dispatch(context.Background(), signedRequest(body)) }()

	<-started
	<-started
	close(release)
	require.NoError(t, <-errc)
}

func TestReplierSendsTextMessage(t *testing.T) {
	var got struct {
		ReplyToken string `json:"replyToken"`
		Messages   []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"messages"`
	}
	var auth, path string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sentMessages":[{"id":"1","quoteToken":"q"}]}`))
	}))
	defer srv.Close()

	r, err := line.NewReplier("access-token", line.WithEndpoint(srv.URL))
	require.NoError(t, err)

	require.NoError(t, r.Reply(context.Background(), "rt-1", "Dosage is 10mg."))
	assert.Equal(t, "Bearer access-token", auth)
	assert.Equal(t, "/v2/bot/message/reply", path)
	assert.Equal(t, "rt-1", got.ReplyToken)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "text", got.Messages[0].Type)
	assert.Equal(t, "Dosage is 10mg.", got.Messages[0].Text)
}

func TestReplierReportsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Invalid reply token"}`))
	}))
	defer srv.Close()

	r, err := line.NewReplier("access-token", line.WithEndpoint(srv.URL))
	require.NoError(t, err)

	require.Error(t, r.Reply(context.Background(), "expired", "hi"))
	require.Error(t, r.Reply(context.Background(), "", "hi"))
}

func TestReplierHonoursTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sentMessages":[]}`))
	}))
	defer srv.Close()
	defer close(release)

	r, err := line.NewReplier("access-token", line.WithEndpoint(srv.URL), line.WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	err = r.Reply(context.Background(), "rt-1", "hi")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
