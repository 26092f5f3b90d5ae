package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSigner struct {
	calls atomic.Int32
}

func (s *stubSigner) Sign(context.Context, string, any) (map[string]string, error) {
	s.calls.Add(1)
	return map[string]string{
		"X-S":          "stub-signature",
		"X-T":          "1700000000",
		"X-S-Common":   "stub-common",
		"X-B3-Traceid": "abcdef0123456789",
	}, nil
}

type stubCookies struct {
	calls atomic.Int32
	jar   map[string]string
}

func (s *stubCookies) Cookies(context.Context) (map[string]string, error) {
	s.calls.Add(1)
	if s.jar != nil {
		return s.jar, nil
	}
	return map[string]string{"a1": "token-a1", "web_session": "sess"}, nil
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *stubSigner, *stubCookies) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	signer := &stubSigner{}
	cookies := &stubCookies{}
	client := New(Config{
		Host:          srv.URL,
		Timeout:       5 * time.Second,
		RetryAttempts: 3,
		RetryWait:     time.Millisecond,
	}, signer, cookies, zap.NewNop())
	return client, signer, cookies
}

func TestFetchNoteDetailSuccess(t *testing.T) {
	var gotCookie, gotSig string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotSig = r.Header.Get("X-S")
		_, _ = w.Write([]byte(`{
			"success": true,
			"data": {"items": [{"id": "n1", "note_card": {
				"type": "video",
				"title": "hello",
				"video": {"consumer": {"origin_video_key": "pre/abc"}}
			}}]}
		}`))
	})

	client, signer, _ := newTestClient(t, handler)
	card, err := client.FetchNoteDetail(context.Background(), "n1", DetailHint{XsecToken: "tk"})
	require.NoError(t, err)
	assert.Equal(t, "hello", card.Title)
	assert.Equal(t, "pre/abc", card.Video.Consumer.OriginVideoKey)
	assert.Equal(t, "stub-signature", gotSig)
	assert.Equal(t, "a1=token-a1; web_session=sess", gotCookie)
	assert.Equal(t, int32(1), signer.calls.Load())
}

func TestTransientFailureRetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			_, _ = w.Write([]byte(`not json`))
			return
		}
		_, _ = w.Write([]byte(`{"success": true, "data": {"items": [{"note_card": {"title": "t"}}]}}`))
	})

	client, _, _ := newTestClient(t, handler)
	card, err := client.FetchNoteDetail(context.Background(), "n1", DetailHint{})
	require.NoError(t, err)
	assert.Equal(t, "t", card.Title)
	assert.Equal(t, int32(3), hits.Load())
}

func TestTransientFailureExhaustsAttempts(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`not json`))
	})

	client, _, _ := newTestClient(t, handler)
	_, err := client.FetchNoteDetail(context.Background(), "n1", DetailHint{})
	require.ErrorIs(t, err, ErrDataFetch)
	assert.Equal(t, int32(3), hits.Load())
}

func TestCaptchaStatusIsBlockedAndNotRetried(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Verifytype", "102")
		w.WriteHeader(471)
	})

	client, _, _ := newTestClient(t, handler)
	_, err := client.FetchNoteDetail(context.Background(), "n1", DetailHint{})
	require.ErrorIs(t, err, ErrAccessBlocked)
	assert.Equal(t, int32(1), hits.Load(), "block errors must not be retried")
}

func TestIPBlockCodeIsBlocked(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "code": 300012, "msg": "slow down"}`))
	})

	client, _, _ := newTestClient(t, handler)
	_, err := client.FetchNoteDetail(context.Background(), "n1", DetailHint{})
	require.ErrorIs(t, err, ErrAccessBlocked)
}

func TestAuthExpiredRefreshesCookiesOnce(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"success": false, "code": -100, "msg": "login required"}`))
	})

	client, _, cookies := newTestClient(t, handler)
	_, err := client.FetchNoteDetail(context.Background(), "n1", DetailHint{})
	require.ErrorIs(t, err, ErrAuthExpired)
	assert.Equal(t, int32(2), hits.Load(), "exactly one retry after the refresh")
	// Initial header build plus one refresh.
	assert.Equal(t, int32(2), cookies.calls.Load())
}

func TestHintFromURL(t *testing.T) {
	hint := HintFromURL("https://www.xiaohongshu.com/explore/69ab12?xsec_token=tok&xsec_source=pc_search")
	assert.Equal(t, "tok", hint.XsecToken)
	assert.Equal(t, "pc_search", hint.XsecSource)

	assert.Equal(t, DetailHint{}, HintFromURL("://bad"))
}
