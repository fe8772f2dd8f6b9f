package tokend

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ShinyNito/wechatkit/core"
)

var testNow = time.Unix(1700000000, 0)

func testClock() time.Time { return testNow }

// fakeWechat 同时模拟公众号/小程序与企业微信的凭证接口
type fakeWechat struct {
	mu    sync.Mutex
	calls map[string]int

	// failToken 为 true 时 access_token 接口返回 40125
	failToken atomic.Bool
	expiresIn atomic.Int64
}

func newFakeWechat(t *testing.T) (*fakeWechat, *httptest.Server) {
	t.Helper()
	f := &fakeWechat{calls: make(map[string]int)}
	f.expiresIn.Store(7200)
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeWechat) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeWechat) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var key string
	switch r.URL.Path {
	case "/cgi-bin/token":
		key = "token:" + q.Get("appid")
	case "/cgi-bin/gettoken":
		key = "token:" + q.Get("corpid")
	case "/cgi-bin/ticket/getticket":
		key = "ticket:" + q.Get("type")
	case "/cgi-bin/get_jsapi_ticket":
		key = "ticket:corp"
	case "/cgi-bin/ticket/get":
		key = "ticket:agent_config"
	default:
		http.NotFound(w, r)
		return
	}

	f.mu.Lock()
	f.calls[key]++
	n := f.calls[key]
	f.mu.Unlock()

	expiresIn := f.expiresIn.Load()
	if r.URL.Path == "/cgi-bin/token" || r.URL.Path == "/cgi-bin/gettoken" {
		if f.failToken.Load() {
			_, _ = w.Write([]byte(`{"errcode":40125,"errmsg":"invalid appsecret"}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"access_token":"%s-%d","expires_in":%d}`, key, n, expiresIn)
		return
	}
	_, _ = fmt.Fprintf(w, `{"errcode":0,"errmsg":"ok","ticket":"%s-%d","expires_in":%d}`, key, n, expiresIn)
}

type fakeSecrets map[string]string

func (s fakeSecrets) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := s[ref]
	if !ok {
		return "", fmt.Errorf("secret %s not found", ref)
	}
	return v, nil
}

type recordingNATS struct {
	mu   sync.Mutex
	msgs []*nats.Msg
}

func (r *recordingNATS) PublishMsg(msg *nats.Msg) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingNATS) subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Subject)
	}
	return out
}

func testConfig(baseURL string) *Config {
	return &Config{
		Listen:  "127.0.0.1:0",
		APIKeys: []string{"k1"},
		NATS:    NATSConfig{Subject: "wechat.cred"},
		AWS:     AWSConfig{Region: "ap-east-1"},
		Warmup:  WarmupConfig{Schedule: "@every 1h", Margin: 10 * time.Minute},
		Tenants: []TenantConfig{
			{ID: "mp", Kind: KindOfficialAccount, AppID: "wx-mp", Secret: "mp-secret", BaseURL: baseURL},
			{ID: "corp", Kind: KindWork, CorpID: "ww-corp", AgentID: 1000002, SecretRef: "wechat/corp#corpsecret", BaseURL: baseURL},
			{ID: "mini", Kind: KindMiniProgram, AppID: "wx-mini", Secret: "mini-secret", BaseURL: baseURL},
		},
	}
}

type testEnv struct {
	app  *App
	fake *fakeWechat
	nats *recordingNATS
}

func newTestEnv(t *testing.T, mutate ...func(*Config, *Overrides)) *testEnv {
	t.Helper()
	fake, server := newFakeWechat(t)
	cfg := testConfig(server.URL)
	pub := &recordingNATS{}
	ov := Overrides{
		Cache:   core.NewMemoryCache(),
		NATS:    pub,
		Secrets: fakeSecrets{"wechat/corp#corpsecret": "corp-secret"},
		Clock:   testClock,
	}
	for _, m := range mutate {
		m(cfg, &ov)
	}
	require.NoError(t, cfg.Validate())

	app, err := NewApp(context.Background(), cfg, zap.NewNop(), ov)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return &testEnv{app: app, fake: fake, nats: pub}
}
