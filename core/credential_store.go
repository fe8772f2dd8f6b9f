package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultCachePrefix  = "wechatkit"
	DefaultFetchTimeout = 10 * time.Second
)

// CredentialStoreConfig 凭证仓库配置
type CredentialStoreConfig struct {
	Tenant       string           // 租户标识，通常为 appid 或 corpid
	Prefix       string           // 缓存键前缀，默认 DefaultCachePrefix
	Cache        Cache            // 跨进程共享的缓存，默认 MemoryCache
	Logger       *slog.Logger     // 默认 slog.Default()
	Clock        func() time.Time // 默认 time.Now
	FetchTimeout time.Duration    // 单次远程获取的超时，默认 DefaultFetchTimeout
	ExpiryMargin time.Duration    // 提前过期的余量，默认 0
	OnUpdate     UpdateHook
	Recorder     Recorder
}

// cachedCredential 写入 Cache 的凭证记录
type cachedCredential struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"`
}

// CredentialStore 单租户的凭证仓库
//
// 每个凭证名对应一个内存槽位和一个缓存记录。读取顺序为内存、缓存、远程；
// 同一凭证名的并发远程获取会被合并为一次。远程获取失败时不修改任何状态。
type CredentialStore struct {
	tenant       string
	prefix       string
	cache        Cache
	logger       *slog.Logger
	now          func() time.Time
	fetchTimeout time.Duration
	expiryMargin time.Duration
	onUpdate     UpdateHook
	recorder     Recorder

	mu       sync.RWMutex
	fetchers map[string]CredentialFetcher
	slots    map[string]Credential

	group singleflight.Group
}

// NewCredentialStore 创建凭证仓库
func NewCredentialStore(cfg CredentialStoreConfig) (*CredentialStore, error) {
	tenant := strings.TrimSpace(cfg.Tenant)
	if tenant == "" {
		return nil, fmt.Errorf("tenant is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultCachePrefix
	}

	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}

	return &CredentialStore{
		tenant:       tenant,
		prefix:       prefix,
		cache:        cache,
		logger:       logger.With(slog.String("tenant", tenant)),
		now:          clock,
		fetchTimeout: fetchTimeout,
		expiryMargin: max(cfg.ExpiryMargin, 0),
		onUpdate:     cfg.OnUpdate,
		recorder:     recorderOrNop(cfg.Recorder),
		fetchers:     make(map[string]CredentialFetcher),
		slots:        make(map[string]Credential),
	}, nil
}

// Register 注册凭证名及其远程获取函数
func (s *CredentialStore) Register(name string, fetcher CredentialFetcher) error {
	if name == "" || strings.Contains(name, ":") {
		return fmt.Errorf("invalid credential name %q", name)
	}
	if fetcher == nil {
		return fmt.Errorf("fetcher is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.fetchers[name]; exists {
		return fmt.Errorf("credential %s already registered", name)
	}
	s.fetchers[name] = fetcher
	return nil
}

// Tenant 返回租户标识
func (s *CredentialStore) Tenant() string {
	return s.tenant
}

// Names 返回已注册的凭证名（有序）
func (s *CredentialStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.fetchers))
	for name := range s.fetchers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// CacheKey 返回凭证在 Cache 中的键：<prefix>:<tenant>:<name>
// tenant 经过转义，不同租户的键不会冲突。
func (s *CredentialStore) CacheKey(name string) string {
	return s.prefix + ":" + url.QueryEscape(s.tenant) + ":" + name
}

// Get 获取凭证值，必要时远程获取
func (s *CredentialStore) Get(ctx context.Context, name string) (string, error) {
	cred, err := s.get(ctx, name, false)
	return cred.Value, err
}

// Refresh 强制远程获取新凭证
func (s *CredentialStore) Refresh(ctx context.Context, name string) (string, error) {
	cred, err := s.get(ctx, name, true)
	return cred.Value, err
}

// Lookup 与 Get 相同，但返回包含过期时间的完整凭证
func (s *CredentialStore) Lookup(ctx context.Context, name string) (Credential, error) {
	return s.get(ctx, name, false)
}

// Peek 只读内存槽位，不做任何 I/O
func (s *CredentialStore) Peek(name string) (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.slots[name]
	return cred, ok
}

// Set 采用外部获取的凭证，写入内存与缓存
func (s *CredentialStore) Set(ctx context.Context, name string, cred Credential) error {
	if !s.registered(name) {
		return fmt.Errorf("%w: %s", ErrUnknownCredential, name)
	}
	ttl := cred.ExpiresAt.Sub(s.now())
	if cred.Value == "" || ttl <= 0 {
		return &InvalidCredentialDataError{Tenant: s.tenant, Name: name, Reason: "credential is empty or expired"}
	}
	s.store(ctx, name, cred, ttl)
	return nil
}

// RefreshRejected 在 rejected 被微信拒绝后刷新凭证。
// 槽位已持有另一个有效值时直接返回它，迟到的 40001 不会再触发远程获取。
func (s *CredentialStore) RefreshRejected(ctx context.Context, name, rejected string) (string, error) {
	cred, err := s.refresh(ctx, name, rejected)
	return cred.Value, err
}

// flightResult 一次合并调用的结果，fetched 表示确实发起了远程获取
type flightResult struct {
	cred    Credential
	fetched bool
}

// 同一凭证名的所有调用共用一个 singleflight 键，任意时刻最多一个远程获取
func (s *CredentialStore) get(ctx context.Context, name string, force bool) (Credential, error) {
	if force {
		return s.refresh(ctx, name, "")
	}
	if !s.registered(name) {
		return Credential{}, fmt.Errorf("%w: %s", ErrUnknownCredential, name)
	}
	if cred, ok := s.lookupLocal(ctx, name); ok {
		return cred, nil
	}
	res, err := s.join(ctx, name, false, "")
	return res.cred, err
}

// refresh 强制调用只接受远程获取的结果；加入的调用若只是重读了缓存，
// 等它结束后再发起一次。rejected 非空时，任何不同于它的有效值都可直接采用。
func (s *CredentialStore) refresh(ctx context.Context, name, rejected string) (Credential, error) {
	if !s.registered(name) {
		return Credential{}, fmt.Errorf("%w: %s", ErrUnknownCredential, name)
	}
	if cred, ok := s.replacementFor(name, rejected); ok {
		return cred, nil
	}

	for {
		res, err := s.join(ctx, name, true, rejected)
		if err != nil {
			return Credential{}, err
		}
		if res.fetched || (rejected != "" && res.cred.Value != rejected) {
			return res.cred, nil
		}
	}
}

func (s *CredentialStore) join(ctx context.Context, name string, force bool, rejected string) (flightResult, error) {
	ch := s.group.DoChan(name, func() (any, error) {
		return s.fetchAndStore(ctx, name, force, rejected)
	})
	select {
	case <-ctx.Done():
		return flightResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return flightResult{}, res.Err
		}
		return res.Val.(flightResult), nil
	}
}

// replacementFor 内存槽位中是否已有不同于 rejected 的有效凭证
func (s *CredentialStore) replacementFor(name, rejected string) (Credential, bool) {
	if rejected == "" {
		return Credential{}, false
	}
	cred, ok := s.Peek(name)
	if !ok || cred.Value == rejected || !cred.ValidAt(s.now()) {
		return Credential{}, false
	}
	return cred, true
}

func (s *CredentialStore) registered(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.fetchers[name]
	return ok
}

// lookupLocal 依次检查内存槽位和缓存，缓存命中时回填内存
func (s *CredentialStore) lookupLocal(ctx context.Context, name string) (Credential, bool) {
	now := s.now()

	s.mu.RLock()
	cred, ok := s.slots[name]
	s.mu.RUnlock()
	if ok && cred.ValidAt(now) {
		return cred, true
	}

	cred, ok = s.loadCached(ctx, name)
	if !ok || !cred.ValidAt(now) {
		return Credential{}, false
	}

	s.mu.Lock()
	s.slots[name] = cred
	s.mu.Unlock()
	return cred, true
}

func (s *CredentialStore) fetchAndStore(ctx context.Context, name string, force bool, rejected string) (flightResult, error) {
	if !force {
		if cred, ok := s.lookupLocal(ctx, name); ok {
			return flightResult{cred: cred}, nil
		}
	} else if cred, ok := s.replacementFor(name, rejected); ok {
		return flightResult{cred: cred}, nil
	}

	s.mu.RLock()
	fetcher := s.fetchers[name]
	s.mu.RUnlock()

	// 远程获取的结果由所有等待者共享，不随首个调用者取消
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
	defer cancel()

	start := time.Now()
	result, err := fetcher(fetchCtx)
	if err != nil {
		err = &CredentialFetchError{Tenant: s.tenant, Name: name, Err: err}
	} else if result.Value == "" {
		err = &InvalidCredentialDataError{Tenant: s.tenant, Name: name, Reason: "empty value"}
	} else if result.ExpiresIn <= 0 {
		err = &InvalidCredentialDataError{Tenant: s.tenant, Name: name, Reason: fmt.Sprintf("expires_in %d", result.ExpiresIn)}
	}
	s.recorder.ObserveFetch(s.tenant, name, err, time.Since(start))
	if err != nil {
		s.logger.WarnContext(ctx, "fetch credential failed",
			slog.String("name", name),
			slog.Bool("force", force),
			slog.Any("error", err),
		)
		return flightResult{}, err
	}

	ttl := time.Duration(result.ExpiresIn) * time.Second
	lifetime := ttl
	if s.expiryMargin < ttl {
		lifetime -= s.expiryMargin
	}
	cred := Credential{Value: result.Value, ExpiresAt: s.now().Add(lifetime)}
	s.store(ctx, name, cred, ttl)

	s.logger.InfoContext(ctx, "credential refreshed",
		slog.String("name", name),
		slog.Time("expires_at", cred.ExpiresAt),
	)

	if s.onUpdate != nil {
		s.onUpdate(context.WithoutCancel(ctx), CredentialUpdate{
			Tenant:    s.tenant,
			Name:      name,
			Value:     cred.Value,
			ExpiresAt: cred.ExpiresAt,
			Raw:       result.Raw,
		})
	}
	return flightResult{cred: cred, fetched: true}, nil
}

func (s *CredentialStore) store(ctx context.Context, name string, cred Credential, ttl time.Duration) {
	s.mu.Lock()
	s.slots[name] = cred
	s.mu.Unlock()

	key := s.CacheKey(name)
	payload, err := json.Marshal(cachedCredential{Value: cred.Value, ExpiresAt: cred.ExpiresAt.Unix()})
	if err == nil {
		err = s.cache.Set(ctx, key, string(payload), ttl)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "cache credential failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (s *CredentialStore) loadCached(ctx context.Context, name string) (Credential, bool) {
	key := s.CacheKey(name)
	raw, ok := s.cache.Get(ctx, key)
	if !ok || raw == "" {
		return Credential{}, false
	}

	var record cachedCredential
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		s.logger.WarnContext(ctx, "decode cached credential failed", slog.String("key", key), slog.Any("error", err))
		return Credential{}, false
	}
	return Credential{Value: record.Value, ExpiresAt: time.Unix(record.ExpiresAt, 0)}, true
}

// IsFetchError 判断 err 是否为凭证获取失败（含数据无效）
func IsFetchError(err error) bool {
	if _, ok := errors.AsType[*CredentialFetchError](err); ok {
		return true
	}
	_, ok := errors.AsType[*InvalidCredentialDataError](err)
	return ok
}

var (
	_ CredentialProvider = (*CredentialStore)(nil)
	_ RejectedRefresher  = (*CredentialStore)(nil)
)
