package tokend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultWarmTimeout 单轮预热的总超时
const DefaultWarmTimeout = 2 * time.Minute

// WarmerConfig 预热配置
type WarmerConfig struct {
	// Schedule 标准 cron 表达式或 @every 描述
	Schedule string
	// Margin 剩余有效期不足该值时提前刷新
	Margin  time.Duration
	Timeout time.Duration
	Logger  *zap.Logger
	Clock   func() time.Time
}

// WarmResult 一轮预热的统计
type WarmResult struct {
	Checked   int
	Loaded    int // 内存缺失，从缓存或远程载入
	Refreshed int // 即将过期，强制刷新
	Failed    int
}

type warmAction int

const (
	warmNone warmAction = iota
	warmLoaded
	warmRefreshed
)

// Warmer 定时检查全部租户的凭证，缺失或即将过期时刷新
//
// 失败只记录日志，不影响下一轮。
type Warmer struct {
	registry *Registry
	margin   time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
	cron     *cron.Cron
	entry    cron.EntryID

	// Stop 取消 ctx，正在执行的一轮随之中止
	ctx    context.Context
	cancel context.CancelFunc
	// 跟踪 Start 触发的首轮，cron 自身只等待调度产生的任务
	wg sync.WaitGroup
}

// NewWarmer 解析调度表达式并创建预热器，调用 Start 后生效
func NewWarmer(registry *Registry, cfg WarmerConfig) (*Warmer, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWarmTimeout
	}

	w := &Warmer{
		registry: registry,
		margin:   max(cfg.Margin, 0),
		timeout:  cfg.Timeout,
		logger:   cfg.Logger.Named("warmer"),
		now:      cfg.Clock,
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.cron = cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(zap.NewStdLog(w.logger))),
		cron.SkipIfStillRunning(cron.PrintfLogger(zap.NewStdLog(w.logger))),
	))
	entry, err := w.cron.AddFunc(cfg.Schedule, w.tick)
	if err != nil {
		return nil, fmt.Errorf("invalid warmup schedule %q: %w", cfg.Schedule, err)
	}
	w.entry = entry
	return w, nil
}

// Start 开始调度，并在后台立即执行一轮
func (w *Warmer) Start() {
	job := w.cron.Entry(w.entry).WrappedJob
	w.cron.Start()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		job.Run()
	}()
}

// Stop 停止调度，取消正在执行的一轮并等待其返回，最多等到 ctx 结束
func (w *Warmer) Stop(ctx context.Context) {
	stopped := w.cron.Stop()
	w.cancel()

	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (w *Warmer) tick() {
	if w.ctx.Err() != nil {
		return
	}
	w.RunOnce(w.ctx)
}

// RunOnce 执行一轮预热
func (w *Warmer) RunOnce(ctx context.Context) WarmResult {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var res WarmResult
	for _, t := range w.registry.Tenants() {
		for _, name := range t.Store.Names() {
			res.Checked++
			action, err := w.warm(ctx, t, name)
			if err != nil {
				res.Failed++
				w.logger.Warn("warm credential failed",
					zap.String("tenant_id", t.ID),
					zap.String("name", name),
					zap.Error(err),
				)
				continue
			}
			switch action {
			case warmLoaded:
				res.Loaded++
			case warmRefreshed:
				res.Refreshed++
			}
		}
	}

	if res.Loaded > 0 || res.Refreshed > 0 || res.Failed > 0 {
		w.logger.Info("warmup finished",
			zap.Int("checked", res.Checked),
			zap.Int("loaded", res.Loaded),
			zap.Int("refreshed", res.Refreshed),
			zap.Int("failed", res.Failed),
		)
	}
	return res
}

// warm 内存槽位缺失时先走 Lookup（可能命中共享缓存），仍即将过期再强制刷新
func (w *Warmer) warm(ctx context.Context, t *Tenant, name string) (warmAction, error) {
	action := warmNone
	cred, ok := t.Store.Peek(name)
	if !ok || !cred.ValidAt(w.now()) {
		var err error
		if cred, err = t.Store.Lookup(ctx, name); err != nil {
			return warmNone, err
		}
		action = warmLoaded
	}
	if cred.ExpiresAt.Sub(w.now()) > w.margin {
		return action, nil
	}
	if _, err := t.Store.Refresh(ctx, name); err != nil {
		return warmNone, err
	}
	return warmRefreshed, nil
}
