package core

import "time"

// Recorder 指标采集接口，由 metrics 包提供 Prometheus 实现
type Recorder interface {
	// ObserveRequest 记录一次 HTTP 往返，errcode 为 0 表示成功，-1 表示网络错误
	ObserveRequest(path string, errcode int, duration time.Duration)
	// IncRetry 记录一次因 errcode 触发的凭证刷新重试
	IncRetry(path string, errcode int)
	// ObserveFetch 记录一次凭证远程获取
	ObserveFetch(tenant, name string, err error, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest(string, int, time.Duration)         {}
func (nopRecorder) IncRetry(string, int)                              {}
func (nopRecorder) ObserveFetch(string, string, error, time.Duration) {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
