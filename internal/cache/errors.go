package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable 表示上游抓取失败（超时、拒绝连接、响应格式错误）。
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrNoCachedData 表示抓取失败且槽位从未成功写入，无法兜底。
	ErrNoCachedData = errors.New("no cached data")
)

// UpstreamError 记录失败的上游来源，errors.Is(err, ErrUpstreamUnavailable) 恒为真。
type UpstreamError struct {
	Source string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is 让所有 UpstreamError 匹配 ErrUpstreamUnavailable。
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// Upstream 把任意错误包装为 UpstreamError；已经包装过的原样返回。
func Upstream(source string, err error) error {
	if err == nil {
		return nil
	}
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return err
	}
	return &UpstreamError{Source: source, Err: err}
}
