package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"
)

// Policy 描述一次调用的重试策略，调用之间不共享任何状态。
type Policy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
	// OnRetry 在每次等待重试前触发，attempt 从 1 开始。
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy 返回默认策略：最多重试 3 次，首次等待 1s，每次翻倍。
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		BackoffFactor: 2,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = 1
	}
	return p
}

// Do 执行 op，遇到瞬时网络错误时按退避策略重试，其余错误立即返回。
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()
	delay := p.InitialDelay

	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= p.MaxRetries || !IsTransient(err) {
			return result, err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}

		if err := sleep(ctx, delay); err != nil {
			return result, err
		}
		delay = time.Duration(float64(delay) * p.BackoffFactor)
	}
}

// Run 是 Do 的无返回值版本。
func Run(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient 将错误显式标记为可重试。
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// statusCoder 由携带 HTTP 状态码的错误实现，状态码为 0 表示请求未得到响应。
type statusCoder interface {
	HTTPStatus() int
}

var networkSignatures = []string{
	"network",
	"fetch failed",
	"failed to fetch",
	"connection reset",
	"connection refused",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"tls handshake timeout",
	"server closed idle connection",
}

// IsTransient 判断错误是否属于瞬时网络故障。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	// context 错误同样实现了 net.Error，必须先排除
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var marked *transientError
	if errors.As(err, &marked) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var sc statusCoder
	if errors.As(err, &sc) && sc.HTTPStatus() == 0 {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range networkSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
