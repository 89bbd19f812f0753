package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrNilPusher      = errors.New("nil pusher")
	ErrInvalidRequest = errors.New("invalid upload request")
)

// StatusError 非 2xx 响应
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string { return fmt.Sprintf("http %d", e.Code) }

// Retryable 5xx 可重试
func (e *StatusError) Retryable() bool { return e.Code >= 500 }

// Pusher 签名推送 JSON，5xx 与网络错误按退避重试
type Pusher struct {
	Client  *http.Client
	APIKey  string
	Secret  string
	Retries int
	Backoff []time.Duration
	Limiter *rate.Limiter
	Breaker *Breaker
	now     func() time.Time
}

// NewPusher 创建推送器
func NewPusher(client *http.Client, apiKey, secret string) *Pusher {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Pusher{
		Client:  client,
		APIKey:  apiKey,
		Secret:  secret,
		Retries: 3,
		Backoff: []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 500 * time.Millisecond, time.Second, 2 * time.Second},
		now:     time.Now,
	}
}

// WithRateLimit 每秒请求数限制，rps<=0 不限
func (p *Pusher) WithRateLimit(rps float64, burst int) *Pusher {
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		p.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return p
}

// WithBreaker 熔断保护，nil 不启用
func (p *Pusher) WithBreaker(b *Breaker) *Pusher {
	p.Breaker = b
	return p
}

// SendJSON 发送 JSON 事件，自动添加签名头。非 2xx 以 *StatusError 返回；
// 熔断中直接返回 ErrCircuitOpen
func (p *Pusher) SendJSON(ctx context.Context, endpoint string, payload any) (int, []byte, error) {
	if p == nil || p.Client == nil {
		return 0, nil, ErrNilPusher
	}
	if p.Breaker == nil {
		return p.send(ctx, endpoint, payload)
	}
	if err := p.Breaker.Allow(); err != nil {
		return 0, nil, err
	}
	code, body, err := p.send(ctx, endpoint, payload)
	if errors.Is(err, context.Canceled) {
		p.Breaker.Abort()
	} else {
		p.Breaker.Record(err)
	}
	return code, body, err
}

func (p *Pusher) send(ctx context.Context, endpoint string, payload any) (int, []byte, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	ts := p.now().Unix()
	nonce := fmt.Sprintf("%08x", rand.Uint32())
	sig := SignHMAC(p.Secret, buildCanonical(http.MethodPost, u.Path, ts, nonce, hashHex(body)))

	var lastErr error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return 0, nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Api-Key", p.APIKey)
		req.Header.Set("X-Signature", sig)
		req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
		req.Header.Set("X-Nonce", nonce)

		resp, err := p.Client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			rb, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			code := resp.StatusCode
			if code >= 200 && code < 300 {
				return code, rb, nil
			}
			lastErr = &StatusError{Code: code, Body: rb}
			// 非2xx：仅对5xx重试
			if code < 500 {
				return code, rb, lastErr
			}
		}
		if attempt == p.Retries || ctx.Err() != nil {
			break
		}
		backoff := p.Backoff[min(attempt, len(p.Backoff)-1)]
		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	var se *StatusError
	if errors.As(lastErr, &se) {
		return se.Code, se.Body, lastErr
	}
	return 0, nil, lastErr
}

// Retryable 错误是否值得稍后重试（网络错误或 5xx）
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return !errors.Is(err, ErrNilPusher) && !errors.Is(err, ErrInvalidRequest) && !errors.Is(err, context.Canceled)
}
