package finnhub

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := NewRetryPolicy()

	tests := []struct {
		name       string
		attempt    int
		statusCode int
		err        error
		want       bool
	}{
		{name: "429 first attempt", attempt: 0, statusCode: 429, err: errors.New("x"), want: true},
		{name: "503 second attempt", attempt: 1, statusCode: 503, err: errors.New("x"), want: true},
		{name: "503 last attempt", attempt: 2, statusCode: 503, err: errors.New("x"), want: false},
		{name: "400 not retried", attempt: 0, statusCode: 400, err: errors.New("x"), want: false},
		{name: "401 not retried", attempt: 0, statusCode: 401, err: errors.New("x"), want: false},
		{name: "408 retried", attempt: 0, statusCode: 408, err: errors.New("x"), want: true},
		{name: "connection refused retried", attempt: 0, err: &net.OpError{Op: "dial", Err: errors.New("refused")}, want: true},
		{name: "deadline retried", attempt: 0, err: context.DeadlineExceeded, want: true},
		{name: "cancel not retried", attempt: 0, err: context.Canceled, want: false},
		{name: "decode error not retried", attempt: 0, err: errors.New("bad json"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldRetry(tt.attempt, tt.statusCode, tt.err))
		})
	}
}

func TestRetryPolicy_CalculateBackoff(t *testing.T) {
	p := NewRetryPolicy()
	assert.Equal(t, 2*time.Second, p.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, p.CalculateBackoff(2), "fixed strategy ignores attempt")

	p.Strategy = BackoffExponential
	p.InitialBackoff = time.Second
	for attempt := 0; attempt < 4; attempt++ {
		base := float64(time.Second) * float64(int(1)<<attempt)
		got := float64(p.CalculateBackoff(attempt))
		assert.GreaterOrEqual(t, got, base*0.75)
		assert.LessOrEqual(t, got, base*1.25)
	}

	big := p.CalculateBackoff(10)
	assert.LessOrEqual(t, big, time.Duration(float64(p.MaxBackoff)*1.25))
}
