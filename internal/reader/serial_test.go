package reader

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarm/serial"

	"github.com/taoyao-code/scan-scale/internal/metrics"
)

// fakePort 依次返回预置的块，耗尽后按读超时语义返回 0, io.EOF
type fakePort struct {
	mu     sync.Mutex
	chunks [][]byte
	fail   error
	closed bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.chunks) == 0 {
		if p.fail != nil {
			return 0, p.fail
		}
		time.Sleep(time.Millisecond)
		return 0, io.EOF
	}
	n := copy(b, p.chunks[0])
	p.chunks = p.chunks[1:]
	return n, nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func drain(s Source) []byte {
	var out []byte
	for {
		b, ok := s.TryRead()
		if !ok {
			return out
		}
		out = append(out, b)
	}
}

func TestSerial_StreamsBytes(t *testing.T) {
	port := &fakePort{chunks: [][]byte{[]byte("\x0201"), []byte("00A1B2C3D1\x03")}}
	var gotCfg *serial.Config
	m := metrics.NewAppMetrics(prometheus.NewRegistry())
	s := NewSerial(SerialConfig{Device: "/dev/ttyS0"},
		WithMetrics(m),
		WithOpener(func(cfg *serial.Config) (Port, error) { gotCfg = cfg; return port, nil }))

	_, ok := s.TryRead()
	assert.False(t, ok, "empty source reports no data")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Status().Bytes == 14 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []byte("\x020100A1B2C3D1\x03"), drain(s))
	assert.True(t, s.Status().Connected)
	assert.Equal(t, 14.0, testutil.ToFloat64(m.SerialBytes))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, DefaultBaud, gotCfg.Baud)
	assert.Equal(t, "/dev/ttyS0", gotCfg.Name)
	assert.True(t, port.closed)
}

func TestSerial_ReopensAfterFailure(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	open := func(*serial.Config) (Port, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		switch attempts {
		case 1:
			return nil, errors.New("no such device")
		case 2:
			return &fakePort{chunks: [][]byte{{0x02}}, fail: errors.New("unplugged")}, nil
		default:
			return &fakePort{chunks: [][]byte{{0x03}}}, nil
		}
	}
	m := metrics.NewAppMetrics(prometheus.NewRegistry())
	s := NewSerial(SerialConfig{Device: "ttyUSB0", ReopenDelay: time.Millisecond}, WithOpener(open), WithMetrics(m))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Status().Bytes == 2 }, 3*time.Second, time.Millisecond)
	assert.Equal(t, []byte{0x02, 0x03}, drain(s))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SerialOpenTotal.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SerialOpenTotal.WithLabelValues("ok")))
}

func TestSerial_DropsWhenBufferFull(t *testing.T) {
	s := NewSerial(SerialConfig{BufferSize: 4})
	s.push([]byte("abcdef"))

	assert.Equal(t, []byte("abcd"), drain(s))
	st := s.Status()
	assert.Equal(t, uint64(6), st.Bytes)
	assert.Equal(t, uint64(2), st.Dropped)
}
