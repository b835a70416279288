package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveCachesHit(t *testing.T) {
	calls := 0
	r := New(time.Minute, time.Minute)
	r.lookup = func(ctx context.Context, addr string) ([]string, error) {
		calls++
		return []string{"host.example.com."}, nil
	}

	host := r.Resolve(context.Background(), "1.2.3.4")
	assert.Equal(t, "host.example.com", host)

	host = r.Resolve(context.Background(), "1.2.3.4")
	assert.Equal(t, "host.example.com", host)
	assert.Equal(t, 1, calls, "second call must hit the cache")
}

func TestResolveFallsBackToIPOnError(t *testing.T) {
	r := New(time.Minute, time.Minute)
	r.lookup = func(ctx context.Context, addr string) ([]string, error) {
		return nil, errors.New("no ptr record")
	}
	assert.Equal(t, "5.6.7.8", r.Resolve(context.Background(), "5.6.7.8"))
}
