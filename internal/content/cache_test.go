package content

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache(t *testing.T) {
	now := time.Now()
	rec := &Record{Code: "4821", Payload: Text{Body: "x"}, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}

	c := NewCache(2, time.Minute)
	assert.True(t, c.Set(rec, c.Generation()))

	got, ok := c.Get("4821", now)
	assert.True(t, ok)
	assert.Same(t, rec, got)

	_, ok = c.Get("4821", now.Add(2*time.Hour))
	assert.False(t, ok, "expired record must not be served")
	assert.Equal(t, 0, c.Len())

	c.Set(rec, c.Generation())
	c.Purge()
	_, ok = c.Get("4821", now)
	assert.False(t, ok)
}

func TestDisabledCache(t *testing.T) {
	c := NewCache(0, time.Minute)
	assert.Nil(t, c)

	assert.False(t, c.Set(&Record{Code: "1000", Payload: Text{}}, c.Generation()))
	_, ok := c.Get("1000", time.Now())
	assert.False(t, ok)
	c.Remove("1000")
	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestCacheSkipsSetAfterInvalidation(t *testing.T) {
	now := time.Now()
	rec := &Record{Code: "4821", Payload: Text{Body: "x"}, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	c := NewCache(2, time.Minute)

	gen := c.Generation()
	c.Purge()
	assert.False(t, c.Set(rec, gen))
	_, ok := c.Get("4821", now)
	assert.False(t, ok)

	gen = c.Generation()
	c.Remove("1000")
	assert.False(t, c.Set(rec, gen))

	assert.True(t, c.Set(rec, c.Generation()))
	_, ok = c.Get("4821", now)
	assert.True(t, ok)
}
