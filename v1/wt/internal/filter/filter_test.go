// Copyright (C) 2021 Webtrace. All rights reserved.

package filter

import (
	"testing"

	"github.com/webtrace/webtrace-go/v1/wt/internal/config"

	"github.com/coocood/freecache"
	"github.com/stretchr/testify/assert"
)

func TestURLCache(t *testing.T) {
	cache := &Cache{freecache.NewCache(1024 * 1024)}

	cache.SetURLTrace("traced_1", true)
	cache.SetURLTrace("not_traced_1", false)

	trace, err := cache.GetURLTrace("traced_1")
	assert.Nil(t, err)
	assert.True(t, trace)

	trace, err = cache.GetURLTrace("not_traced_1")
	assert.Nil(t, err)
	assert.False(t, trace)

	trace, err = cache.GetURLTrace("non_exist_1")
	assert.NotNil(t, err)
	assert.False(t, trace)
	assert.Equal(t, int64(1), cache.MissCount())
}

func TestURLFilter(t *testing.T) {
	f := newURLFilter()
	f.loadConfig([]config.TransactionFilter{
		{Type: "url", RegEx: `user\d{3}`, Tracing: config.DisabledTracingMode},
		{Type: "url", Extensions: []string{".png", ".jpg"}, Tracing: config.DisabledTracingMode},
	})

	assert.False(t, f.ShouldTrace("user123"))
	assert.Equal(t, int64(1), f.cache.EntryCount())

	assert.True(t, f.ShouldTrace("test123"))
	assert.Equal(t, int64(2), f.cache.EntryCount())

	assert.False(t, f.ShouldTrace("user200"))
	assert.Equal(t, int64(3), f.cache.EntryCount())

	// second lookup is served from the cache
	assert.False(t, f.ShouldTrace("user123"))
	assert.Equal(t, int64(3), f.cache.EntryCount())
	assert.Equal(t, int64(1), f.cache.HitCount())

	assert.False(t, f.ShouldTrace("http://user.com/eric/avatar.png"))
}

func TestURLFilterNoFilters(t *testing.T) {
	f := newURLFilter()
	assert.True(t, f.ShouldTrace("anything"))
}

func TestURLFilterEnabledModeSkipped(t *testing.T) {
	f := newURLFilter()
	f.loadConfig([]config.TransactionFilter{
		{Type: "url", RegEx: `keep-me`, Tracing: config.EnabledTracingMode},
	})
	assert.True(t, f.ShouldTrace("keep-me"))
}

func TestURLFilterBadRegex(t *testing.T) {
	f := newURLFilter()
	f.loadConfig([]config.TransactionFilter{
		{Type: "url", RegEx: `(`, Tracing: config.DisabledTracingMode},
	})
	assert.Empty(t, f.filters)
	assert.True(t, f.ShouldTrace("anything"))
}

func TestReloadConfig(t *testing.T) {
	ReloadConfig([]config.TransactionFilter{
		{Type: "url", RegEx: `private`, Tracing: config.DisabledTracingMode},
	})
	defer ReloadConfig(nil)

	assert.False(t, ShouldTrace("/private/data"))
	assert.True(t, ShouldTrace("/public/data"))
}
