// Copyright (C) 2021 Webtrace. All rights reserved.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	os.Unsetenv(envWebtraceServiceName)
	os.Unsetenv(envWebtraceDisabled)
	os.Unsetenv(envWebtraceAutoEnd)
	os.Unsetenv(envWebtraceConfigFile)

	c := NewConfig()
	assert.Equal(t, "go-webapp", c.GetServiceName())
	assert.False(t, c.GetDisabled())
	assert.True(t, c.GetAutoEnd())
	assert.Empty(t, c.GetTransactionFiltering())
}

func TestLoadEnvs(t *testing.T) {
	os.Setenv(envWebtraceServiceName, "billing-frontend")
	os.Setenv(envWebtraceDisabled, "true")
	os.Setenv(envWebtraceAutoEnd, "no")
	defer func() {
		os.Unsetenv(envWebtraceServiceName)
		os.Unsetenv(envWebtraceDisabled)
		os.Unsetenv(envWebtraceAutoEnd)
	}()

	c := NewConfig()
	assert.Equal(t, "billing-frontend", c.GetServiceName())
	assert.True(t, c.GetDisabled())
	assert.False(t, c.GetAutoEnd())
}

func TestConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "webtrace.yaml")
	data := `
serviceName: from-file
transactionFiltering:
  - type: url
    regexp: 'health\z'
    tracing: disabled
  - type: url
    extensions:
      - .png
      - .gif
    tracing: disabled
  - type: host
    regexp: bad
    tracing: disabled
`
	require.NoError(t, os.WriteFile(file, []byte(data), 0644))
	os.Setenv(envWebtraceConfigFile, file)
	defer os.Unsetenv(envWebtraceConfigFile)

	c := NewConfig()
	assert.Equal(t, "from-file", c.GetServiceName())

	// the filter with an invalid type is dropped by validation
	filters := c.GetTransactionFiltering()
	require.Len(t, filters, 2)
	assert.Equal(t, `health\z`, filters[0].RegEx)
	assert.Equal(t, DisabledTracingMode, filters[0].Tracing)
	assert.Equal(t, []string{".png", ".gif"}, filters[1].Extensions)
}

func TestEnvOverridesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "webtrace.yml")
	require.NoError(t, os.WriteFile(file, []byte("serviceName: from-file\n"), 0644))
	os.Setenv(envWebtraceConfigFile, file)
	os.Setenv(envWebtraceServiceName, "from-env")
	defer func() {
		os.Unsetenv(envWebtraceConfigFile)
		os.Unsetenv(envWebtraceServiceName)
	}()

	c := NewConfig()
	assert.Equal(t, "from-env", c.GetServiceName())
}

func TestUnsupportedConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "webtrace.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0644))
	os.Setenv(envWebtraceConfigFile, file)
	defer os.Unsetenv(envWebtraceConfigFile)

	c := &Config{}
	err := c.RefreshConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrUnsupportedFormat.Error())
}

func TestWithOptions(t *testing.T) {
	c := NewConfig(WithServiceName("opted"), WithDisabled(true))
	assert.Equal(t, "opted", c.GetServiceName())
	assert.True(t, c.GetDisabled())
}
