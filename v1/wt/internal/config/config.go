// Copyright (C) 2021 Webtrace. All rights reserved.

// Package config is responsible for loading the configuration from various
// sources, e.g., environment variables and configuration files.
//
// In order to add a new configuration item, you need to:
// - add a field to the Config struct and assign the corresponding env variable
//   name and the default value via struct tags.
// - add validation code to method `Config.validate()` (optional).
// - add a method to retrieve the config value and a wrapper for the default
//   global variable `conf` (see wrappers.go).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/webtrace/webtrace-go/v1/wt/internal/log"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// max config file size = 1MB
const maxConfigFileSize = 1024 * 1024

// The environment variables
const (
	envWebtraceServiceName = "WEBTRACE_SERVICE_NAME"
	envWebtraceDisabled    = "WEBTRACE_DISABLED"
	envWebtraceAutoEnd     = "WEBTRACE_AUTO_END"
	envWebtraceConfigFile  = "WEBTRACE_CONFIG_FILE"
)

// Errors
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrFileTooLarge      = errors.New("file size exceeds limit")
)

// TracingMode defines the tracing decision attached to a transaction filter.
type TracingMode string

// tracing modes
const (
	EnabledTracingMode  TracingMode = "enabled"
	DisabledTracingMode TracingMode = "disabled"
)

// TransactionFilter defines a filter that decides whether a URL gets a
// transaction.
type TransactionFilter struct {
	Type       string      `yaml:"type"`
	RegEx      string      `yaml:"regexp,omitempty"`
	Extensions []string    `yaml:"extensions,omitempty"`
	Tracing    TracingMode `yaml:"tracing"`
}

// filter types
const urlFilterType = "url"

func (f TransactionFilter) validate() error {
	if f.Type != urlFilterType {
		return errors.Errorf("invalid filter type: %s", f.Type)
	}
	if f.Tracing != EnabledTracingMode && f.Tracing != DisabledTracingMode {
		return errors.Errorf("invalid tracing mode: %s", f.Tracing)
	}
	if f.RegEx == "" && len(f.Extensions) == 0 {
		return errors.New("either regexp or extensions must be set")
	}
	return nil
}

// Config is the struct to define the shim configuration. The values are not
// intended for dynamic updating.
type Config struct {
	sync.RWMutex `yaml:"-"`

	// ServiceName identifies the web application in the wrapped tracer.
	ServiceName string `yaml:"serviceName,omitempty" env:"WEBTRACE_SERVICE_NAME" default:"go-webapp"`

	// Disabled turns the shim into a no-op: transactions are null handles.
	Disabled bool `yaml:"disabled,omitempty" env:"WEBTRACE_DISABLED" default:"false"`

	// AutoEnd is the default value of the per-transaction auto-end-on-shutdown flag.
	AutoEnd bool `yaml:"autoEnd,omitempty" env:"WEBTRACE_AUTO_END" default:"true"`

	// TransactionFiltering lists URL filters consulted by the HTTP
	// instrumentation. Only settable via the config file.
	TransactionFiltering []TransactionFilter `yaml:"transactionFiltering,omitempty"`
}

// Option is a function type that accepts a Config pointer and
// applies the configuration option it defines.
type Option func(c *Config)

// WithServiceName defines a Config option for the service name.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithDisabled defines a Config option that disables the shim.
func WithDisabled(disabled bool) Option {
	return func(c *Config) {
		c.Disabled = disabled
	}
}

// NewConfig initializes a Config object and overrides default values with the
// options provided as arguments. It may print errors if there are invalid
// values in the configuration file or the environment variables.
//
// If there is an error (e.g., an invalid config option value), it will return
// a config with default values.
func NewConfig(opts ...Option) *Config {
	c := &Config{}
	if err := c.RefreshConfig(opts...); err != nil {
		e := errors.Wrap(err, "config init failed, falling back to default values")
		log.Error(e)
		c.reset()
	}
	return c
}

// RefreshConfig loads the customized settings and merges with default values
func (c *Config) RefreshConfig(opts ...Option) error {
	c.Lock()
	defer c.Unlock()

	c.reset()

	if err := c.loadConfigFile(); err != nil {
		return errors.Wrap(err, "RefreshConfig")
	}
	c.loadEnvs()

	for _, opt := range opts {
		opt(c)
	}
	c.validate()

	return nil
}

// reset reassigns the default values defined by the struct tags.
func (c *Config) reset() {
	cv := reflect.Indirect(reflect.ValueOf(c))
	ct := cv.Type()

	for i := 0; i < ct.NumField(); i++ {
		field := ct.Field(i)
		fieldV := cv.Field(i)
		if field.Anonymous || !fieldV.CanSet() {
			continue
		}

		switch field.Type.Kind() {
		case reflect.String:
			fieldV.SetString(field.Tag.Get("default"))
		case reflect.Bool:
			fieldV.SetBool(toBool(field.Tag.Get("default")))
		case reflect.Slice:
			fieldV.Set(reflect.Zero(field.Type))
		}
	}
}

// loadEnvs loads environment variable values and updates the Config object.
// Environment variables take precedence over the config file.
func (c *Config) loadEnvs() {
	cv := reflect.Indirect(reflect.ValueOf(c))
	ct := cv.Type()

	for i := 0; i < ct.NumField(); i++ {
		field := ct.Field(i)
		fieldV := cv.Field(i)
		if field.Anonymous || !fieldV.CanSet() {
			continue
		}

		tagV := field.Tag.Get("env")
		if tagV == "" {
			continue
		}
		envVal := os.Getenv(tagV)
		if envVal == "" {
			continue
		}

		switch field.Type.Kind() {
		case reflect.String:
			fieldV.SetString(strings.TrimSpace(envVal))
		case reflect.Bool:
			fieldV.SetBool(toBool(envVal))
		}
	}
}

// toBool accepts "true/false/yes/no" in any case, anything else is false.
func toBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "yes"
}

func (c *Config) validate() {
	if c.ServiceName == "" {
		log.Warning(InvalidEnv("ServiceName", c.ServiceName))
		c.ServiceName = "go-webapp"
	}

	var valid []TransactionFilter
	for _, f := range c.TransactionFiltering {
		if err := f.validate(); err != nil {
			log.Warning(InvalidEnv("TransactionFiltering", err.Error()))
			continue
		}
		valid = append(valid, f)
	}
	c.TransactionFiltering = valid
}

// getConfigPath returns the absolute path of the config file.
func (c *Config) getConfigPath() string {
	path, ok := os.LookupEnv(envWebtraceConfigFile)
	if ok {
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		} else {
			log.Warningf("Ignore config file %s: %s", path, err)
		}
	}

	candidates := []string{
		"./webtrace.yaml",
		"./webtrace.yml",
	}

	for _, file := range candidates {
		abs, err := filepath.Abs(file)
		if err != nil {
			continue
		}
		if _, e := os.Stat(abs); e != nil {
			continue
		}
		return abs
	}

	return ""
}

// loadConfigFile parses the config file pointed to by getConfigPath, if any.
func (c *Config) loadConfigFile() error {
	path := c.getConfigPath()
	if path == "" {
		return nil
	}

	ext := filepath.Ext(path)
	if ext != ".yaml" && ext != ".yml" {
		return errors.Wrap(ErrUnsupportedFormat, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(err, "loadConfigFile")
	}
	if info.Size() > maxConfigFileSize {
		return errors.Wrap(ErrFileTooLarge, fmt.Sprintf("size: %d", info.Size()))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "loadConfigFile")
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrap(err, "loadConfigFile")
	}
	return nil
}

// InvalidEnv returns a message indicating that the value of an item is invalid.
func InvalidEnv(name string, value string) string {
	return fmt.Sprintf("invalid config item: %s (%s)", name, value)
}

// GetServiceName returns the service name
func (c *Config) GetServiceName() string {
	c.RLock()
	defer c.RUnlock()
	return c.ServiceName
}

// GetDisabled returns if the shim is disabled
func (c *Config) GetDisabled() bool {
	c.RLock()
	defer c.RUnlock()
	return c.Disabled
}

// GetAutoEnd returns the default auto-end-on-shutdown flag
func (c *Config) GetAutoEnd() bool {
	c.RLock()
	defer c.RUnlock()
	return c.AutoEnd
}

// GetTransactionFiltering returns the URL filters
func (c *Config) GetTransactionFiltering() []TransactionFilter {
	c.RLock()
	defer c.RUnlock()
	return c.TransactionFiltering
}
