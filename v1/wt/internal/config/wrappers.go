// Copyright (C) 2021 Webtrace. All rights reserved.

package config

var conf = NewConfig()

// GetServiceName is a wrapper to the method of the global config
var GetServiceName = conf.GetServiceName

// GetDisabled is a wrapper to the method of the global config
var GetDisabled = conf.GetDisabled

// GetAutoEnd is a wrapper to the method of the global config
var GetAutoEnd = conf.GetAutoEnd

// GetTransactionFiltering is a wrapper to the method of the global config
var GetTransactionFiltering = conf.GetTransactionFiltering

// Load reloads the global config from the config file and env variables.
func Load() error {
	return conf.RefreshConfig()
}
