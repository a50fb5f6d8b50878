// Package util reads the process-wide switches of the client from the
// environment.
package util

import (
	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "saferpay.util")

// Switches are the debugging knobs shared by the client and the sandbox.
type Switches struct {
	Debug     bool `env:"SAFERPAY_DEBUG" envDefault:"false"`
	HttpTrace bool `env:"SAFERPAY_HTTP_TRACE" envDefault:"false"`
}

// LoadSwitches parses Switches from the environment.
func LoadSwitches() (Switches, error) {
	return env.ParseAs[Switches]()
}

func DebugEnabled() bool {
	return load().Debug
}

func HttpTraceEnabled() bool {
	return load().HttpTrace
}

// load treats a malformed switch as off.
func load() Switches {
	s, err := LoadSwitches()
	if err != nil {
		logger.WithError(err).Debug("ignoring invalid debug switch")
		return Switches{}
	}
	return s
}
