// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lyrebird

import (
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/lyrebird/market"
	"github.com/blinklabs-io/lyrebird/types"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	promRegistry     prometheus.Registerer
	logger           *slog.Logger
	clock            func() time.Time
	dataDir          string
	amqpUrl          string
	amqpQueue        string
	apiListenAddress string
	admin            types.Principal
	feeRecipient     types.Principal
	feeBps           uint
	tracing          bool
	tracingStdout    bool
	shutdownTimeout  time.Duration
}

// ConfigOptionFunc is a type that represents functions that modify the node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new lyrebird config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithDataDir specifies the directory for persistent state. An empty value
// keeps all state in memory.
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithPrometheusRegistry specifies a prometheus registerer to use for metrics
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithApiListenAddress specifies the listen address for the read-only REST
// API (empty = disabled)
func WithApiListenAddress(address string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddress = address
	}
}

// WithAdmin specifies the principal granted the admin role at startup
func WithAdmin(admin types.Principal) ConfigOptionFunc {
	return func(c *Config) {
		c.admin = admin
	}
}

// WithFee specifies the marketplace fee in basis points
func WithFee(bps uint) ConfigOptionFunc {
	return func(c *Config) {
		c.feeBps = bps
	}
}

// WithFeeRecipient specifies where marketplace fees are paid
func WithFeeRecipient(recipient types.Principal) ConfigOptionFunc {
	return func(c *Config) {
		c.feeRecipient = recipient
	}
}

// WithClock specifies the time source used for provenance timestamps and
// auction deadlines. Mostly useful for testing.
func WithClock(clock func() time.Time) ConfigOptionFunc {
	return func(c *Config) {
		c.clock = clock
	}
}

// WithAmqpUrl specifies a RabbitMQ broker to forward domain events to
// (empty = disabled)
func WithAmqpUrl(url string) ConfigOptionFunc {
	return func(c *Config) {
		c.amqpUrl = url
	}
}

// WithAmqpQueue specifies the queue name for forwarded domain events
func WithAmqpQueue(queue string) ConfigOptionFunc {
	return func(c *Config) {
		c.amqpQueue = queue
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// with the standard OTLP environment variables
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}

func (n *Node) configValidate() error {
	if n.config.feeBps > market.MaxFeeBps {
		return market.ErrBoundsExceeded
	}
	return nil
}
