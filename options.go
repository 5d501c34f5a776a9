package piglet

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/nimbusrobotics/piglet/wire"
)

// config holds the resolved settings a Dial call builds from its
// Options, defaulting to silent logging, the protocol's default
// version byte, and no metrics registration.
type config struct {
	log         logrus.FieldLogger
	version     uint8
	dialTimeout time.Duration
	handshakeTO time.Duration
	metricsReg  prometheus.Registerer
}

func defaultConfig() *config {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &config{
		log:         log,
		version:     wire.DefaultVersion,
		dialTimeout: 10 * time.Second,
		handshakeTO: 5 * time.Second,
	}
}

// Option configures a Dial call.
type Option func(*config)

// WithLogger directs connection-lifecycle and protocol-violation
// logging to log instead of discarding it.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *config) { c.log = log }
}

// WithVersion overrides the outer-frame version byte.
func WithVersion(version uint8) Option {
	return func(c *config) { c.version = version }
}

// WithDialTimeout bounds how long Dial waits to open the TCP
// connection.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) { c.dialTimeout = d }
}

// WithHandshakeTimeout bounds how long Dial waits for the handshake
// reply.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *config) { c.handshakeTO = d }
}

// WithMetricsRegisterer registers the multiplexer's Prometheus
// collectors with reg. Unset, no metrics are collected.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(c *config) { c.metricsReg = reg }
}
