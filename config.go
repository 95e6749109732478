package raft

import (
	"time"

	"github.com/flowraft/raftcore/internal/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a GroupHost using the functional options paradigm
// popularized by Rob Pike and Dave Cheney. If you're unfamiliar with this
// style, see https://commandcenter.blogspot.com/2014/01/self-referential-functions-and-design.html
// and https://dave.cheney.net/2014/10/17/functional-options-for-friendly-apis.
type Option interface {
	apply(c *hostConfig)
}

// optionFunc implements Option.
type optionFunc func(c *hostConfig)

func (fn optionFunc) apply(c *hostConfig) { fn(c) }

// WithLogger sets the Logger used to generate every line of output.
func WithLogger(lg Logger) Option {
	return optionFunc(func(c *hostConfig) {
		log.SetLogger(lg)
	})
}

// WithListenAddress sets the address the host's gRPC transport server
// binds to. Default: ":7117".
func WithListenAddress(addr string) Option {
	return optionFunc(func(c *hostConfig) { c.listenAddr = addr })
}

// WithDialTimeout sets the dial timeout handed to the host's
// grpcproto.Client. The client stores the value but does not apply it:
// connections are created lazily with no dial deadline, and each SendVote
// / SendAppendEntries / SendInstallSnapshot / SendPing is bounded only by
// the context its caller passes (the group's RPC timeout).
//
// Default Value: 5's.
func WithDialTimeout(d time.Duration) Option {
	return optionFunc(func(c *hostConfig) { c.dialTimeout = d })
}

// WithMetricsRegisterer registers this host's Prometheus metrics against
// reg instead of the package default registry. Pass a fresh
// prometheus.NewRegistry() to run more than one GroupHost in a process
// (as tests do) without colliding metric names.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return optionFunc(func(c *hostConfig) { c.metricsRegisterer = reg })
}

// GroupOption configures one Raft group using the same functional-options
// paradigm as Option, scoped to AddGroup instead of NewHost.
type GroupOption interface {
	apply(c *groupConfig)
}

type groupOptionFunc func(c *groupConfig)

func (fn groupOptionFunc) apply(c *groupConfig) { fn(c) }

// WithObserver marks this group's local node as an observer: it keeps the
// observer role, receives replicated entries, never starts an election and
// runs no replicator fibers. It still answers vote requests like any other
// member, and it is still counted in electQuorum/rwQuorum on every node,
// since the member map carries no observer flag.
func WithObserver() GroupOption {
	return groupOptionFunc(func(c *groupConfig) { c.observer = true })
}

// WithElectTimeout is the duration a follower waits without hearing from a
// leader before starting a pre-vote round.
//
// Default Value: 1's.
func WithElectTimeout(d time.Duration) GroupOption {
	return groupOptionFunc(func(c *groupConfig) { c.electTimeout = d })
}

// WithHeartbeatInterval is how often the leader replicator loop contacts
// each peer while caught up.
//
// Default Value: electTimeout / 5.
func WithHeartbeatInterval(d time.Duration) GroupOption {
	return groupOptionFunc(func(c *groupConfig) { c.heartbeatInterval = d })
}

// WithRPCTimeout bounds a single in-flight AppendEntries/Vote/Ping/
// InstallSnapshot round trip to a peer.
//
// Default Value: electTimeout.
func WithRPCTimeout(d time.Duration) GroupOption {
	return groupOptionFunc(func(c *groupConfig) { c.rpcTimeout = d })
}

// WithMaxAppendBatch caps the entries carried in one AppendEntries RPC.
//
// Default Value: 256.
func WithMaxAppendBatch(n int) GroupOption {
	return groupOptionFunc(func(c *groupConfig) { c.maxAppendBatch = n })
}

// WithMaxPendingWrites caps proposals registered in TailCache awaiting
// commit before Propose starts rejecting with ErrBackpressureReject.
//
// Default Value: 4096.
func WithMaxPendingWrites(n int) GroupOption {
	return groupOptionFunc(func(c *groupConfig) { c.maxPendingWrites = n })
}

// WithSegmentBytes sets the target size of one log segment file before
// internal/raftlog rolls to the next.
//
// Default Value: 64MiB.
func WithSegmentBytes(n int64) GroupOption {
	return groupOptionFunc(func(c *groupConfig) { c.segmentBytes = n })
}

type hostConfig struct {
	listenAddr        string
	dialTimeout       time.Duration
	metricsRegisterer prometheus.Registerer
}

func newHostConfig(opts ...Option) *hostConfig {
	c := &hostConfig{
		listenAddr:        ":7117",
		dialTimeout:       5 * time.Second,
		metricsRegisterer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	return c
}

type groupConfig struct {
	observer          bool
	electTimeout      time.Duration
	heartbeatInterval time.Duration
	rpcTimeout        time.Duration
	maxAppendBatch    int
	maxPendingWrites  int
	segmentBytes      int64
}

func newGroupConfig(opts ...GroupOption) *groupConfig {
	c := &groupConfig{
		electTimeout:   time.Second,
		maxAppendBatch: 256,
		segmentBytes:   64 << 20,
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	if c.heartbeatInterval <= 0 {
		c.heartbeatInterval = c.electTimeout / 5
	}
	if c.rpcTimeout <= 0 {
		c.rpcTimeout = c.electTimeout
	}
	return c
}
