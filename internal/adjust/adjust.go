// Package adjust holds the tunable communication parameters shared,
// read-only, by a server and all of its channels — the Go equivalent of
// zope.server's Adjustments class.
package adjust

import (
	"os"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/shirou/gopsutil/v3/process"
	"gopkg.in/yaml.v2"
)

// SocketOption names a setsockopt tweak to apply to every accepted
// connection. The concrete application lives in internal/server (it needs
// the raw fd), this is just the declarative list carried on Adjustments.
type SocketOption struct {
	Level int `yaml:"level"`
	Name  int `yaml:"name"`
	Value int `yaml:"value"`
}

// Adjustments is immutable after the server starts; it is shared
// read-only by the server and every channel it creates.
type Adjustments struct {
	Backlog          int            `yaml:"backlog"`
	RecvBytes        int            `yaml:"recv_bytes"`
	SendBytes        int            `yaml:"send_bytes"`
	CopyBytes        int            `yaml:"copy_bytes"`
	OutbufOverflow   int64          `yaml:"outbuf_overflow"`
	InbufOverflow    int64          `yaml:"inbuf_overflow"`
	ConnectionLimit  int            `yaml:"connection_limit"`
	CleanupInterval  time.Duration  `yaml:"cleanup_interval"`
	ChannelTimeout   time.Duration  `yaml:"channel_timeout"`
	LogSocketErrors  bool           `yaml:"log_socket_errors"`
	SocketOptions    []SocketOption `yaml:"socket_options"`

	// ConcurrentChannel is loaded from the concurrent_channel key, but no
	// code in this module reads it: internal/server.ChannelBase always
	// wraps connections in the plain internal/channel.Channel, never in
	// internal/channel.ConcurrentChannel.
	ConcurrentChannel bool `yaml:"concurrent_channel"`

	// BindLocalMinusOne makes active-mode FTP data connections bind to
	// server.port-1, the RFC959 firewall accommodation some FTP clients
	// still expect.
	BindLocalMinusOne bool `yaml:"bind_local_minus_one"`
}

// Default returns a fresh Adjustments with conservative, production-sane
// defaults. ConnectionLimit is derived from the process's
// open-file-descriptor headroom the same way the Python original derived
// it from maxsockets.max_select_sockets().
func Default() *Adjustments {
	return &Adjustments{
		Backlog:         1024,
		RecvBytes:       8192,
		SendBytes:       8192,
		CopyBytes:       65536,
		OutbufOverflow:  1050000,
		InbufOverflow:   525000,
		ConnectionLimit: defaultConnectionLimit(),
		CleanupInterval: 300 * time.Second,
		ChannelTimeout:  900 * time.Second,
		LogSocketErrors: true,
	}
}

// defaultConnectionLimit leaves fd headroom for the listening socket, the
// trigger pipe, and stdio, floored at a usable minimum.
func defaultConnectionLimit() int {
	const headroom = 64
	const floor = 16
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 100
	}
	limit, err := p.RlimitUsage(false)
	if err != nil || len(limit) == 0 {
		return 100
	}
	for _, l := range limit {
		if l.Resource == process.RLIMIT_NOFILE {
			n := int(l.Soft) - headroom
			if n < floor {
				n = floor
			}
			return n
		}
	}
	return 100
}

// Load reads a YAML Adjustments file, expanding a leading "~" in path the
// way rclone's own config loader does, and merges it over Default().
func Load(path string) (*Adjustments, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, err
	}
	adj := Default()
	if err := yaml.Unmarshal(data, adj); err != nil {
		return nil, err
	}
	return adj, nil
}
