package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rclone/multiserve/internal/accesslog"
	"github.com/rclone/multiserve/internal/adjust"
	"github.com/rclone/multiserve/internal/admin"
	"github.com/rclone/multiserve/internal/chanerr"
	"github.com/rclone/multiserve/internal/dispatcher"
	"github.com/rclone/multiserve/internal/logx"
	"github.com/rclone/multiserve/internal/metrics"
	"github.com/rclone/multiserve/internal/resolver"
	"github.com/rclone/multiserve/internal/trigger"
)

// sharedFlags are the flags both "serve http" and "serve ftp" expose;
// neither subcommand defines flags of its own (see http.go, ftp.go).
type sharedFlags struct {
	addr       string
	root       string
	threads    int
	reverseDNS bool
	accessLog  string
	adminAddr  string
	adminUser  string
	adminPass  string
	adminRealm string
}

func registerSharedFlags(cmd *cobra.Command, f *sharedFlags) {
	cmd.Flags().StringVar(&f.addr, "addr", ":0", "address to listen on")
	cmd.Flags().StringVar(&f.root, "root", ".", "local directory to serve")
	cmd.Flags().IntVar(&f.threads, "threads", 4, "worker goroutine count")
	cmd.Flags().BoolVar(&f.reverseDNS, "reverse-dns", false, "resolve REMOTE_HOST via reverse DNS, cached")
	cmd.Flags().StringVar(&f.accessLog, "access-log", "", "path to a Common-Log-Format access log (disabled if unset)")
	cmd.Flags().StringVar(&f.adminAddr, "admin-addr", "", "address for the admin HTTP mux (disabled if unset)")
	cmd.Flags().StringVar(&f.adminUser, "admin-user", "", "admin mux Basic Auth username (auth disabled if unset)")
	cmd.Flags().StringVar(&f.adminPass, "admin-pass", "", "admin mux Basic Auth password")
	cmd.Flags().StringVar(&f.adminRealm, "admin-realm", "multiserve-admin", "admin mux Basic Auth realm")
}

// stack bundles the ambient infrastructure every protocol server needs:
// tunables, the reactor wakeup pipe, the worker pool, metrics and,
// optionally, an access log, a reverse-DNS cache and an admin mux.
type stack struct {
	adj      *adjust.Adjustments
	trig     *trigger.Trigger
	disp     *dispatcher.Dispatcher
	promReg  *prometheus.Registry
	metrics  *metrics.Registry
	hitLog   *accesslog.Log
	resolve  *resolver.Resolver
	adminSrv *admin.Server
}

func buildStack(f *sharedFlags) (*stack, error) {
	adj := adjust.Default()
	if configPath != "" {
		loaded, err := adjust.Load(configPath)
		if err != nil {
			return nil, err
		}
		adj = loaded
	}

	trig, err := trigger.New()
	if err != nil {
		return nil, err
	}

	disp := dispatcher.New(0, 0)
	disp.SetThreadCount(f.threads)

	promReg := prometheus.NewRegistry()
	mreg := metrics.NewRegistry(promReg)

	s := &stack{adj: adj, trig: trig, disp: disp, promReg: promReg, metrics: mreg}

	if f.accessLog != "" {
		hitLog, err := accesslog.Open(f.accessLog, 1000)
		if err != nil {
			return nil, err
		}
		s.hitLog = hitLog
	}

	if f.reverseDNS {
		s.resolve = resolver.New(10*time.Minute, time.Minute)
	}

	if f.adminAddr != "" {
		creds := admin.Credentials{Realm: f.adminRealm, Username: f.adminUser, Password: f.adminPass}
		mux := admin.Mux(promReg, disp, s.hitLog, creds)
		s.adminSrv = admin.NewServer(f.adminAddr, mux)
		go func() {
			if err := s.adminSrv.ListenAndServe(); err != nil {
				logx.Errorf(logx.S("admin"), "%v", err)
			}
		}()
	}

	return s, nil
}

// close releases everything buildStack acquired, aggregating every
// failure instead of stopping at the first one.
func (s *stack) close() error {
	var c chanerr.Collector
	if s.adminSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		c.Add(s.adminSrv.Shutdown(ctx))
		cancel()
	}
	s.disp.Shutdown(false, 10*time.Second)
	if s.hitLog != nil {
		c.Add(s.hitLog.Close())
	}
	c.Add(s.trig.Close())
	return c.Err()
}

// shutdownSignal returns a channel that closes once SIGINT or SIGTERM
// arrives.
func shutdownSignal() <-chan struct{} {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		<-ch
		close(done)
	}()
	return done
}
