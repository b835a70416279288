package main

import (
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rclone/multiserve/internal/httpserver"
	"github.com/rclone/multiserve/internal/logx"
	"github.com/rclone/multiserve/internal/server"
	"github.com/rclone/multiserve/internal/vfs"
)

var httpFlags sharedFlags

var serveHTTPCmd = &cobra.Command{
	Use:   "http",
	Short: "Serve a local directory over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServeHTTP,
}

func init() {
	registerSharedFlags(serveHTTPCmd, &httpFlags)
}

func runServeHTTP(cmd *cobra.Command, args []string) error {
	st, err := buildStack(&httpFlags)
	if err != nil {
		return err
	}

	access, err := vfs.NewLocalAccess(httpFlags.root)
	if err != nil {
		return err
	}
	fs, err := access.Open(cmd.Context(), vfs.Credentials{})
	if err != nil {
		return err
	}
	app := &fsApp{fs: fs}

	host, portStr, err := net.SplitHostPort(httpFlags.addr)
	if err != nil {
		return err
	}
	port := 0
	if portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil {
			return err
		}
	}

	serverName := host
	if serverName == "" {
		if hn, err := os.Hostname(); err == nil {
			serverName = hn
		} else {
			serverName = "localhost"
		}
	}
	httpSrv := httpserver.NewServer("multiserve-http/1.0", serverName, port, app, st.resolve, st.adj, st.trig)

	srv, err := server.New("http", host, port, st.adj, st.disp, st.trig, st.metrics, st.hitLog)
	if err != nil {
		return err
	}
	httpSrv.Port = srv.Port()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(httpSrv.ChannelFactory()) }()

	logx.Infof(logx.S("multiserve"), "HTTP serving %s on port %d", httpFlags.root, srv.Port())

	select {
	case err := <-errCh:
		st.close()
		return err
	case <-shutdownSignal():
	}

	if err := srv.Shutdown(); err != nil {
		logx.Errorf(logx.S("multiserve"), "server shutdown: %v", err)
	}
	return st.close()
}
