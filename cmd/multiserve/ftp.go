package main

import (
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rclone/multiserve/internal/ftpserver"
	"github.com/rclone/multiserve/internal/logx"
	"github.com/rclone/multiserve/internal/server"
	"github.com/rclone/multiserve/internal/vfs"
)

var ftpFlags sharedFlags

var serveFTPCmd = &cobra.Command{
	Use:   "ftp",
	Short: "Serve a local directory over FTP",
	Args:  cobra.NoArgs,
	RunE:  runServeFTP,
}

func init() {
	registerSharedFlags(serveFTPCmd, &ftpFlags)
}

func runServeFTP(cmd *cobra.Command, args []string) error {
	st, err := buildStack(&ftpFlags)
	if err != nil {
		return err
	}

	access, err := vfs.NewLocalAccess(ftpFlags.root)
	if err != nil {
		return err
	}

	host, portStr, err := net.SplitHostPort(ftpFlags.addr)
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

	ftpSrv := ftpserver.NewServer("multiserve-ftp/1.0", port, access, st.adj, st.trig)

	srv, err := server.New("ftp", host, port, st.adj, st.disp, st.trig, st.metrics, st.hitLog)
	if err != nil {
		return err
	}
	ftpSrv.Port = srv.Port()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ftpSrv.ChannelFactory()) }()

	logx.Infof(logx.S("multiserve"), "FTP serving %s on port %d", ftpFlags.root, srv.Port())

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
