// Command multiserve runs the HTTP and FTP servers built on the shared
// event-loop/dispatcher/channel framework in internal/server,
// internal/httpserver and internal/ftpserver. The CLI shape mirrors
// rclone's own cmd/serve/http and cmd/serve/ftp: a cobra root command
// with a "serve" group and one subcommand per protocol.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rclone/multiserve/internal/logx"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "multiserve",
	Short: "Serve a filesystem over HTTP and FTP",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a remote over a protocol",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the Adjustments YAML config (defaults built in if unset)")
	rootCmd.AddCommand(serveCmd)
	serveCmd.AddCommand(serveHTTPCmd)
	serveCmd.AddCommand(serveFTPCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logx.Errorf(logx.S("multiserve"), "%v", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
