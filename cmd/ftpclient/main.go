// Command ftpclient transfers files to and from FTP and FTPS servers.
//
//	ftpclient --profile backup put report.pdf /incoming/report.pdf
//	ftpclient --url ftps://user:pw@ftp.example.com get /pub/a.tgz a.tgz
//	FTPCLIENT_HOST=10.0.0.5 ftpclient ls /pub
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/gonzalop/ftpclient"
)

func main() {
	if err := ftpclient.Init(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app := newApp(ctx)
	err := app.Run(os.Args)

	stop()
	ftpclient.Cleanup()
	if err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func newApp(ctx context.Context) *cli.App {
	app := cli.NewApp()
	app.Name = "ftpclient"
	app.Usage = "FTP/FTPS file transfer client"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "profile file (default $XDG_CONFIG_HOME/ftpclient/config.yaml)",
		},
		cli.StringFlag{
			Name:   "profile, p",
			Usage:  "profile name",
			EnvVar: "FTPCLIENT_PROFILE",
		},
		cli.StringFlag{
			Name:  "url",
			Usage: "server URL, overrides the profile (ftp://, ftps://, ftp+explicit://)",
		},
		cli.StringFlag{
			Name:  "tls",
			Usage: "TLS mode: none, opportunistic, control, full",
		},
		cli.BoolFlag{
			Name:  "insecure, k",
			Usage: "skip server certificate verification",
		},
		cli.BoolFlag{
			Name:  "active",
			Usage: "use active mode (PORT/EPRT)",
		},
		cli.StringFlag{
			Name:  "proxy",
			Usage: "socks5:// proxy URL for all connections",
		},
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "log the protocol conversation",
		},
		cli.StringFlag{
			Name:  "log-file",
			Usage: "write logs to a rotating file instead of stderr",
		},
		cli.BoolFlag{
			Name:  "quiet, q",
			Usage: "no progress output",
		},
	}
	app.Commands = commands(ctx)
	return app
}

// exitCode maps an error to a process exit status: the Kind for library
// failures, 1 for everything else.
func exitCode(err error) int {
	if k := ftpclient.KindOf(err); k != 0 {
		return 10 + int(k)
	}
	return 1
}
