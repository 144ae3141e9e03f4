package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gonzalop/ftpclient"
	"github.com/gonzalop/ftpclient/internal/config"
)

// session is a connected client plus the output settings of one run.
type session struct {
	client *ftpclient.Client
	out    io.Writer
	quiet  bool
	closer io.Closer

	// cmd is the subcommand being run
	cmd *cli.Context
}

// loadConfig merges the profile, the environment and the global flags.
func loadConfig(c *cli.Context) (ftpclient.Config, string, error) {
	profile, err := config.Load(c.GlobalString("config"), c.GlobalString("profile"))
	if err != nil {
		return ftpclient.Config{}, "", err
	}
	if u := c.GlobalString("url"); u != "" {
		profile.URL = u
	}
	if t := c.GlobalString("tls"); t != "" {
		profile.TLS = t
	}
	if c.GlobalBool("insecure") {
		profile.VerifyCert = false
	}
	if c.GlobalBool("active") {
		profile.Mode = ftpclient.ModeActive.String()
	}
	if c.GlobalBool("verbose") {
		profile.Verbose = true
	}
	if p := c.GlobalString("proxy"); p != "" {
		profile.Proxy = p
	}

	cfg, err := profile.Config()
	return cfg, profile.Proxy, err
}

// openSession connects using the merged configuration.
func openSession(ctx context.Context, c *cli.Context) (*session, error) {
	cfg, proxyURL, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	s := &session{out: os.Stdout, quiet: c.GlobalBool("quiet")}
	opts := []ftpclient.Option{ftpclient.WithConfig(cfg)}
	if proxyURL != "" {
		opts = append(opts, ftpclient.WithProxy(proxyURL))
	}
	if path := c.GlobalString("log-file"); path != "" {
		logger, closer, err := fileLogger(path, cfg.Verbose)
		if err != nil {
			return nil, err
		}
		s.closer = closer
		opts = append(opts, ftpclient.WithLogger(logger))
	}

	s.client = ftpclient.New(opts...)
	if !s.quiet {
		s.client.SetProgress(progressPrinter(os.Stderr))
	}
	if err := s.client.Connect(ctx); err != nil {
		s.close()
		return nil, err
	}
	if !s.quiet {
		color.New(color.FgGreen).Fprintf(os.Stderr, "connected to %s\n", ftpclient.BuildURL(cfg.Host, cfg.Port, "/"))
	}
	return s, nil
}

func (s *session) close() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.closer != nil {
		_ = s.closer.Close()
	}
}

// fileLogger returns a JSON logger writing to a size-rotated file.
func fileLogger(path string, verbose bool) (*slog.Logger, io.Closer, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to expand %q: %w", path, err)
	}
	w := &lumberjack.Logger{
		Filename:   expanded,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), w, nil
}

// progressPrinter renders transfer progress on a single terminal line.
func progressPrinter(w io.Writer) ftpclient.ProgressFunc {
	bar := color.New(color.FgCyan)
	return func(p ftpclient.Progress) bool {
		now, total := p.DownloadNow, p.DownloadTotal
		if p.UploadNow > 0 || p.UploadTotal > 0 {
			now, total = p.UploadNow, p.UploadTotal
		}
		if total > 0 {
			bar.Fprintf(w, "\r%3d%% %d/%d bytes", now*100/total, now, total)
			if now >= total {
				fmt.Fprintln(w)
			}
		} else {
			bar.Fprintf(w, "\r%d bytes", now)
		}
		return false
	}
}
