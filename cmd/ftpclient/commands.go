package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/gonzalop/ftpclient"
)

// commands returns the subcommands. Every one of them runs against a
// fresh session that is closed when the command returns.
func commands(ctx context.Context) []cli.Command {
	return []cli.Command{
		{
			Name:      "put",
			Usage:     "upload a local file",
			ArgsUsage: "<local> <remote>",
			Action:    withSession(ctx, 2, put),
		},
		{
			Name:      "get",
			Usage:     "download a remote file",
			ArgsUsage: "<remote> <local>",
			Action:    withSession(ctx, 2, get),
		},
		{
			Name:      "cat",
			Usage:     "write a remote file to stdout",
			ArgsUsage: "<remote>",
			Action:    withSession(ctx, 1, cat),
		},
		{
			Name:      "ls",
			Usage:     "list a remote directory",
			ArgsUsage: "[path]",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "parse, P",
					Usage: "print type, size and name of each entry instead of the raw listing",
				},
			},
			Action: withSession(ctx, 0, ls),
		},
		{
			Name:      "mkdir",
			Usage:     "create a remote directory",
			ArgsUsage: "<path>",
			Action: withSession(ctx, 1, func(ctx context.Context, s *session, args []string) error {
				return s.client.MakeDir(ctx, args[0])
			}),
		},
		{
			Name:      "rmdir",
			Usage:     "remove an empty remote directory",
			ArgsUsage: "<path>",
			Action: withSession(ctx, 1, func(ctx context.Context, s *session, args []string) error {
				return s.client.RemoveDir(ctx, args[0])
			}),
		},
		{
			Name:      "rm",
			Usage:     "delete a remote file",
			ArgsUsage: "<path>",
			Action: withSession(ctx, 1, func(ctx context.Context, s *session, args []string) error {
				return s.client.Delete(ctx, args[0])
			}),
		},
		{
			Name:      "mv",
			Usage:     "rename a remote file or directory",
			ArgsUsage: "<from> <to>",
			Action: withSession(ctx, 2, func(ctx context.Context, s *session, args []string) error {
				return s.client.Rename(ctx, args[0], args[1])
			}),
		},
		{
			Name:      "size",
			Usage:     "print the size of a remote file",
			ArgsUsage: "<path>",
			Action:    withSession(ctx, 1, size),
		},
		{
			Name:      "quote",
			Usage:     "send a raw command and print the reply",
			ArgsUsage: "<command> [args...]",
			Action:    withSession(ctx, 1, quote),
		},
		{
			Name:      "url",
			Usage:     "print the URL of a remote path without connecting",
			ArgsUsage: "<path>",
			Action:    printURL,
		},
	}
}

type actionFunc func(ctx context.Context, s *session, args []string) error

// withSession checks the argument count, connects and runs fn.
func withSession(ctx context.Context, minArgs int, fn actionFunc) func(*cli.Context) error {
	return func(c *cli.Context) error {
		args := []string(c.Args())
		if len(args) < minArgs {
			return fmt.Errorf("%s: expected %s", c.Command.Name, c.Command.ArgsUsage)
		}
		s, err := openSession(ctx, c)
		if err != nil {
			return err
		}
		defer s.close()
		s.cmd = c
		return fn(ctx, s, args)
	}
}

func put(ctx context.Context, s *session, args []string) error {
	if err := s.client.Upload(ctx, args[0], args[1]); err != nil {
		return err
	}
	s.done("uploaded %s to %s", args[0], args[1])
	return nil
}

func get(ctx context.Context, s *session, args []string) error {
	if err := s.client.Download(ctx, args[0], args[1]); err != nil {
		return err
	}
	s.done("downloaded %s to %s", args[0], args[1])
	return nil
}

func cat(ctx context.Context, s *session, args []string) error {
	s.client.SetProgress(nil)
	err := s.client.DownloadTo(ctx, args[0], s.out)
	if errors.Is(err, ftpclient.ErrPartialWrite) {
		color.New(color.FgYellow).Fprintln(os.Stderr, "output is incomplete")
	}
	return err
}

func ls(ctx context.Context, s *session, args []string) error {
	path := "/"
	if len(args) > 0 {
		path = args[0]
	}
	listing, err := s.client.ListDir(ctx, path)
	if err != nil {
		return err
	}
	if !s.cmd.Bool("parse") {
		_, err = s.out.Write(listing)
		return err
	}

	dir := color.New(color.FgBlue, color.Bold)
	for _, e := range ftpclient.ParseListing(listing) {
		name := e.Name
		switch e.Type {
		case ftpclient.EntryDir:
			name = dir.Sprint(e.Name + "/")
		case ftpclient.EntryLink:
			name = e.Name + " -> " + e.Target
		}
		fmt.Fprintf(s.out, "%-7s %12d %s\n", e.Type, e.Size, name)
	}
	return nil
}

func size(ctx context.Context, s *session, args []string) error {
	n, err := s.client.FileSize(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, n)
	return nil
}

func quote(ctx context.Context, s *session, args []string) error {
	reply, err := s.client.Execute(ctx, strings.Join(args, " "))
	if reply != nil {
		fmt.Fprintln(s.out, reply.String())
	}
	return err
}

func printURL(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("url: expected <path>")
	}
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}
	fmt.Println(ftpclient.BuildURL(cfg.Host, cfg.Port, c.Args().First()))
	return nil
}

func (s *session) done(format string, args ...any) {
	if s.quiet {
		return
	}
	color.New(color.FgGreen).Fprintf(os.Stderr, format+"\n", args...)
}
