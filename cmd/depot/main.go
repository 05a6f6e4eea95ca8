// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"depot/internal/engine"
	"depot/internal/filestore"
)

const defaultVersionLayout = "2006-01-02T150405"

func main() {
	app := &cli.App{
		Name:  "depot",
		Usage: "content-addressed, deduplicating file backup tool",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			level := slog.LevelInfo
			if c.Bool("verbose") {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
		Commands: []*cli.Command{
			newCommand(),
			updateCommand(),
			checkCommand(),
			restoreCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func storeOptions(c *cli.Context) []filestore.Option {
	var opts []filestore.Option
	if c.Bool("zip") {
		opts = append(opts, filestore.WithZipEnabled(true))
	}
	if n := c.Int64("zip-min-filesize"); n > 0 {
		opts = append(opts, filestore.WithZipMinFilesize(n))
	}
	return opts
}

func zipFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "zip", Usage: "compress eligible blobs"},
		&cli.Int64Flag{Name: "zip-min-filesize", Usage: "compress only files larger than this many bytes (default 1024)"},
	}
}

func defaultVersionName() string {
	return time.Now().Format(defaultVersionLayout)
}

func newCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Required: true, Usage: "directory to capture"},
		&cli.StringFlag{Name: "location", Aliases: []string{"l"}, Required: true, Usage: "repository root"},
		&cli.StringFlag{Name: "version", Aliases: []string{"v"}, Usage: "version name (default: current timestamp)"},
	}, zipFlags()...)

	return &cli.Command{
		Name:  "new",
		Usage: "create a repository and capture its first version",
		Flags: flags,
		Action: func(c *cli.Context) error {
			version := c.String("version")
			if version == "" {
				version = defaultVersionName()
			}
			e := engine.New(engine.WithFilestoreOptions(storeOptions(c)...))
			result, err := e.New(engine.NewCommand{
				Source:   c.String("source"),
				Location: c.String("location"),
				Version:  version,
			})
			if err != nil {
				return err
			}
			fmt.Printf("captured %s: %d dirs, %d files, %d bytes\n",
				version, result.Version.DirCount, result.Version.FileCount, result.Version.TotalBytes)
			return nil
		},
	}
}

func updateCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Required: true, Usage: "directory to capture"},
		&cli.StringFlag{Name: "location", Aliases: []string{"l"}, Required: true, Usage: "repository root"},
		&cli.StringFlag{Name: "version", Aliases: []string{"v"}, Usage: "version name (default: current timestamp)"},
	}, zipFlags()...)

	return &cli.Command{
		Name:  "update",
		Usage: "capture a new version into an existing repository",
		Flags: flags,
		Action: func(c *cli.Context) error {
			version := c.String("version")
			if version == "" {
				version = defaultVersionName()
			}
			e := engine.New(engine.WithFilestoreOptions(storeOptions(c)...))
			result, err := e.Update(engine.UpdateCommand{
				Source:   c.String("source"),
				Location: c.String("location"),
				Version:  version,
			})
			if err != nil {
				return err
			}
			fmt.Printf("captured %s: %d dirs, %d files, %d bytes\n",
				version, result.Version.DirCount, result.Version.FileCount, result.Version.TotalBytes)
			return nil
		},
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "verify every blob referenced by a version (or every version) is present",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "location", Aliases: []string{"l"}, Required: true, Usage: "repository root"},
			&cli.StringFlag{Name: "version", Aliases: []string{"v"}, Usage: "version to check (default: all versions)"},
		},
		Action: func(c *cli.Context) error {
			e := engine.New()
			missing, err := e.Check(engine.CheckCommand{
				Location: c.String("location"),
				Version:  c.String("version"),
			})
			if err != nil {
				return err
			}
			for _, m := range missing {
				fmt.Println(m.String())
			}
			if len(missing) > 0 {
				return cli.Exit(fmt.Sprintf("%d missing blob(s)", len(missing)), 1)
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func restoreCommand() *cli.Command {
	return &cli.Command{
		Name:  "restore",
		Usage: "extract one version of a repository into an empty destination",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "location", Aliases: []string{"l"}, Required: true, Usage: "repository root"},
			&cli.StringFlag{Name: "destination", Aliases: []string{"d"}, Required: true, Usage: "extraction target"},
			&cli.StringFlag{Name: "version", Aliases: []string{"v"}, Required: true, Usage: "version to restore"},
		},
		Action: func(c *cli.Context) error {
			e := engine.New()
			err := e.Restore(engine.RestoreCommand{
				Location:    c.String("location"),
				Destination: c.String("destination"),
				VersionName: c.String("version"),
			})
			if err != nil {
				return err
			}
			fmt.Printf("restored %s to %s\n", c.String("version"), c.String("destination"))
			return nil
		},
	}
}
