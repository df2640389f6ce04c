// Command mcpanel runs the Minecraft server admin panel.
//
// Usage:
//
//	mcpanel [--config path] [serve]
//	mcpanel [--config path] generate
//	mcpanel version
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"mcpanel/app"
	"mcpanel/config"
	"mcpanel/internal/logging"
	"mcpanel/pipeline"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newCLI(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		var exitCoder cli.ExitCoder
		if stderrors.As(err, &exitCoder) {
			os.Exit(exitCoder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCLI(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "mcpanel",
		Usage:     "Minecraft server admin panel",
		Version:   app.Version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file; environment defaults apply when unset",
				EnvVars: []string{"MCPANEL_CONFIG"},
			},
		},
		// Suppress urfave's own exit handling so main decides the code.
		ExitErrHandler: func(*cli.Context, error) {},
		Action:         serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP panel",
				Action: serveAction,
			},
			{
				Name:   "generate",
				Usage:  "Build the server resource pack once and print progress as JSON lines",
				Action: generateAction,
			},
			{
				Name:  "version",
				Usage: "Show version information",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "mcpanel %s\n", app.Version)
					return nil
				},
			},
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("failed to load config: %v", err), 2)
	}
	return cfg, nil
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	application, err := app.NewApplication(c.Context, cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return application.Run(c.Context)
}

func generateAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	// stdout carries the event stream, so logs go to stderr.
	logger, err := logging.NewWithWriter(c.App.ErrWriter, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	container, err := app.NewContainer(c.Context, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	defer container.Close()

	return printEvents(c.Context, c.App.Writer, container.Generator.Stream(c.Context))
}

// printEvents writes each event on its own line and fails when the run
// ended with an error event.
func printEvents(ctx context.Context, w io.Writer, events <-chan pipeline.Event) error {
	var last pipeline.Event
	for e := range events {
		line, err := pipeline.Encode(e)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\n", line); err != nil {
			return err
		}
		last = e
	}

	if ev, ok := last.(pipeline.ErrorEvent); ok {
		return cli.Exit(ev.Message, 1)
	}
	if last == nil || !pipeline.IsTerminal(last) {
		if err := ctx.Err(); err != nil {
			return cli.Exit("generation cancelled", 1)
		}
		return cli.Exit("generation ended without a result", 1)
	}
	return nil
}
