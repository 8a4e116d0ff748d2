package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/llamcomm/internal"
	pkgconfig "github.com/starford/llamcomm/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, version,
		internal.WithConfig(cfg),
		internal.WithLogOutput(os.Stderr),
	)
}

func ask(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	answer, err := internal.Ask(ctx, internal.AskInput{
		ImagePath:  cmd.String("image"),
		Window:     cmd.String("window"),
		Question:   cmd.String("question"),
		SaveFolder: cmd.String("save"),
	}, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	fmt.Println(answer)
	return nil
}

func deviceSend(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one JSON command argument")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if p := cmd.String("port"); p != "" {
		cfg.Device.Port = p
	}

	clip, err := internal.SendDevice(ctx, cmd.String("kind"), cmd.Args().First(), cmd.Bool("read"),
		internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	if clip == nil {
		return nil
	}
	if clip.JSON != nil {
		return json.NewEncoder(os.Stdout).Encode(clip.JSON)
	}
	fmt.Println(clip.Text)
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "llamcomm",
		Usage:   "Folder-based record store for agents, with a REST API, MCP tools, vision QA and a serial HID link",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the file watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the record tools over MCP stdio",
				Action: mcp,
			},
			{
				Name:   "ask",
				Usage:  "Ask the vision endpoint a question about an image or window screenshot",
				Action: ask,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "image", Usage: "Path to a png or jpeg"},
					&cli.StringFlag{Name: "window", Aliases: []string{"w"}, Usage: "Window title fragment to pick a screenshot"},
					&cli.StringFlag{Name: "question", Aliases: []string{"q"}, Usage: "Question to ask", Required: true},
					&cli.StringFlag{Name: "save", Usage: "Store the answer as an info record in this folder"},
				},
			},
			{
				Name:  "device",
				Usage: "Talk to the serial HID board",
				Commands: []*cli.Command{
					{
						Name:      "send",
						Usage:     "Send one JSON command",
						ArgsUsage: "<json>",
						Action:    deviceSend,
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "mouse, keyboard or config", Value: internal.DeviceMouse},
							&cli.StringFlag{Name: "port", Aliases: []string{"p"}, Usage: "Serial port, overrides device.port"},
							&cli.BoolFlag{Name: "read", Usage: "Read the board's clipboard reply after sending"},
						},
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
