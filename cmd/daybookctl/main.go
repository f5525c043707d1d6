package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/dukerupert/daybook/internal/config"
	"github.com/dukerupert/daybook/internal/logging"
)

var CLI struct {
	DB string `help:"SQLite database path. Defaults to DAYBOOK_DB_PATH." type:"path"`

	InitMonth InitMonthCmd `cmd:"" help:"Reset a month to every day available."`
	Seed      SeedCmd      `cmd:"" help:"Write the demo fixture month."`
	Show      ShowCmd      `cmd:"" help:"Print a month."`
	Token     TokenCmd     `cmd:"" help:"Issue a bearer token."`
	VapidKeys VapidKeysCmd `cmd:"" name:"vapid-keys" help:"Generate a VAPID key pair for web push."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("daybookctl"),
		kong.Description("Administer a daybook calendar"),
		kong.UsageOnError(),
	)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if CLI.DB != "" {
		cfg.DBPath = CLI.DB
	}

	app := &App{
		Config: cfg,
		Logger: logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format),
		Out:    os.Stdout,
	}
	defer app.Close()

	if err := ctx.Run(app); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
