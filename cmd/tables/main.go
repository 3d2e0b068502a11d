package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/five82/tables/internal/app"
)

// Globals are flags shared by every command.
type Globals struct {
	Config    string `help:"Config file (default ~/.config/tables/config.toml)." type:"path" placeholder:"PATH"`
	Server    string `help:"Server URL, overriding server-url from the config." placeholder:"URL"`
	LogLevel  string `help:"Log level: debug, info, warn or error." placeholder:"LEVEL"`
	LogFormat string `help:"Log format: text or json." placeholder:"FORMAT"`
}

func (g *Globals) options() app.Options {
	return app.Options{
		ConfigPath: g.Config,
		ServerURL:  g.Server,
		LogLevel:   g.LogLevel,
		LogFormat:  g.LogFormat,
	}
}

// CLI is the command tree.
type CLI struct {
	Globals

	TUI      tuiCmd      `cmd:"" default:"1" help:"Open the terminal UI (default)."`
	Login    loginCmd    `cmd:"" help:"Log in and keep the session cookie."`
	Logout   logoutCmd   `cmd:"" help:"Clear server files and end the session."`
	Status   statusCmd   `cmd:"" help:"Show the session and file indicators."`
	Upload   uploadCmd   `cmd:"" help:"Upload sklad.xlsx or reestr.xlsx."`
	Start    startCmd    `cmd:"" help:"Start processing on the server."`
	Download downloadCmd `cmd:"" help:"Download the result workbook."`
	Clear    clearCmd    `cmd:"" help:"Delete the server-side files."`
	Logs     logsCmd     `cmd:"" help:"Print the server log."`
}

func main() {
	os.Exit(run())
}

func run() int {
	var cli CLI
	parser := kong.Must(&cli,
		kong.Name("tables"),
		kong.Description("Client for the tables processing server."),
		kong.UsageOnError(),
	)
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kctx.BindTo(ctx, (*context.Context)(nil))
	if err := kctx.Run(&cli.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "tables: %v\n", err)
		return 1
	}
	return 0
}
