package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"

	"github.com/five82/tables/internal/app"
	"github.com/five82/tables/internal/poller"
	"github.com/five82/tables/internal/statuslog"
	"github.com/five82/tables/internal/tables"
)

type tuiCmd struct{}

func (tuiCmd) Run(ctx context.Context, g *Globals) error {
	return app.Run(ctx, g.options())
}

type loginCmd struct {
	Username string `short:"u" help:"User name (default: last used)."`
	Password string `short:"p" help:"Password; read from stdin when empty." env:"TABLES_PASSWORD"`
}

func (c *loginCmd) Run(ctx context.Context, g *Globals) error {
	return withEnv(g, true, func(env *app.Env) error {
		username := strings.TrimSpace(c.Username)
		if username == "" {
			username = env.Prefs.Username
		}
		if username == "" {
			return fmt.Errorf("username is required")
		}
		password := c.Password
		if password == "" {
			var err error
			if password, err = readPassword(os.Stdin, os.Stderr); err != nil {
				return err
			}
		}
		_, err := env.Service.Login(ctx, username, password)
		return err
	})
}

type logoutCmd struct{}

func (logoutCmd) Run(ctx context.Context, g *Globals) error {
	return withEnv(g, true, func(env *app.Env) error {
		return env.Service.Logout(ctx)
	})
}

type statusCmd struct{}

func (statusCmd) Run(ctx context.Context, g *Globals) error {
	return withEnv(g, false, func(env *app.Env) error {
		auth, err := env.Service.CheckAuth(ctx)
		if err != nil {
			return err
		}
		if !auth.Authenticated {
			fmt.Println("not logged in")
			return nil
		}
		line := "logged in as " + auth.User
		if t := auth.ParsedLoginTime(); !t.IsZero() {
			line += " since " + t.Format("2006-01-02 15:04")
		}
		fmt.Println(line)

		files, err := env.Service.RefreshIndicators(ctx)
		if err != nil {
			return err
		}
		printIndicator(tables.UploadSklad.Filename(), files.Sklad)
		printIndicator(tables.UploadReestr.Filename(), files.Reestr)
		printIndicator("result", files.Result)
		if files.WorkingDir != "" {
			fmt.Printf("%-12s %s\n", "working dir", files.WorkingDir)
		}
		return nil
	})
}

type uploadCmd struct {
	Kind string `arg:"" enum:"sklad,reestr" help:"Input slot: sklad or reestr."`
	Path string `arg:"" type:"path" help:"Local .xlsx file."`
}

func (c *uploadCmd) Run(ctx context.Context, g *Globals) error {
	return withEnv(g, true, func(env *app.Env) error {
		return env.Service.Upload(ctx, c.Kind, c.Path)
	})
}

type startCmd struct {
	Wait bool `help:"Poll until the result is ready."`
}

func (c *startCmd) Run(ctx context.Context, g *Globals) error {
	return withEnv(g, true, func(env *app.Env) error {
		session, err := env.Service.Start(ctx)
		if err != nil {
			return err
		}
		if !c.Wait {
			// Closing the env stops polling; the server keeps working.
			return nil
		}
		phase := session.Wait(ctx)
		if phase != poller.PhaseCompleted {
			return fmt.Errorf("processing %s", phase)
		}
		return nil
	})
}

type downloadCmd struct {
	Dir string `help:"Target directory (default: download-dir from the config)." type:"path" placeholder:"DIR"`
}

func (c *downloadCmd) Run(ctx context.Context, g *Globals) error {
	return withEnv(g, true, func(env *app.Env) error {
		dir := c.Dir
		if dir == "" {
			dir = env.Prefs.DownloadDir
		}
		if dir == "" {
			dir = env.Config.DownloadDir
		}
		_, err := env.Service.Download(ctx, dir)
		return err
	})
}

type clearCmd struct{}

func (clearCmd) Run(ctx context.Context, g *Globals) error {
	return withEnv(g, true, func(env *app.Env) error {
		return env.Service.Clear(ctx)
	})
}

type logsCmd struct{}

func (logsCmd) Run(ctx context.Context, g *Globals) error {
	return withEnv(g, false, func(env *app.Env) error {
		lines, err := env.Service.Logs(ctx)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			fmt.Println("No logs found")
		}
		for _, line := range lines {
			fmt.Println(line)
		}
		return nil
	})
}

// withEnv opens the client stack, optionally echoes status messages to the
// terminal, runs fn and closes the stack.
func withEnv(g *Globals, echo bool, fn func(env *app.Env) error) (err error) {
	env, err := app.Open(g.options())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := env.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if echo {
		env.Status.Subscribe(func(e statuslog.Entry) {
			printEntry(os.Stdout, e)
		})
	}
	if err := fn(env); err != nil {
		return explain(err)
	}
	return nil
}

func printEntry(w io.Writer, e statuslog.Entry) {
	fmt.Fprintf(w, "[%s] %-7s %s\n", e.Time.Format("15:04:05"), strings.ToUpper(e.Severity.String()), e.Text)
}

func printIndicator(name string, present bool) {
	state := "missing"
	if present {
		state = "present"
	}
	fmt.Printf("%-12s %s\n", name, state)
}

// explain adds a hint for errors the user can act on.
func explain(err error) error {
	switch tables.KindOf(err) {
	case tables.KindAuthExpired:
		return fmt.Errorf("%w (run `tables login` first)", err)
	case tables.KindNetwork, tables.KindTimeout:
		return fmt.Errorf("%w (check server-url or --server)", err)
	}
	return err
}

// Terminal hooks, replaced in tests.
var (
	isTerminal = term.IsTerminal
	readNoEcho = term.ReadPassword
)

// readPassword prompts on prompt and reads one password from r. A terminal
// is read without echo; piped input is read as a single line.
func readPassword(r io.Reader, prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "Password: ")

	var password string
	if f, ok := r.(interface{ Fd() uintptr }); ok && isTerminal(f.Fd()) {
		b, err := readNoEcho(f.Fd())
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		password = string(b)
	} else {
		line, err := bufio.NewReader(r).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return "", fmt.Errorf("password is required")
	}
	return password, nil
}
