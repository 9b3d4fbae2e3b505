package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sceneboard/internal/api"
	"github.com/sceneboard/internal/app"
	"github.com/sceneboard/internal/config"
	"github.com/sceneboard/internal/tokens"
)

// cli carries the state shared by every command of one invocation.
type cli struct {
	out, errOut io.Writer

	apiURL     string
	tokenStore string
	verbose    bool

	// overrides used by tests
	cfg    *config.Config
	tokens tokens.Store

	app      *app.App
	notifier *printNotifier
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sceneboard",
		Short:         "Manage SceneBoard projects, scenes and assets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.open(cmd.Context())
		},
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&c.apiURL, "api-url", "", "API base URL (overrides api.base_url)")
	flags.StringVar(&c.tokenStore, "token-store", "", "token storage: file, sqlite, postgres, redis or memory")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "log debug output")

	root.AddCommand(
		c.loginCmd(),
		c.registerCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.projectsCmd(),
		c.boxesCmd(),
		c.assetsCmd(),
	)
	return root
}

// execute runs the command tree and prints an error that was not already
// shown as a notification.
func (c *cli) execute(ctx context.Context, root *cobra.Command, args []string) error {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if c.app != nil {
		if cerr := c.app.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil && (c.notifier == nil || !c.notifier.shown(api.Message(err, ""))) {
		fmt.Fprintf(c.errOut, "error: %s\n", api.Message(err, "command failed"))
	}
	return err
}

func (c *cli) open(ctx context.Context) error {
	cfg := c.cfg
	if cfg == nil {
		var err error
		if cfg, err = config.Load(); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if c.apiURL != "" {
		cfg.API.BaseURL = c.apiURL
	}
	if c.tokenStore != "" {
		cfg.Tokens.Type = c.tokenStore
	}

	logger := cfg.Logging.NewLogger()
	logger.SetOutput(c.errOut)
	if c.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	c.notifier = &printNotifier{out: c.out, errOut: c.errOut}
	a, err := app.New(cfg, app.Options{Tokens: c.tokens, Notifier: c.notifier, Logger: logger})
	if err != nil {
		return err
	}
	c.app = a
	a.Restore(ctx)
	return nil
}

// openSession is the pre-run of command groups that need a signed-in user.
func (c *cli) openSession(cmd *cobra.Command, _ []string) error {
	if err := c.open(cmd.Context()); err != nil {
		return err
	}
	return c.requireSession()
}

// requireSession fails commands that need a signed-in user.
func (c *cli) requireSession() error {
	if !c.app.Session.Snapshot().IsAuthenticated() {
		return api.ValidationError("Not signed in. Run `sceneboard login` first.")
	}
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, api.ValidationError("invalid id %q", s)
	}
	return id, nil
}

func parsePosition(s string) (int, error) {
	pos, err := strconv.Atoi(s)
	if err != nil || pos < 1 {
		return 0, api.ValidationError("invalid position %q (1 is the first slot)", s)
	}
	return pos - 1, nil
}

// ========================================
// Notifications
// ========================================

// printNotifier writes successes to out and errors to errOut.
type printNotifier struct {
	out, errOut io.Writer

	mu     sync.Mutex
	errors map[string]bool
}

func (n *printNotifier) Success(msg string) {
	fmt.Fprintln(n.out, msg)
}

func (n *printNotifier) Error(msg string) {
	n.mu.Lock()
	if n.errors == nil {
		n.errors = make(map[string]bool)
	}
	n.errors[msg] = true
	n.mu.Unlock()
	fmt.Fprintf(n.errOut, "error: %s\n", msg)
}

func (n *printNotifier) shown(msg string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.errors[msg]
}
