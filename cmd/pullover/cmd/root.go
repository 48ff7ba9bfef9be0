package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kursadbilgin/pullover/internal/config"
	"github.com/kursadbilgin/pullover/internal/domain"
	"github.com/kursadbilgin/pullover/internal/observability"
	"github.com/kursadbilgin/pullover/internal/provider"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	exitOK         = 0
	exitSendFailed = 1
	exitUsage      = 2
)

// SenderFactory builds the send pipeline for one invocation. The returned
// func releases its resources.
type SenderFactory func(cfg *config.Config, logger *zap.Logger) (provider.Sender, func(), error)

var senderFactory SenderFactory = newPushoverSender

// usageError marks a malformed invocation.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// errSendFailed is returned after the failure has been reported on stderr.
var errSendFailed = errors.New("send failed")

type options struct {
	app           string
	user          string
	priority      string
	title         string
	timestamp     string
	url           string
	urlTitle      string
	verbosity     int
	timeout       time.Duration
	retryInterval time.Duration
	maxTries      int
	showVersion   bool
}

// Execute runs the CLI with args and returns the process exit status.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		cfg = fallbackConfig()
	}

	root := NewRootCommand(cfg)
	if cfgErr != nil {
		// --help and --version still work with a broken environment.
		root.PreRunE = func(cmd *cobra.Command, args []string) error {
			return &usageError{err: cfgErr}
		}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errSendFailed):
		return exitSendFailed
	default:
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", root.Name())
			return exitUsage
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitSendFailed
	}
}

func fallbackConfig() *config.Config {
	return &config.Config{
		Endpoint:       provider.DefaultEndpoint,
		RequestTimeout: provider.DefaultRequestTimeout,
		RetryInterval:  provider.DefaultRetryInterval,
		MaxTries:       provider.DefaultMaxTries,
		LogLevel:       "warn",
	}
}

// NewRootCommand builds the pullover command. Flag defaults come from cfg.
func NewRootCommand(cfg *config.Config) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "pullover [flags] MESSAGE",
		Short: "Send a Pushover notification",
		Long: `pullover sends a single push notification through the Pushover API.

The application token and user key default to PUSHOVER_APP_TOKEN and
PUSHOVER_USER_KEY. On success the request id is printed to stdout.`,
		Version:       provider.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usagef("expected exactly one MESSAGE argument, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cfg, opts, args[0])
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	flags := root.Flags()
	flags.StringVarP(&opts.app, "app", "a", cfg.AppToken, "the application token to send from; defaults to PUSHOVER_APP_TOKEN")
	flags.StringVarP(&opts.user, "user", "u", cfg.UserKey, "the user key to send to; defaults to PUSHOVER_USER_KEY")
	flags.StringVarP(&opts.priority, "priority", "p", domain.PriorityNormal.String(), "the message priority: lowest, low, normal, high or -2..1")
	flags.StringVarP(&opts.title, "title", "t", "", "the message title; defaults to the name of the sending application")
	flags.StringVar(&opts.timestamp, "timestamp", "", "the message timestamp in ISO 8601 format; defaults to now")
	flags.StringVar(&opts.url, "url", "", "a url to include in the footer of the message")
	flags.StringVar(&opts.urlTitle, "url-title", "", "the title shown for --url")
	flags.CountVarP(&opts.verbosity, "verbosity", "v", "increase output verbosity")
	flags.DurationVar(&opts.timeout, "timeout", cfg.RequestTimeout, "per-request timeout")
	flags.DurationVar(&opts.retryInterval, "retry-interval", cfg.RetryInterval, "delay between attempts after a server failure")
	flags.IntVar(&opts.maxTries, "max-tries", cfg.MaxTries, "maximum number of attempts; 1 disables retry")
	flags.BoolVarP(&opts.showVersion, "version", "V", false, "print the version and exit")
	root.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	return root
}

func run(cmd *cobra.Command, cfg *config.Config, opts *options, body string) error {
	msg, err := buildMessage(opts, body)
	if err != nil {
		return err
	}
	app, user, err := credentials(opts)
	if err != nil {
		return err
	}
	if opts.maxTries < 1 {
		return usagef("--max-tries must be at least 1")
	}

	logger, err := observability.NewCLILogger(observability.LevelFromVerbosity(opts.verbosity))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	logger.Debug("parsed arguments",
		zap.Stringer("message", msg),
		zap.Stringer("application", app),
		zap.Stringer("user", user),
		zap.Stringer("priority", msg.Priority()),
	)

	sender, release, err := senderFactory(cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	resp := sender.Send(cmd.Context(), msg, app, user, provider.SendOptions{
		Timeout:       opts.timeout,
		RetryInterval: opts.retryInterval,
		MaxTries:      opts.maxTries,
	})

	if resp.OK() {
		fmt.Fprintln(cmd.OutOrStdout(), resp.ID())
		return nil
	}

	fmt.Fprintln(cmd.ErrOrStderr(), failureText(resp))
	logger.Debug("returning exit status", zap.Int("status", exitSendFailed))
	return errSendFailed
}

func buildMessage(opts *options, body string) (*domain.Message, error) {
	priority, err := domain.ParsePriorityFromString(opts.priority)
	if err != nil {
		return nil, usagef("invalid --priority: %v", err)
	}
	if opts.urlTitle != "" && opts.url == "" {
		return nil, usagef("--url-title requires --url")
	}

	msgOpts := []domain.MessageOption{
		domain.WithPriority(priority),
		domain.WithTitle(opts.title),
		domain.WithURL(opts.url),
		domain.WithURLTitle(opts.urlTitle),
	}
	if opts.timestamp != "" {
		ts, err := parseTimestamp(opts.timestamp)
		if err != nil {
			return nil, usagef("invalid --timestamp: %v", err)
		}
		msgOpts = append(msgOpts, domain.WithTimestamp(ts))
	}

	msg, err := domain.NewMessage(body, msgOpts...)
	if err != nil {
		return nil, &usageError{err: err}
	}
	return msg, nil
}

func credentials(opts *options) (domain.Application, domain.User, error) {
	if strings.TrimSpace(opts.app) == "" {
		return domain.Application{}, domain.User{}, usagef("an application token is required: pass --app or set PUSHOVER_APP_TOKEN")
	}
	if strings.TrimSpace(opts.user) == "" {
		return domain.Application{}, domain.User{}, usagef("a user key is required: pass --user or set PUSHOVER_USER_KEY")
	}
	return domain.NewApplication(opts.app), domain.NewUser(opts.user), nil
}

// failureText renders a failed send for stderr: the service's own errors
// when it gave any, otherwise a description of the failure.
func failureText(resp *provider.SendResponse) string {
	err := resp.RaiseForStatus()
	switch e := err.(type) {
	case *provider.ClientSendError:
		if len(e.Errors) > 0 {
			return strings.Join(e.Errors, "\n")
		}
		return e.Error()
	case *provider.ServerSendError:
		return fmt.Sprintf("%v (after %d attempts)", e, resp.Attempts())
	default:
		return fmt.Sprint(err)
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp accepts the common ISO 8601 forms. Values without a zone are
// taken as local time.
func parseTimestamp(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, trimmed, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO 8601 timestamp", value)
}

func newPushoverSender(cfg *config.Config, logger *zap.Logger) (provider.Sender, func(), error) {
	p, err := provider.NewPushoverProvider(cfg.Endpoint)
	if err != nil {
		return nil, nil, err
	}
	p.SetLogger(logger)
	return p, p.Close, nil
}
