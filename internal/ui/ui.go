package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/LuSP19/xkcd-comics/internal/api"
	"github.com/LuSP19/xkcd-comics/internal/config"
	"github.com/LuSP19/xkcd-comics/internal/downloader"
	"github.com/LuSP19/xkcd-comics/internal/logging"
	"github.com/LuSP19/xkcd-comics/internal/service"
	"github.com/LuSP19/xkcd-comics/pkg/models"
	"github.com/LuSP19/xkcd-comics/pkg/opener"
)

// Exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitConfig    = 2
	ExitNetwork   = 3
	ExitAPI       = 4
	ExitMalformed = 5
)

var ErrNoTTY = errors.New("--confirm needs an interactive terminal")

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// Options holds the command line flags.
type Options struct {
	EnvFile   string
	ComicID   int
	DryRun    bool
	Preview   bool
	Confirm   bool
	LogLevel  string
	LogFormat string
}

type CLI struct {
	out    io.Writer
	errOut io.Writer
	in     io.Reader

	open    func(path string) error
	prompt  func(label string) (bool, error)
	isTTY   func() bool
	logOut  io.Writer
	newPick service.Picker
}

func NewCLI() *CLI {
	return &CLI{
		out:    os.Stdout,
		errOut: os.Stderr,
		in:     os.Stdin,
		open:   opener.Open,
		prompt: confirmPrompt,
		isTTY:  stdioIsTerminal,
	}
}

func stdioIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// NewRootCommand builds the xkcd-comics command.
func (c *CLI) NewRootCommand() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "xkcd-comics",
		Short: "Post a random xkcd comic to a VK group wall",
		Long: "Fetches a random xkcd comic and publishes it with its alt text as a photo post\n" +
			"on a VK community wall. Reads VK_ACCESS_TOKEN and COMICS_GROUP_ID from the\n" +
			"environment or a .env file.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.EnvFile, "env-file", config.DefaultEnvFile, "dotenv file with credentials")
	f.IntVar(&opts.ComicID, "id", 0, "post this comic instead of a random one")
	f.BoolVar(&opts.DryRun, "dry-run", false, "fetch the comic but do not upload or post")
	f.BoolVar(&opts.Preview, "preview", false, "open the comic image in the default viewer")
	f.BoolVar(&opts.Confirm, "confirm", false, "ask before posting")
	f.StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	f.StringVar(&opts.LogFormat, "log-format", "text", "log format (text|json)")

	return cmd
}

// Execute runs the command and maps the outcome onto an exit code.
func (c *CLI) Execute(ctx context.Context, args []string) int {
	cmd := c.NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(c.out)
	cmd.SetErr(c.errOut)

	err := cmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, service.ErrDeclined) {
		fmt.Fprintln(c.errOut, red("Error: "+err.Error()))
	}
	return ExitCode(err)
}

func ExitCode(err error) int {
	if err == nil || errors.Is(err, service.ErrDeclined) {
		return ExitOK
	}
	var (
		apiErr *api.APIError
		malErr *api.MalformedResponseError
		netErr *api.NetworkError
	)
	switch {
	case errors.Is(err, config.ErrInvalid), errors.Is(err, service.ErrComicOutOfRange):
		return ExitConfig
	case errors.As(err, &apiErr):
		return ExitAPI
	case errors.As(err, &malErr):
		return ExitMalformed
	case errors.As(err, &netErr):
		return ExitNetwork
	}
	return ExitFailure
}

func (c *CLI) run(cmd *cobra.Command, opts *Options) error {
	if opts.ComicID < 0 {
		return fmt.Errorf("%w: --id must be positive", config.ErrInvalid)
	}
	if opts.Confirm && !c.isTTY() {
		return ErrNoTTY
	}

	overrides := map[string]any{}
	if cmd.Flags().Changed("log-level") {
		overrides[config.KeyLogLevel] = opts.LogLevel
	}
	if cmd.Flags().Changed("log-format") {
		overrides[config.KeyLogFormat] = opts.LogFormat
	}
	cfg, err := config.Load(config.LoadOptions{
		EnvFile:   opts.EnvFile,
		Required:  cmd.Flags().Changed("env-file"),
		Overrides: overrides,
	})
	if err != nil {
		return err
	}

	logOut := c.logOut
	if logOut == nil {
		logOut = c.errOut
	}
	log := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: logOut,
	}).With("run_id", logging.NewRunID())

	svc := c.newService(cfg, log)
	res, err := svc.Run(cmd.Context(), service.Options{
		ComicID: opts.ComicID,
		DryRun:  opts.DryRun,
		Inspect: c.inspect(opts, log),
		Confirm: c.confirm(opts),
	})
	if err != nil {
		if errors.Is(err, service.ErrDeclined) {
			fmt.Fprintln(c.out, yellow("Skipped: nothing was posted."))
		}
		return err
	}

	c.summary(res)
	return nil
}

func (c *CLI) newService(cfg config.Config, log *logging.Logger) *service.ComicService {
	client := api.NewClient(cfg.HTTPTimeout)

	xkcd := api.NewXKCD(client)
	xkcd.BaseURL = cfg.XKCDBaseURL

	vk := api.NewVK(client, cfg.Credentials)
	vk.BaseURL = cfg.VKBaseURL

	dl := downloader.NewDownloader(xkcd)
	dl.MaxBytes = cfg.MaxImageBytes

	svc := service.NewComicService(xkcd, dl, vk, log.Component("service"))
	if c.newPick != nil {
		svc.WithPicker(c.newPick)
	}
	return svc
}

func (c *CLI) inspect(opts *Options, log *logging.Logger) func(models.Comic) {
	if !opts.Preview {
		return nil
	}
	return func(comic models.Comic) {
		fmt.Fprintf(c.out, "%s %s\n%s\n", bold(fmt.Sprintf("xkcd #%d", comic.ID)), comic.Title, comic.Caption)
		if err := c.open(comic.ImagePath); err != nil {
			log.Warn("failed to open viewer", "error", err)
			return
		}
		// The image is removed when the run ends; give the viewer a chance
		// to load it unless the confirmation prompt will wait anyway.
		if !opts.Confirm && c.isTTY() {
			c.waitForKey()
		}
	}
}

func (c *CLI) confirm(opts *Options) func(models.Comic) (bool, error) {
	if !opts.Confirm {
		return nil
	}
	return func(comic models.Comic) (bool, error) {
		return c.prompt(fmt.Sprintf("Post xkcd #%d %q", comic.ID, comic.Title))
	}
}

func (c *CLI) summary(res service.Result) {
	if !res.Published {
		fmt.Fprintf(c.out, "%s xkcd #%d %q (%s)\n", yellow("Dry run:"), res.Comic.ID, res.Comic.Title, res.Comic.ImageURL)
		return
	}
	fmt.Fprintf(c.out, "%s xkcd #%d %q as post %d (%s)\n",
		green("Published"), res.Comic.ID, res.Comic.Title, res.Post.PostID, res.Photo.Attachment())
}

func (c *CLI) waitForKey() {
	fmt.Fprintln(c.out, "\nPress Enter to continue...")
	bufio.NewReader(c.in).ReadString('\n')
}

func confirmPrompt(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
