package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"time"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/unkn0wn-root/swrcache"
	"github.com/unkn0wn-root/swrcache/config"
	"github.com/unkn0wn-root/swrcache/internal/sim"
	pr "github.com/unkn0wn-root/swrcache/provider"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "YAML config file",
		Sources: cli.NewValueSourceChain(cli.EnvVar(config.EnvVar)),
	}

	loggerFlag = &cli.StringFlag{
		Name:    "logger",
		Aliases: []string{"l"},
		Usage:   "cache log backend: slog, zap, logrus, apex or none",
		Value:   "none",
		Sources: cli.NewValueSourceChain(cli.EnvVar("SWRCTL_LOGGER")),
	}

	levelFlag = &cli.StringFlag{
		Name:  "level",
		Usage: "cache log level",
		Value: "info",
	}
)

// InitApp builds the swrctl command tree. out and errOut default to the
// process streams.
func InitApp(out, errOut io.Writer) *cli.Command {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}

	app := &cli.Command{
		Name:      "swrctl",
		Usage:     "exercise and inspect a stale-while-revalidate cache",
		Writer:    out,
		ErrWriter: errOut,
		Flags:     []cli.Flag{configFlag, loggerFlag, levelFlag},
		Commands: []*cli.Command{
			simulateCommand(),
			configCommand(),
			invalidateCommand(),
		},
	}

	for _, cmd := range app.Commands {
		sort.Slice(cmd.Flags, func(i, j int) bool {
			return cmd.Flags[i].Names()[0] < cmd.Flags[j].Names()[0]
		})
	}
	return app
}

func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:      "simulate",
		Usage:     "run a scenario against a simulated data source",
		ArgsUsage: "<dedup|race|swr|invalidate>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "callers",
				Usage: "concurrent callers",
				Value: 16,
			},
			&cli.DurationFlag{
				Name:  "latency",
				Usage: "simulated source latency",
				Value: 20 * time.Millisecond,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			scenario := cmd.Args().First()
			if scenario == "" {
				return fmt.Errorf("scenario required: one of %v", sim.Scenarios)
			}

			opts, newProvider, flush, err := cacheOptions(cmd)
			if err != nil {
				return err
			}
			defer flush()

			log.WithFields(log.Fields{"scenario": scenario, "callers": cmd.Int("callers")}).Debug("simulate")
			r, err := sim.Run(ctx, scenario, sim.Config{
				Callers:     cmd.Int("callers"),
				Latency:     cmd.Duration("latency"),
				Base:        opts,
				NewProvider: newProvider,
			})
			fmt.Fprint(cmd.Root().Writer, r.String())
			return err
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:      "config",
		Usage:     "validate a config file and print the resolved settings",
		ArgsUsage: "[file]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				path = cmd.String("config")
			}
			f, err := config.Load(path)
			if err != nil {
				return err
			}
			opts, err := f.CacheOptions()
			if err != nil {
				return err
			}
			defer opts.Provider.Close()

			w := cmd.Root().Writer
			fmt.Fprintf(w, "source:          %s\n", f.Source)
			fmt.Fprintf(w, "ttl:             %s\n", orDefault(opts.TTL))
			fmt.Fprintf(w, "policy:          %s\n", policy(opts))
			fmt.Fprintf(w, "max stale:       %s\n", opts.MaxStale)
			fmt.Fprintf(w, "sweep interval:  %s\n", opts.SweepInterval)
			fmt.Fprintf(w, "bump on inval.:  %t\n", opts.BumpOnInvalidate)
			fmt.Fprintf(w, "provider:        %s\n", f.ProviderKind())
			fmt.Fprintf(w, "logger:          %s (%s)\n", f.LogBackend(), orInfo(f.Log.Level))
			if f.Bus.Transport != "" {
				ec, _ := f.BusCodec()
				fmt.Fprintf(w, "bus:             %s %s channel=%s codec=%s max=%d\n",
					f.Bus.Transport, f.Bus.URL, orDash(f.Bus.Channel), ec, f.Bus.MaxMessageBytes)
			}
			return nil
		},
	}
}

func invalidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "invalidate",
		Usage:     "publish an invalidation to peers over the configured bus",
		ArgsUsage: "[key...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "pattern", Usage: "regular expression over keys"},
			&cli.StringFlag{Name: "match", Usage: "glob over keys"},
			&cli.BoolFlag{Name: "all", Usage: "every key"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := config.Load(cmd.String("config"))
			if err != nil {
				return err
			}
			if f.Bus.Transport == "" {
				return fmt.Errorf("%s: no bus transport configured", f.Source)
			}
			opts, _, flush, err := cacheOptions(cmd)
			if err != nil {
				return err
			}
			defer flush()

			c, err := swrcache.New(opts)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			m, closeMirror, err := f.NewMirror(ctx, c, opts.Logger)
			if err != nil {
				return err
			}
			defer closeMirror()

			switch {
			case cmd.Bool("all"):
				_, err = m.InvalidateAll(ctx)
			case cmd.String("pattern") != "":
				re, cerr := regexp.Compile(cmd.String("pattern"))
				if cerr != nil {
					return cerr
				}
				_, err = m.InvalidatePattern(ctx, re)
			case cmd.String("match") != "":
				_, err = m.InvalidateMatch(ctx, cmd.String("match"))
			case cmd.Args().Len() > 0:
				_, err = m.InvalidateKeys(ctx, cmd.Args().Slice()...)
			default:
				return errors.New("nothing to invalidate: pass keys, --pattern, --match or --all")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.Root().Writer, "published via %s as %s\n", f.Bus.Transport, m.Origin())
			return nil
		},
	}
}

// cacheOptions resolves Options and a provider factory from --config (if
// set) and the logger from --logger/--level.
func cacheOptions(cmd *cli.Command) (swrcache.Options, func() (pr.Provider, error), func(), error) {
	var opts swrcache.Options
	var newProvider func() (pr.Provider, error)
	backend, level := cmd.String("logger"), cmd.String("level")

	if path := cmd.String("config"); path != "" {
		f, err := config.Load(path)
		if err != nil {
			return opts, nil, nil, err
		}
		opts, newProvider = f.BaseOptions(), f.NewProvider
		if !cmd.IsSet("logger") {
			backend, level = f.LogBackend(), orInfo(f.Log.Level)
		}
	}

	l, flush, err := newLogger(backend, level, cmd.Root().ErrWriter)
	if err != nil {
		return opts, nil, nil, err
	}
	opts.Logger = l
	return opts, newProvider, flush, nil
}

func policy(o swrcache.Options) string {
	if o.DisableStaleWhileRevalidate {
		return "strict"
	}
	return "stale-while-revalidate"
}

func orDefault(d time.Duration) string {
	if d == 0 {
		return "5m0s (default)"
	}
	return d.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func orInfo(level string) string {
	if level == "" {
		return "info"
	}
	return level
}
