package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/modoterra/wharf/internal/buildinfo"
	"github.com/modoterra/wharf/pkg/config"
	"github.com/modoterra/wharf/pkg/docker"
	"github.com/modoterra/wharf/pkg/logs"
	"github.com/modoterra/wharf/pkg/runtime"
	tuimodel "github.com/modoterra/wharf/pkg/tui/model"
)

var (
	configPath string
	debug      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "wharf",
	Short:         "Terminal dashboard for Docker workloads",
	Long:          "Wharf is a terminal dashboard that streams, filters and inspects container logs in real time.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: $WHARF_CONFIG or the user config dir)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "write debug logs to wharf-debug.log")

	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(versionCmd)
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

// tuiLogger writes to a file when --debug is set and discards otherwise:
// the TUI owns the terminal, so stderr is not available.
func tuiLogger() (*slog.Logger, io.Closer) {
	if !debug && os.Getenv("WHARF_DEBUG") == "" {
		return slog.New(slog.DiscardHandler), nil
	}
	f, err := os.OpenFile("wharf-debug.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return slog.New(slog.DiscardHandler), nil
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})), f
}

func stderrLogger() *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// --- Root: TUI ---

func runTUI(_ *cobra.Command, _ []string) error {
	logger, closer := tuiLogger()
	if closer != nil {
		defer closer.Close()
	}

	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	rt, err := docker.New(logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	err = rt.Ping(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}

	watcher, err := config.NewWatcher(path, logger)
	if err != nil {
		logger.Warn("config watch unavailable", "err", err)
		watcher = nil
	}

	app := tuimodel.New(cfg, rt, watcher, logger)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err = p.Run()
	return err
}

// --- Logs ---

var (
	logsFollow bool
	logsTail   int
	logsSince  string
	logsFilter string
)

var logsCmd = &cobra.Command{
	Use:   "logs <container|stack>",
	Short: "Stream logs for a container or compose stack to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := stderrLogger()

		cfg, err := config.Load(resolveConfigPath())
		if err != nil {
			return err
		}

		rt, err := docker.New(logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sources, err := rt.ListSources(ctx)
		if err != nil {
			return err
		}
		ids, err := resolveSources(sources, args[0])
		if err != nil {
			return err
		}

		since := cfg.SinceWindow()
		if logsSince != "" {
			if since, err = config.ParseSince(logsSince); err != nil {
				return err
			}
		}
		tail := cfg.Log.Tail
		if cmd.Flags().Changed("tail") {
			tail = logsTail
		}

		v := logs.NewView(rt, logs.ViewConfig{
			MaxLines: cfg.Log.MaxLines,
			Tail:     tail,
			Since:    since,
			Follow:   logsFollow,
		}, logger)
		if logsFilter != "" {
			if err := v.SetFilter(logsFilter); err != nil {
				return fmt.Errorf("invalid filter: %w", err)
			}
		}
		v.Open(ctx, ids)
		defer v.Close()

		return printLogs(ctx, v, cmd.OutOrStdout(), sourceNames(sources), len(ids))
	},
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "keep streaming new lines")
	logsCmd.Flags().IntVar(&logsTail, "tail", 0, "number of lines to replay per container")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "backlog window, e.g. 30m, 2h, 1d")
	logsCmd.Flags().StringVar(&logsFilter, "filter", "", "only print lines matching this regexp")
}

// printLogs drains the view's store to out as events arrive, exiting when
// the context ends or, without --follow, when every stream has ended.
func printLogs(ctx context.Context, v *logs.View, out io.Writer, names map[string]string, sourceCount int) error {
	var last uint64
	ended := make(map[string]bool)

	flush := func() {
		for {
			batch := v.Store().Range(last+1, 256)
			if len(batch) == 0 {
				return
			}
			for _, l := range batch {
				last = l.Seq
				if !v.Filter().Matches(l) {
					continue
				}
				p := logs.Parse(l)
				text := tuimodel.Stylize(l.Raw, p.Spans)
				if sourceCount > 1 {
					if name := names[l.SourceID]; name != "" {
						text = name + " | " + text
					}
				}
				fmt.Fprintln(out, text)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return nil
		case ev, ok := <-v.Events():
			if !ok {
				flush()
				return nil
			}
			switch ev.Kind {
			case logs.EventLines:
				flush()
			case logs.EventStatus:
				if ev.Status == logs.StatusEnded {
					ended[ev.Source] = true
					if !logsFollow && len(ended) == sourceCount {
						flush()
						return nil
					}
				}
			}
		}
	}
}

func sourceNames(sources []runtime.Source) map[string]string {
	names := make(map[string]string, len(sources))
	for _, s := range sources {
		names[s.ID] = s.Name
	}
	return names
}

// resolveSources maps a name argument to container IDs: an exact container
// name or ID (prefix) wins, then a compose stack name selects its members.
func resolveSources(sources []runtime.Source, name string) ([]string, error) {
	for _, s := range sources {
		if s.Name == name || s.ID == name {
			return []string{s.ID}, nil
		}
	}
	var ids []string
	for _, s := range sources {
		if s.Stack != "" && s.Stack == name {
			ids = append(ids, s.ID)
		}
	}
	if len(ids) > 0 {
		return ids, nil
	}
	for _, s := range sources {
		if strings.HasPrefix(s.ID, name) {
			return []string{s.ID}, nil
		}
	}
	return nil, fmt.Errorf("no container or stack named %q", name)
}

// --- Sources ---

var sourcesJSON bool

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List containers grouped by compose stack",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := stderrLogger()

		rt, err := docker.New(logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		sources, err := rt.ListSources(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if sourcesJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(sources)
		}

		if len(sources) == 0 {
			fmt.Fprintln(out, "no containers")
			return nil
		}
		fmt.Fprintf(out, "%-20s %-25s %-12s %s\n", "STACK", "NAME", "STATE", "STATUS")
		for _, st := range runtime.GroupByStack(sources) {
			stack := st.Name
			if stack == "" {
				stack = "-"
			}
			for _, s := range st.Sources {
				fmt.Fprintf(out, "%-20s %-25s %-12s %s\n", stack, s.Name, s.State, s.Status)
			}
		}
		return nil
	},
}

func init() {
	sourcesCmd.Flags().BoolVar(&sourcesJSON, "json", false, "output as JSON")
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "wharf %s (%s) built %s\n",
			buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}
