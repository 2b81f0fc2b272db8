package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/victorarias/cclog/internal/config"
	"github.com/victorarias/cclog/internal/export"
	"github.com/victorarias/cclog/internal/logging"
	"github.com/victorarias/cclog/internal/logs"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "cclog",
	Short: "Browse Claude Code session logs",
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime)
	rootCmd.AddCommand(newProjectsCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newStatsCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cclog: %v\n", err)
		os.Exit(1)
	}
}

func newProjectsCmd() *cobra.Command {
	var (
		formatFlag  string
		sortBy      string
		sortOrder   string
		noHeader    bool
		projectsDir string
	)

	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List projects with session counts and activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(projectsDir)
			if err != nil {
				return err
			}
			projects := store.ListProjects(sortBy, sortOrder)

			out := cmd.OutOrStdout()
			switch strings.ToLower(formatFlag) {
			case "", "table":
				return writeProjectsTable(out, projects)
			case "plain":
				return writeProjectsPlain(out, projects, !noHeader)
			case "json":
				return writeJSON(out, projects)
			default:
				return fmt.Errorf("unsupported format: %s", formatFlag)
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&formatFlag, "format", "table", "output format: table, plain, or json")
	flags.StringVar(&sortBy, "sort", "last_active", "sort key: last_active, name, or session_count")
	flags.StringVar(&sortOrder, "order", "desc", "sort order: asc or desc")
	flags.BoolVar(&noHeader, "no-header", false, "omit header row for plain output")
	flags.StringVar(&projectsDir, "projects-dir", "", "override the Claude projects directory")

	return cmd
}

func newSessionsCmd() *cobra.Command {
	var (
		formatFlag  string
		sortBy      string
		sortOrder   string
		limit       int
		noHeader    bool
		projectsDir string
	)

	cmd := &cobra.Command{
		Use:   "sessions <project-id>",
		Short: "List sessions for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(projectsDir)
			if err != nil {
				return err
			}
			if _, err := store.GetProject(args[0]); err != nil {
				return fmt.Errorf("project %s not found", args[0])
			}

			if limit <= 0 {
				limit = store.SessionCount()
			}
			sessions := store.ListSessions(args[0], sortBy, sortOrder, limit, 0)

			out := cmd.OutOrStdout()
			switch strings.ToLower(formatFlag) {
			case "", "table":
				return writeSessionsTable(out, sessions)
			case "plain":
				return writeSessionsPlain(out, sessions, !noHeader)
			case "json":
				return writeJSON(out, sessions)
			default:
				return fmt.Errorf("unsupported format: %s", formatFlag)
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&formatFlag, "format", "table", "output format: table, plain, or json")
	flags.StringVar(&sortBy, "sort", "start_time", "sort key: start_time, duration, message_count, or file_size")
	flags.StringVar(&sortOrder, "order", "desc", "sort order: asc or desc")
	flags.IntVar(&limit, "limit", 0, "limit number of sessions shown (0 means no limit)")
	flags.BoolVar(&noHeader, "no-header", false, "omit header row for plain output")
	flags.StringVar(&projectsDir, "projects-dir", "", "override the Claude projects directory")

	return cmd
}

func newSearchCmd() *cobra.Command {
	var (
		formatFlag   string
		projectID    string
		role         string
		limit        int
		noHeader     bool
		forceColor   bool
		forceNoColor bool
		projectsDir  string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search message text across all sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if forceColor && forceNoColor {
				return errors.New("--color and --no-color cannot be used together")
			}
			if role != "" && role != "user" && role != "assistant" {
				return fmt.Errorf("invalid --role value: %s", role)
			}

			store, cfg, err := openStore(projectsDir)
			if err != nil {
				return err
			}
			index := logs.NewSearchIndex(cfg.Search.SnippetChars)
			logs.NewIndexer(store, index, logging.Nop()).Run(cmd.Context())

			if limit <= 0 {
				limit = cfg.Search.MaxResults
			}
			results := index.Search(args[0], projectID, role, limit)

			out := cmd.OutOrStdout()
			useColor := resolveColorChoice(out, forceColor, forceNoColor)
			switch strings.ToLower(formatFlag) {
			case "", "table":
				return writeResultsTable(out, results, useColor)
			case "plain":
				return writeResultsPlain(out, results, !noHeader, useColor)
			case "json":
				return writeJSON(out, results)
			default:
				return fmt.Errorf("unsupported format: %s", formatFlag)
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&formatFlag, "format", "table", "output format: table, plain, or json")
	flags.StringVar(&projectID, "project", "", "restrict results to one project")
	flags.StringVar(&role, "role", "", "restrict results to one role: user or assistant")
	flags.IntVar(&limit, "limit", 0, "maximum results (0 uses the configured default)")
	flags.BoolVar(&noHeader, "no-header", false, "omit header row for plain output")
	flags.BoolVar(&forceColor, "color", false, "force-enable ANSI colors even when stdout is not a TTY")
	flags.BoolVar(&forceNoColor, "no-color", false, "disable ANSI colors regardless of terminal detection")
	flags.StringVar(&projectsDir, "projects-dir", "", "override the Claude projects directory")

	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		formatFlag  string
		outputPath  string
		projectsDir string
	)

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Render a session as markdown, HTML, or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, ok := export.ParseFormat(formatFlag)
			if !ok {
				return fmt.Errorf("unsupported format: %s", formatFlag)
			}

			store, _, err := openStore(projectsDir)
			if err != nil {
				return err
			}
			conv, err := store.Conversation(args[0], logs.ConversationOptions{
				IncludeThinking:    true,
				IncludeToolResults: true,
			})
			if err != nil {
				if errors.Is(err, logs.ErrSessionNotFound) {
					return fmt.Errorf("session %s not found", args[0])
				}
				return err
			}

			content, err := format.Render(conv)
			if err != nil {
				return err
			}
			if outputPath != "" {
				return os.WriteFile(outputPath, []byte(content), 0o644)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), content)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&formatFlag, "format", "markdown", "output format: markdown, json, or html")
	flags.StringVarP(&outputPath, "output", "o", "", "write to a file instead of stdout")
	flags.StringVar(&projectsDir, "projects-dir", "", "override the Claude projects directory")

	return cmd
}

func newStatsCmd() *cobra.Command {
	var (
		formatFlag  string
		projectsDir string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show totals across all projects and sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(projectsDir)
			if err != nil {
				return err
			}
			stats := store.Stats()

			out := cmd.OutOrStdout()
			switch strings.ToLower(formatFlag) {
			case "json":
				return writeJSON(out, stats)
			case "", "text":
				const labelWidth = 9
				writeKV(out, labelWidth, "Projects", strconv.Itoa(stats.TotalProjects))
				writeKV(out, labelWidth, "Sessions", strconv.Itoa(stats.TotalSessions))
				writeKV(out, labelWidth, "Messages", strconv.Itoa(stats.TotalMessagesEstimated))
				writeKV(out, labelWidth, "Size", formatBytes(stats.TotalSizeBytes))
				writeKV(out, labelWidth, "Oldest", timeOrDash(stats.OldestSession))
				writeKV(out, labelWidth, "Newest", timeOrDash(stats.NewestSession))
				return nil
			default:
				return fmt.Errorf("unsupported format: %s", formatFlag)
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&formatFlag, "format", "text", "output format: text or json")
	flags.StringVar(&projectsDir, "projects-dir", "", "override the Claude projects directory")

	return cmd
}

func loadConfig() config.Config {
	path, err := config.Path()
	if err != nil {
		cfg := config.Default()
		config.ApplyEnv(&cfg)
		return cfg
	}
	cfg, err := config.Load(path)
	if err != nil {
		cfg = config.Default()
		config.ApplyEnv(&cfg)
	}
	return cfg
}

func openStore(projectsDir string) (*logs.Store, config.Config, error) {
	cfg := loadConfig()
	dir := projectsDir
	if dir == "" {
		resolved, err := cfg.ProjectsPath()
		if err != nil {
			return nil, cfg, err
		}
		dir = resolved
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, cfg, fmt.Errorf("Claude projects directory not found: %s", dir)
	}

	store := logs.NewStore(dir, cfg.Cache.MaxSessions, logging.Nop())
	store.BuildIndex(logs.DiscoverSessions(dir, logging.Nop()))
	return store, cfg, nil
}
