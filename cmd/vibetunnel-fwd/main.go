// Command vibetunnel-fwd forks a command under a PTY, records its output as
// an asciinema v2 session, and exposes a framed IPC control socket so
// vibetunneld (or any other client) can resize, inject input, rename, or
// kill the session (§4.E).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vibetunnel/vibetunnel-go/internal/config"
	"github.com/vibetunnel/vibetunnel-go/internal/forwarder"
	"github.com/vibetunnel/vibetunnel-go/internal/logger"
	"github.com/vibetunnel/vibetunnel-go/internal/session"
	"github.com/vibetunnel/vibetunnel-go/internal/titlefilter"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		sessionID   string
		titleMode   string
		updateTitle string
		verbosity   string
		logFile     string
		controlDir  string
		monitorOnly  bool
		quietCount   int
		verboseCount int
	)

	cmd := &cobra.Command{
		Use:                "vibetunnel-fwd [flags] -- <command> [args...]",
		Short:              "Forward a command's PTY session for vibetunneld",
		SilenceUsage:          true,
		SilenceErrors:         true,
		DisableFlagsInUseLine: true,
		RunE: func(c *cobra.Command, args []string) error {
			fo, _ := config.LoadFileOverrides(defaultOverridesPath())
			cfg, err := (config.Resolve{
				FlagControlDir: controlDir,
				FlagLogFile:    logFile,
				FlagLogLevel:   verbosity,
				FlagTitleMode:  titleMode,
				FileOverrides:  fo,
			}).Build()
			if err != nil {
				return err
			}

			level := logger.ParseVerbosity(cfg.LogLevel)
			if verbosity == "" && (quietCount != 0 || verboseCount != 0) {
				level = logger.LevelFromCount(verboseCount - quietCount)
			}
			if err := logger.Init(level, cfg.LogFile); err != nil {
				return err
			}

			if updateTitle != "" {
				if sessionID == "" {
					return fmt.Errorf("--update-title requires --session-id")
				}
				if !session.ValidID(sessionID) {
					return fmt.Errorf("invalid --session-id %q", sessionID)
				}
				return session.PatchName(cfg.ControlDir, sessionID, updateTitle)
			}

			if len(args) == 0 {
				return fmt.Errorf("missing command: vibetunnel-fwd [flags] -- <command> [args...]")
			}

			opts := forwarder.Options{
				ControlDir:   cfg.ControlDir,
				SessionID:    sessionID,
				TitleMode:    titlefilter.Mode(cfg.TitleMode),
				Command:      args,
				MonitorOnly:  monitorOnly,
				RefuseNested: true,
			}
			if wd, err := os.Getwd(); err == nil {
				opts.WorkingDir = wd
			}

			exitCode, err := forwarder.Run(c.Context(), opts)
			if err != nil {
				return err
			}
			os.Exit(exitCode)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&sessionID, "session-id", "", "reuse an existing session id instead of generating one")
	flags.StringVar(&titleMode, "title-mode", "", "none|filter|static|dynamic")
	flags.StringVar(&updateTitle, "update-title", "", "patch an existing session's name and exit (requires --session-id)")
	flags.StringVar(&verbosity, "verbosity", "", "silent|error|warn|info|verbose|debug")
	flags.StringVar(&logFile, "log-file", "", "append structured logs to this file")
	flags.StringVar(&controlDir, "control-dir", "", "override the control directory")
	flags.BoolVar(&monitorOnly, "monitor-only", false, "run without attaching local stdin")
	flags.CountVarP(&quietCount, "quiet", "q", "decrease verbosity (stackable)")
	flags.CountVarP(&verboseCount, "verbose", "v", "increase verbosity (stackable)")

	cmd.SetContext(context.Background())

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vibetunnel-fwd:", err)
		return 1
	}
	return 0
}

func defaultOverridesPath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return dir + "/.vibetunnel/vibetunnel-fwd.yaml"
}
