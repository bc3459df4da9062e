package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

func newLogsCmd() *cobra.Command {
	var (
		follow bool
		raw    bool
		level  string
		file   string
	)
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Prints the log file, optionally following it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" {
				cfg, err := getConfigFromContext(cmd.Context())
				if err != nil {
					return err
				}
				path = cfg.Logger().LogFile
			}
			if path == "" {
				return fmt.Errorf("no log file configured (logger.log_file)")
			}

			minLevel := zapcore.DebugLevel
			if level != "" {
				if err := minLevel.UnmarshalText([]byte(level)); err != nil {
					return fmt.Errorf("invalid level %q: %w", level, err)
				}
			}

			t, err := tail.TailFile(path, tail.Config{
				Follow:    follow,
				ReOpen:    follow,
				MustExist: true,
				Logger:    tail.DiscardingLogger,
			})
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			defer t.Cleanup()
			defer func() { _ = t.Stop() }()

			out := cmd.OutOrStdout()
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case line, ok := <-t.Lines:
					if !ok {
						return nil
					}
					if line.Err != nil {
						return line.Err
					}
					writeLogLine(out, line.Text, minLevel, raw)
				}
			}
		},
	}

	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are written.")
	logsCmd.Flags().BoolVar(&raw, "raw", false, "Print lines as stored instead of formatting them.")
	logsCmd.Flags().StringVar(&level, "level", "", "Only print entries at or above this level.")
	logsCmd.Flags().StringVar(&file, "file", "", "Log file to read. (Defaults to logger.log_file)")
	return logsCmd
}

// writeLogLine prints one JSON log entry as "ts LEVEL logger msg k=v ...".
// Lines that are not JSON are printed unchanged.
func writeLogLine(w io.Writer, text string, minLevel zapcore.Level, raw bool) {
	var entry map[string]interface{}
	if err := jsonAPI.UnmarshalFromString(text, &entry); err != nil {
		fmt.Fprintln(w, text)
		return
	}

	if lvl, ok := entry["level"].(string); ok {
		var l zapcore.Level
		if l.UnmarshalText([]byte(lvl)) == nil && l < minLevel {
			return
		}
	}
	if raw {
		fmt.Fprintln(w, text)
		return
	}

	var b strings.Builder
	for _, key := range []string{"ts", "level", "logger", "msg"} {
		if v, ok := entry[key]; ok {
			s := fmt.Sprint(v)
			if key == "level" {
				s = strings.ToUpper(s)
			}
			b.WriteString(s)
			b.WriteByte(' ')
		}
		delete(entry, key)
	}

	keys := make([]string, 0, len(entry))
	for k := range entry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v ", k, entry[k])
	}
	fmt.Fprintln(w, strings.TrimSpace(b.String()))
}
