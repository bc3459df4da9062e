package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// appFS backs file reads so tests can swap in memory.
var appFS = afero.NewOsFs()

func newInjectCmd() *cobra.Command {
	var (
		file string
		url  string
	)
	injectCmd := &cobra.Command{
		Use:   "inject [text]",
		Short: "Queues model text on a running instance",
		Long: `Sends model text to a running franz instance, which runs it as the next turn.
The text comes from the argument, from --file, or from stdin when the argument is "-".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := injectionText(cmd, args, file)
			if err != nil {
				return err
			}
			base, err := serverURL(cmd.Context(), url)
			if err != nil {
				return err
			}

			if err := newSyncClient(base).do(cmd.Context(), http.MethodPost, "/inject", map[string]string{"vlm_text": text}, nil); err != nil {
				return fmt.Errorf("inject failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Injected %d bytes.\n", len(text))
			return nil
		},
	}

	injectCmd.Flags().StringVarP(&file, "file", "f", "", "Read the model text from a file.")
	injectCmd.Flags().StringVar(&url, "url", "", "Base URL of the running instance. (Defaults to the configured server)")
	return injectCmd
}

func injectionText(cmd *cobra.Command, args []string, file string) (string, error) {
	var text string
	switch {
	case file != "" && len(args) > 0:
		return "", errors.New("pass either text or --file, not both")
	case file != "":
		data, err := afero.ReadFile(appFS, file)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", file, err)
		}
		text = string(data)
	case len(args) == 1 && args[0] == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		text = string(data)
	case len(args) == 1:
		text = args[0]
	default:
		return "", errors.New("no text given; pass it as an argument, with --file, or \"-\" for stdin")
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("model text is empty")
	}
	return text, nil
}
