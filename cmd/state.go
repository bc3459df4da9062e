package cmd

import (
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/franz/api/schemas"
)

func newStateCmd() *cobra.Command {
	var (
		url    string
		asJSON bool
	)
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Prints the turn state of a running instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := serverURL(cmd.Context(), url)
			if err != nil {
				return err
			}
			var snap schemas.Snapshot
			if err := newSyncClient(base).do(cmd.Context(), http.MethodGet, "/state", nil, &snap); err != nil {
				return fmt.Errorf("reading state: %w", err)
			}
			return printSnapshot(cmd.OutOrStdout(), snap, asJSON)
		},
	}

	stateCmd.Flags().StringVar(&url, "url", "", "Base URL of the running instance. (Defaults to the configured server)")
	stateCmd.Flags().BoolVar(&asJSON, "json", false, "Print the snapshot as JSON.")
	return stateCmd
}

// printSnapshot writes the snapshot without the screenshot, which is only
// summarized by size.
func printSnapshot(w io.Writer, snap schemas.Snapshot, asJSON bool) error {
	rawLen := len(snap.RawB64)
	snap.RawB64 = ""

	if asJSON {
		data, err := jsonAPI.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "phase:\t%s\n", snap.Phase)
	if snap.Error != nil {
		fmt.Fprintf(tw, "error:\t%s\n", *snap.Error)
	}
	if snap.Phase.IsIdleFailure() {
		fmt.Fprintf(tw, "note:\tidle until the next injection\n")
	}
	fmt.Fprintf(tw, "turn:\t%d\n", snap.Turn)
	fmt.Fprintf(tw, "msg_id:\t%d\n", snap.MsgID)
	fmt.Fprintf(tw, "pending_seq:\t%d\n", snap.PendingSeq)
	fmt.Fprintf(tw, "annotated_seq:\t%d\n", snap.AnnotatedSeq)
	fmt.Fprintf(tw, "screenshot:\t%d bytes (base64)\n", rawLen)
	fmt.Fprintf(tw, "bboxes:\t%d\n", len(snap.BBoxes))
	fmt.Fprintf(tw, "actions:\t%d\n", len(snap.Actions))
	for i, a := range snap.Actions {
		fmt.Fprintf(tw, "  %d.\t%s\n", i+1, describeAction(a))
	}
	fmt.Fprintf(tw, "observation:\t%s\n", snap.Observation)
	return tw.Flush()
}

func describeAction(a schemas.Action) string {
	if a.X2 != nil && a.Y2 != nil {
		return fmt.Sprintf("%s (%d,%d) -> (%d,%d)", a.Name, a.X1, a.Y1, *a.X2, *a.Y2)
	}
	return fmt.Sprintf("%s (%d,%d)", a.Name, a.X1, a.Y1)
}
