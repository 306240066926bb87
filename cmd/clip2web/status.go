package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clip2web/internal/ipc"
	"go.klb.dev/clip2web/internal/message"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running agent's chain membership and counters",
		Long: `Queries the clip2web agent listening on the local IPC socket
($CLIP2WEB_SOCKET overrides the location).`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runStatus(v) },
	}

	cmd.Flags().Bool("json", false, "output raw JSON")
	addConfigFlag(cmd)

	return cmd
}

func newLastCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "last",
		Short:   "Print the path of the most recently saved image",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runLast(v) },
	}

	cmd.Flags().Bool("json", false, "output raw JSON")
	addConfigFlag(cmd)

	return cmd
}

func runStatus(v *viper.Viper) error {
	resp, err := ipc.Request(&message.Message{Type: message.TypeStatus})
	if err != nil {
		return err
	}
	if resp.Status == nil {
		return fmt.Errorf("unexpected %s response", resp.Type)
	}
	if v.GetBool("json") {
		return printJSON(resp.Status)
	}
	printStatus(resp.Status)
	return nil
}

func runLast(v *viper.Viper) error {
	resp, err := ipc.Request(&message.Message{Type: message.TypeLast})
	if err != nil {
		return err
	}
	if v.GetBool("json") {
		return printJSON(resp.Last)
	}
	if resp.Last == nil {
		return fmt.Errorf("nothing saved yet")
	}
	fmt.Println(resp.Last.Path)
	return nil
}

func printJSON(x any) error {
	enc, err := json.MarshalIndent(x, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(enc))
	return nil
}

func printStatus(st *message.Status) {
	w := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Version:\t%s (pid %d)\n", st.Version, st.PID)
	fmt.Fprintf(w, "Backend:\t%s\n", st.Backend)
	fmt.Fprintf(w, "Directory:\t%s\n", st.Dir)
	fmt.Fprintf(w, "Started:\t%s (%s)\n", st.Started.UTC().Format(time.RFC3339), fmtAge(st.Started))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Chain:\t%s\n", st.Chain.State)
	fmt.Fprintf(w, "Self:\t%s\n", orDash(st.Chain.Self))
	fmt.Fprintf(w, "Next:\t%s\n", orDash(st.Chain.Next))
	fmt.Fprintf(w, "Changes:\t%d (forwarded %d, membership updates %d)\n",
		st.Chain.Changes, st.Chain.Forwards, st.Chain.Adopted)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Saved:\t%d\n", st.Saved)
	fmt.Fprintf(w, "Failures:\tread %d, save %d, copy path %d\n",
		st.ExtractionFailures, st.PersistenceFailures, st.PublishFailures)
	if st.Last != nil {
		fmt.Fprintf(w, "Last saved:\t%s (%s)\n", st.Last.Path, fmtAge(st.Last.Time))
	}
	if st.LastFailure != nil {
		fmt.Fprintf(w, "Last failure:\t%s: %s (%s)\n", st.LastFailure.Kind, st.LastFailure.Reason, fmtAge(st.LastFailure.Time))
	}
	_ = w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func fmtAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := time.Since(t).Round(time.Second)
	if age < time.Minute {
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	}
	if age < time.Hour {
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	}
	return t.Format("15:04:05")
}
