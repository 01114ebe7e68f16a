package output

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/torosent/lrcctl/internal/cloudapi"
)

// PrintActiveRuns writes one row per active run.
func PrintActiveRuns(w io.Writer, runs []cloudapi.ActiveRun) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No active runs.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tLOAD TEST\tNAME\tSTATUS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", r.RunID, r.TestID, r.TestName, r.Status)
	}
	return tw.Flush()
}

// PrintScripts writes one row per script assigned to a load test.
func PrintScripts(w io.Writer, scripts []cloudapi.ScriptRef) error {
	if len(scripts) == 0 {
		_, err := fmt.Fprintln(w, "No scripts.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCRIPT ID\tNAME\tACTIVE\tVUSERS\tMODE")
	for _, s := range scripts {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%d\t%s\n",
			s.ID, s.ScriptID, s.Name, strconv.FormatBool(s.IsActive), s.VusersNum, dash(s.SchedulingMode))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
