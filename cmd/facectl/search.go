package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/facelog/internal/query"
)

var searchCmd = &cobra.Command{
	Use:   "search <keyword>",
	Short: "List every sighting of a person by identity id, identification or student id number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := query.New(db, cfg.Query.TimelineTTL).Search(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(res.TimeDetect) == 0 {
			fmt.Printf("No sightings for %q.\n", args[0])
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TIME (UTC)\tIMAGE BYTES")
		for i, ts := range res.TimeDetect {
			fmt.Fprintf(w, "%s\t%d\n", time.Unix(ts, 0).UTC().Format(time.DateTime), len(res.FaceImage[i]))
		}
		return w.Flush()
	},
}

var timelineCmd = &cobra.Command{
	Use:   "timeline <camera_id>",
	Short: "Show distinct people per minute seen by one camera",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		buckets, err := query.New(db, cfg.Query.TimelineTTL).Timeline(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(buckets) == 0 {
			fmt.Printf("No detections for camera %q.\n", args[0])
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "MINUTE (UTC)\tPEOPLE")
		for _, b := range buckets {
			fmt.Fprintf(w, "%s\t%d\n", b.Minute.UTC().Format("2006-01-02 15:04"), b.People)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(timelineCmd)
}
