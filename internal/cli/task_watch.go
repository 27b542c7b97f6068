package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/tide-labs/tide/internal/domain"
)

func init() {
	taskWatchCmd.Flags().BoolVar(&watchHeartbeats, "heartbeats", false, "also print end-of-cycle markers")
	taskCmd.AddCommand(taskWatchCmd)
}

var watchHeartbeats bool

var taskWatchCmd = &cobra.Command{
	Use:   "watch TASK",
	Short: "Stream a task's events until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskWatch,
}

func runTaskWatch(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return c.watch(ctx, args[0], func(evt domain.Event) {
		printEvent(os.Stdout, evt, watchHeartbeats)
	})
}

// printEvent renders one event line. Empty Executed messages mark the end
// of a cycle and are shown only with heartbeats.
func printEvent(w io.Writer, evt domain.Event, heartbeats bool) {
	ts := time.UnixMilli(evt.Ts).Format("15:04:05")
	who := "task"
	if evt.WorkerID != nil {
		who = fmt.Sprintf("worker %d", *evt.WorkerID)
	}

	switch {
	case evt.Kind == domain.EventStopped:
		fmt.Fprintf(w, "%s [%s] stopped: %s\n", ts, who, evt.Msg)
	case evt.Msg == "":
		if heartbeats {
			fmt.Fprintf(w, "%s [%s] ----\n", ts, who)
		}
	default:
		fmt.Fprintf(w, "%s [%s] %s\n", ts, who, evt.Msg)
	}
}
