package cli

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/tide-labs/tide/internal/domain"
)

func init() {
	taskCmd.AddCommand(taskStartCmd, taskStopCmd, taskRmCmd)
}

var taskStartCmd = &cobra.Command{
	Use:   "start TASK",
	Short: "Start (or restart) a task's workers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionTask(cmd, args[0], "start")
	},
}

var taskStopCmd = &cobra.Command{
	Use:   "stop TASK",
	Short: "Ask a running task to stop after its workers' current cycles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionTask(cmd, args[0], "stop")
	},
}

var taskRmCmd = &cobra.Command{
	Use:   "rm TASK",
	Short: "Remove a created or stopped task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskRm,
}

func transitionTask(cmd *cobra.Command, id, op string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var info domain.TaskInfo
	if err := c.do(cmd.Context(), http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/"+op, nil, &info); err != nil {
		return err
	}
	fmt.Printf("Task %s is %s (%d/%d workers running)\n", info.ID, info.State, info.RunningWorkers, info.WorkersCnt)
	return nil
}

func runTaskRm(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	if err := c.do(cmd.Context(), http.MethodDelete, "/api/tasks/"+url.PathEscape(args[0]), nil, nil); err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", args[0])
	return nil
}
