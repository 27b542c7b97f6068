package cli

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tide-labs/tide/internal/domain"
)

func init() {
	taskCmd.AddCommand(taskLsCmd, taskShowCmd)
}

var taskLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List tasks",
	RunE:    runTaskLs,
}

var taskShowCmd = &cobra.Command{
	Use:   "show TASK",
	Short: "Show a task's configuration and state",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

func runTaskLs(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var out struct {
		Tasks []domain.TaskInfo `json:"tasks"`
	}
	if err := c.do(cmd.Context(), http.MethodGet, "/api/tasks", nil, &out); err != nil {
		return err
	}

	if len(out.Tasks) == 0 {
		fmt.Println("No tasks. Run 'tide task create' to add one.")
		return nil
	}
	return printTasks(os.Stdout, out.Tasks)
}

func printTasks(out io.Writer, tasks []domain.TaskInfo) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCHAIN\tTOKEN\tSTATE\tWORKERS\tWALLETS\tCREATED")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%d/%d\t%s\n",
			t.ID,
			t.Chain,
			tokenLabel(t.Token),
			t.State,
			t.RunningWorkers, t.WorkersCnt,
			t.LeasedKeys, t.Wallets,
			t.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var t domain.TaskInfo
	if err := c.do(cmd.Context(), http.MethodGet, "/api/tasks/"+url.PathEscape(args[0]), nil, &t); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%s\n", t.ID)
	fmt.Fprintf(w, "State\t%s\n", t.State)
	fmt.Fprintf(w, "Wallet group\t%s (%d wallets, %d leased)\n", t.WalletGroupID, t.Wallets, t.LeasedKeys)
	fmt.Fprintf(w, "Workers\t%d running of %d\n", t.RunningWorkers, t.WorkersCnt)
	fmt.Fprintf(w, "Token\t%s on %s (%d decimals)\n", tokenLabel(t.Token), t.Token.Chain, t.Token.Decimals)
	fmt.Fprintf(w, "Mode\t%s\n", t.Mode)
	fmt.Fprintf(w, "Amount\t%d%%-%d%% of balance\n", t.Percentage[0], t.Percentage[1])
	fmt.Fprintf(w, "Slippage\t%d bps\n", t.Slippage)
	if t.Chain == domain.ChainSolana {
		fmt.Fprintf(w, "Priority fee\t%d micro-lamports/CU\n", t.GasPrice)
	}
	fmt.Fprintf(w, "Interval\t%s\n", t.Interval())
	fmt.Fprintf(w, "Created\t%s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
	return w.Flush()
}

func tokenLabel(t domain.TokenInfo) string {
	if t.Symbol != "" {
		return t.Symbol
	}
	if len(t.Address) > 10 {
		return t.Address[:4] + ".." + t.Address[len(t.Address)-4:]
	}
	return t.Address
}
