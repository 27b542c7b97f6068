package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/tide-labs/tide/internal/domain"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create and control trading tasks",
}

func init() {
	f := taskCreateCmd.Flags()
	f.StringVar(&createOpts.id, "id", "", "task id (generated when empty)")
	f.StringVar(&createOpts.group, "group", "", "wallet group id")
	f.Uint32Var(&createOpts.workers, "workers", 1, "number of concurrent workers")
	f.StringVar(&createOpts.chain, "chain", string(domain.ChainSolana), "token chain: Solana, Base or Bsc")
	f.StringVar(&createOpts.token, "token", "", "token mint or contract address")
	f.StringVar(&createOpts.name, "name", "", "token name")
	f.StringVar(&createOpts.symbol, "symbol", "", "token symbol")
	f.Uint8Var(&createOpts.decimals, "decimals", 0, "token decimals")
	f.StringVar(&createOpts.mode, "mode", string(domain.TradeBoth), "trade mode: Both, BuyOnly or SellOnly")
	f.Uint32Var(&createOpts.minPct, "min-pct", 10, "minimum share of the balance to trade, percent")
	f.Uint32Var(&createOpts.maxPct, "max-pct", 50, "maximum share of the balance to trade, percent")
	f.Uint16Var(&createOpts.slippage, "slippage", 100, "slippage tolerance in basis points")
	f.Uint32Var(&createOpts.gasPrice, "gas-price", 0, "compute-unit price in micro-lamports (Solana)")
	f.Uint64Var(&createOpts.interval, "interval", 30, "seconds between two trades of one worker")
	f.BoolVar(&createOpts.start, "start", false, "start the task right after creating it")
	_ = taskCreateCmd.MarkFlagRequired("group")
	_ = taskCreateCmd.MarkFlagRequired("token")

	taskCmd.AddCommand(taskCreateCmd)
	rootCmd.AddCommand(taskCmd)
}

var createOpts struct {
	id, group, chain, token, name, symbol, mode string
	workers, minPct, maxPct, gasPrice           uint32
	decimals                                    uint8
	slippage                                    uint16
	interval                                    uint64
	start                                       bool
}

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a task over a wallet group",
	Example: `  tide task create --group sol-farm --token DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263 \
    --symbol BONK --decimals 5 --workers 3 --min-pct 20 --max-pct 60 --interval 45 --start`,
	RunE: runTaskCreate,
}

func buildTaskSpec() domain.TaskSpec {
	o := createOpts
	return domain.TaskSpec{
		ID:            o.id,
		WalletGroupID: o.group,
		WorkersCnt:    o.workers,
		TradeConfig: domain.TradeConfig{
			Token: domain.TokenInfo{
				Chain:    domain.Chain(o.chain),
				Address:  o.token,
				Name:     o.name,
				Symbol:   o.symbol,
				Decimals: o.decimals,
			},
			Mode:         domain.TradeMode(o.mode),
			Percentage:   [2]uint32{o.minPct, o.maxPct},
			Slippage:     o.slippage,
			GasPrice:     o.gasPrice,
			IntervalSecs: o.interval,
		},
	}
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	spec := buildTaskSpec()
	if err := spec.Validate(); err != nil {
		return err
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	var info domain.TaskInfo
	if err := c.do(cmd.Context(), http.MethodPost, "/api/tasks", spec, &info); err != nil {
		return err
	}
	fmt.Printf("Created task %s (%d wallets, %d workers)\n", info.ID, info.Wallets, info.WorkersCnt)

	if createOpts.start {
		if err := c.do(cmd.Context(), http.MethodPost, "/api/tasks/"+info.ID+"/start", nil, &info); err != nil {
			return err
		}
		fmt.Printf("Task %s is %s\n", info.ID, info.State)
	}
	return nil
}
