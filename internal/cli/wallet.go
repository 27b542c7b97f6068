package cli

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tide-labs/tide/internal/domain"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage wallet groups",
}

func init() {
	walletImportCmd.Flags().StringVar(&importOpts.id, "id", "", "group id (generated when empty)")
	walletImportCmd.Flags().StringVar(&importOpts.name, "name", "", "group name")
	walletImportCmd.Flags().StringVar(&importOpts.chain, "chain", string(domain.ChainSolana), "chain: Solana, Base or Bsc")
	walletImportCmd.Flags().StringVar(&importOpts.file, "file", "-", "file with one private key per line (- for stdin)")

	walletCmd.AddCommand(walletImportCmd, walletLsCmd, walletRmCmd)
	rootCmd.AddCommand(walletCmd)
}

var importOpts struct {
	id, name, chain, file string
}

var walletImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a wallet group from exported private keys",
	Long: `Import a wallet group. Keys are read one per line: base58 keypairs for
Solana, hex private keys for Base and BSC. Blank lines and lines starting
with # are skipped. The daemon seals the keys before storing them.`,
	RunE: runWalletImport,
}

var walletLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List wallet groups",
	RunE:    runWalletLs,
}

var walletRmCmd = &cobra.Command{
	Use:   "rm GROUP",
	Short: "Delete a wallet group and its keys",
	Args:  cobra.ExactArgs(1),
	RunE:  runWalletRm,
}

// readKeys collects non-empty, non-comment lines.
func readKeys(r io.Reader) ([]string, error) {
	var keys []string
	sc := newLineScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	return keys, sc.Err()
}

func runWalletImport(cmd *cobra.Command, args []string) error {
	in := io.Reader(os.Stdin)
	if importOpts.file != "-" {
		f, err := os.Open(importOpts.file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	keys, err := readKeys(in)
	if err != nil {
		return fmt.Errorf("read keys: %w", err)
	}
	if len(keys) == 0 {
		return fmt.Errorf("no keys found")
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	req := map[string]any{
		"id":    importOpts.id,
		"name":  importOpts.name,
		"chain": importOpts.chain,
		"keys":  keys,
	}
	var sum domain.WalletGroupSummary
	if err := c.do(cmd.Context(), http.MethodPost, "/api/wallet-groups", req, &sum); err != nil {
		return err
	}
	fmt.Printf("Imported wallet group %s (%s, %d wallets)\n", sum.ID, sum.Chain, sum.Wallets)
	return nil
}

func runWalletLs(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var out struct {
		Groups []domain.WalletGroupSummary `json:"wallet_groups"`
	}
	if err := c.do(cmd.Context(), http.MethodGet, "/api/wallet-groups", nil, &out); err != nil {
		return err
	}
	if len(out.Groups) == 0 {
		fmt.Println("No wallet groups. Run 'tide wallet import' to add one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCHAIN\tWALLETS\tCREATED")
	for _, g := range out.Groups {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", g.ID, g.Name, g.Chain, g.Wallets, g.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runWalletRm(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	if err := c.do(cmd.Context(), http.MethodDelete, "/api/wallet-groups/"+url.PathEscape(args[0]), nil, nil); err != nil {
		return err
	}
	fmt.Printf("Removed wallet group %s\n", args[0])
	return nil
}
