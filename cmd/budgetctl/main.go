// Command budgetctl runs the budget engine locally, without a server or a
// store. It is handy for checking a budget before saving it.
//
//	budgetctl allocate --income 4000 --category rent=30 --category food=15 ...
//	budgetctl analyze --budget budget.json --transactions txs.json
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/boddenberg/budget-coach-bfa/internal/budget"
	"github.com/boddenberg/budget-coach-bfa/internal/domain"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// budgetFlags are shared by every subcommand that needs an allocation.
type budgetFlags struct {
	income     float64
	categories []string
	wants      []string
	file       string
}

func (f *budgetFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.income, "income", 0, "Monthly income")
	cmd.Flags().StringArrayVarP(&f.categories, "category", "c", nil, "Category share as name=percent (repeatable)")
	cmd.Flags().StringArrayVarP(&f.wants, "want", "w", nil, "Wants subcategory share as name=percent (repeatable)")
	cmd.Flags().StringVarP(&f.file, "budget", "b", "", "JSON budget file (same body as PUT /v1/users/{userId}/budget)")
}

// request builds the allocation input. Flags override the budget file.
func (f *budgetFlags) request() (*domain.AllocateRequest, error) {
	req := &domain.AllocateRequest{}
	if f.file != "" {
		if err := readJSON(f.file, req); err != nil {
			return nil, err
		}
	}
	if f.income != 0 {
		req.MonthlyIncome = f.income
	}
	if len(f.categories) > 0 {
		shares, err := parseShares(f.categories)
		if err != nil {
			return nil, fmt.Errorf("--category: %w", err)
		}
		req.Categories = shares
	}
	if len(f.wants) > 0 {
		shares, err := parseShares(f.wants)
		if err != nil {
			return nil, fmt.Errorf("--want: %w", err)
		}
		req.WantsSubcategories = shares
	}
	return req, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "budgetctl",
		Short:        "Percentage budget calculator",
		Long:         "Allocate a monthly income across budget categories and compare spending against it.",
		SilenceUsage: true,
	}
	root.AddCommand(newAllocateCmd(), newAnalyzeCmd())
	return root
}

func newAllocateCmd() *cobra.Command {
	var flags budgetFlags
	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Turn percentages into dollar amounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			res := budget.Allocate(req.MonthlyIncome, req.Categories, req.WantsSubcategories)
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.IsValid {
				return fmt.Errorf("invalid budget: %s", strings.Join(res.Errors, "; "))
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var flags budgetFlags
	var txFile string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Compare transactions against a budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if txFile == "" {
				return fmt.Errorf("--transactions is required")
			}
			req, err := flags.request()
			if err != nil {
				return err
			}
			res := budget.Allocate(req.MonthlyIncome, req.Categories, req.WantsSubcategories)
			if !res.IsValid {
				return fmt.Errorf("invalid budget: %s", strings.Join(res.Errors, "; "))
			}

			var txs []domain.Transaction
			if err := readJSON(txFile, &txs); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), budget.Analyze(txs, res))
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&txFile, "transactions", "t", "", "JSON array of transactions")
	return cmd
}

// parseShares reads name=percent pairs in the order given.
func parseShares(values []string) (domain.CategoryShares, error) {
	shares := make(domain.CategoryShares, 0, len(values))
	for _, v := range values {
		name, pct, ok := strings.Cut(v, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%q is not name=percent", v)
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(pct), 64)
		if err != nil {
			return nil, fmt.Errorf("%q: invalid percent: %w", v, err)
		}
		shares = append(shares, domain.CategoryShare{Name: name, Percentage: p})
	}
	return shares, nil
}

func readJSON(path string, dst any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
