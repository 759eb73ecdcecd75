package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/JonMunkholm/saleimport/internal/core"
	"github.com/JonMunkholm/saleimport/internal/importer"
	"github.com/JonMunkholm/saleimport/internal/model"
	"github.com/JonMunkholm/saleimport/internal/sheet"
	"github.com/spf13/cobra"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run FILE|DIR...",
		Short: "Import sales from files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := collectFiles(args)
			if err != nil {
				return err
			}
			svc, cleanup, err := openService(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			failed := false
			for _, path := range files {
				result, err := withSheet(svc, path, func(reader importer.RowReader) (*importer.Result, error) {
					return svc.RunImport(cmd.Context(), filepath.Base(path), reader)
				})
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", path, core.FormatUserError(err))
					slog.Debug("import failed", "file", path, "error", err)
					failed = true
					continue
				}
				if len(result.Errors) > 0 {
					failed = true
				}
				printResult(out, path, result, opts.asJSON)
			}
			if failed {
				return errReported
			}
			return nil
		},
	}
}

func newPreviewCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "preview FILE|DIR...",
		Short: "Report what an import would create without writing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := collectFiles(args)
			if err != nil {
				return err
			}
			svc, cleanup, err := openService(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			failed := false
			for _, path := range files {
				preview, err := withSheet(svc, path, func(reader importer.RowReader) (*importer.Preview, error) {
					return svc.PreviewImport(cmd.Context(), filepath.Base(path), reader)
				})
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", path, core.FormatUserError(err))
					failed = true
					continue
				}
				printPreview(out, path, preview, opts.asJSON)
			}
			if failed {
				return errReported
			}
			return nil
		},
	}
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent import runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openService(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer cleanup()

			runs, err := svc.ImportHistory(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), runs, opts.asJSON)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}

// withSheet opens path as a row reader and hands it to fn.
func withSheet[T any](svc *core.Service, path string, fn func(importer.RowReader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() > svc.MaxFileSize() {
		return zero, fmt.Errorf("%w: %d bytes", core.ErrFileTooLarge, info.Size())
	}

	reader, err := sheet.ForFile(path, f)
	if err != nil {
		return zero, err
	}
	return fn(reader)
}

// collectFiles expands directories into their importable files.
func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if _, err := sheet.DetectFormat(e.Name()); err == nil {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

func encodeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printResult(w io.Writer, path string, result *importer.Result, asJSON bool) {
	if asJSON {
		encodeJSON(w, struct {
			File string `json:"file"`
			*importer.Result
		}{path, result})
		return
	}

	fmt.Fprintf(w, "%s: %d rows, %d sales, %d new customers, %d new products\n",
		path, result.RowsProcessed, result.SalesCreated, result.CustomersCreated, result.ProductsCreated)
	for _, msg := range result.Messages() {
		fmt.Fprintf(w, "  %s\n", msg)
	}
}

func printPreview(w io.Writer, path string, p *importer.Preview, asJSON bool) {
	if asJSON {
		encodeJSON(w, struct {
			File string `json:"file"`
			*importer.Preview
		}{path, p})
		return
	}

	fmt.Fprintf(w, "%s: %d rows (%d accepted, %d rejected)\n", path, p.TotalRows, p.AcceptedRows, p.RejectedRows)
	fmt.Fprintf(w, "  customers: %d existing, %d new, %d accounts gaining a profile\n",
		p.ExistingCustomers, p.NewCustomers, p.AccountsWithoutProfile)
	fmt.Fprintf(w, "  products: %d existing, %d new\n", p.ExistingProducts, p.NewProducts)
	for _, e := range p.Errors {
		fmt.Fprintf(w, "  %s\n", e.Error())
	}
}

func printHistory(w io.Writer, runs []model.ImportRun, asJSON bool) {
	if asJSON {
		encodeJSON(w, runs)
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %-30s %d rows, %d sales, %d errors\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04"), r.Source, r.RowsProcessed, r.SalesCreated, len(r.Errors))
	}
}
