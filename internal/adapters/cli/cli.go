package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"inventory-admin/internal/app"
	"inventory-admin/internal/core"
	"inventory-admin/internal/integrity"
	"inventory-admin/internal/report"
	"inventory-admin/internal/store"

	"github.com/shopspring/decimal"
)

// CloudOpener opens the migration target named by --to and returns a func
// that releases it.
type CloudOpener func(ctx context.Context, name string) (store.BatchWriter, func(), error)

// Usage lists the available commands.
const Usage = `Usage: app <command> [args]

Commands:
  list <collection>                  print every record in a collection
  next-number <entity>               mint the next number (item, supplier, invoice, location, shipment)
  check <collection> <id>            report whether a record can be deleted
  report <type> [--upload]           build a report (dashboard, inventory, suppliers, shipments)
  convert <amount> <from> <to>       convert an amount between currencies
  migrate [--to postgres|mongo]      copy local data to cloud storage`

// Run executes a one-shot CLI command. args is os.Args[1:]; the first element
// is the subcommand name. Output goes to out.
func Run(ctx context.Context, svc app.ApplicationService, openCloud CloudOpener, out io.Writer, args []string) error {
	if len(args) == 0 {
		return errors.New(Usage)
	}

	switch args[0] {
	case "list", "ls", "l":
		if len(args) < 2 {
			return errors.New("usage: app list <collection>")
		}
		v, err := list(ctx, svc, args[1])
		if err != nil {
			return err
		}
		return printJSON(out, v)

	case "next-number", "next", "n":
		if len(args) < 2 {
			return errors.New("usage: app next-number <entity>")
		}
		res, err := svc.NextNumber(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, res.Number)

	case "check", "c":
		if len(args) < 3 {
			return errors.New("usage: app check <collection> <id>")
		}
		rep, err := svc.CheckDeletable(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		printReport(out, rep)

	case "report", "r":
		fs := flag.NewFlagSet("report", flag.ContinueOnError)
		fs.SetOutput(out)
		upload := fs.Bool("upload", false, "upload the report artifact to S3")
		if len(args) < 2 {
			return fmt.Errorf("usage: app report <type> [--upload]; types: %s", strings.Join(report.Types, ", "))
		}
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if !*upload {
			v, err := svc.Report(ctx, args[1])
			if err != nil {
				return err
			}
			return printJSON(out, v)
		}
		res, err := svc.ExportReport(ctx, app.ExportReportRequest{Type: args[1], Upload: true})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Uploaded %s to %s\n", res.Artifact.FileName(), res.URL)

	case "convert":
		if len(args) < 4 {
			return errors.New("usage: app convert <amount> <from> <to>")
		}
		amount, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[1], err)
		}
		res, err := svc.ConvertCurrency(ctx, app.ConvertRequest{Amount: amount, From: args[2], To: args[3]})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s = %s %s\n", res.Amount, strings.ToUpper(res.From), res.Converted.StringFixed(2), strings.ToUpper(res.To))

	case "migrate":
		fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
		fs.SetOutput(out)
		to := fs.String("to", "postgres", "cloud backend to migrate into (postgres or mongo)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		target, release, err := openCloud(ctx, *to)
		if err != nil {
			return err
		}
		defer release()
		res, err := svc.MigrateToCloud(ctx, target)
		if err != nil {
			return err
		}
		printMigration(out, *to, res.Records, res.Counters)

	default:
		return fmt.Errorf("unknown command: %s\n\n%s", args[0], Usage)
	}
	return nil
}

func list(ctx context.Context, svc app.ApplicationService, collection string) (any, error) {
	switch collection {
	case core.CollectionItems:
		return svc.Items().GetAll(ctx)
	case core.CollectionSuppliers:
		return svc.Suppliers().GetAll(ctx)
	case core.CollectionInvoices:
		return svc.Invoices().GetAll(ctx)
	case core.CollectionLocations:
		return svc.Locations().GetAll(ctx)
	case core.CollectionShipments:
		return svc.Shipments().GetAll(ctx)
	case core.CollectionCurrencies:
		return svc.Currencies().GetAll(ctx)
	}
	return nil, fmt.Errorf("%w: %q", store.ErrUnknownCollection, collection)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(out io.Writer, rep *integrity.Report) {
	if rep.Deletable {
		fmt.Fprintf(out, "%s %s can be deleted.\n", rep.Kind, rep.ID)
		return
	}
	fmt.Fprintln(out, rep.Message())
	for _, b := range rep.Blockers {
		fmt.Fprintf(out, "  %-12s %4d  %s\n", b.Kind, b.Count, strings.Join(b.SampleLabels, ", "))
	}
}

func printMigration(out io.Writer, target string, records map[string]int, counters int) {
	fmt.Fprintf(out, "Migrated to %s:\n", target)
	for _, coll := range core.BusinessCollections {
		fmt.Fprintf(out, "  %-12s %6d\n", coll, records[coll])
	}
	fmt.Fprintf(out, "  %-12s %6d\n", "counters", counters)
}
