package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"household/internal/core"
	"household/internal/export"
	applog "household/internal/log"
	"household/internal/services"
)

func newFlagSet(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func (a *app) periodFlag(fs *flag.FlagSet) *string {
	return fs.String("month", core.PeriodOf(a.now()).String(), "period as YYYY-MM")
}

func cmdAdd(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "add")
	date := fs.String("date", a.now().Format(core.DateLayout), "day of the expense")
	category := fs.String("category", "", "category")
	memo := fs.String("memo", "", "free text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}
	amount, err := core.ParseAmount(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("amount %q: %w", fs.Arg(0), err)
	}

	return a.withService(ctx, func(svc *services.ExpenseService) error {
		r, err := svc.Create(ctx, core.NewExpense{Amount: amount, Category: *category, Memo: *memo, Date: *date})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "added %s %s on %s\n", r.ID, core.FormatYen(r.Amount), r.Date)
		return nil
	})
}

func cmdEdit(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "edit")
	amount := fs.String("amount", "", "new amount")
	date := fs.String("date", "", "new day")
	category := fs.String("category", "", "new category")
	memo := fs.String("memo", "", "new memo")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}

	var patch core.Patch
	var parseErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "amount":
			v, err := core.ParseAmount(*amount)
			if err != nil {
				parseErr = fmt.Errorf("amount %q: %w", *amount, err)
				return
			}
			patch.Amount = &v
		case "date":
			patch.Date = date
		case "category":
			patch.Category = category
		case "memo":
			patch.Memo = memo
		}
	})
	if parseErr != nil {
		return parseErr
	}

	id := fs.Arg(0)
	return a.withService(ctx, func(svc *services.ExpenseService) error {
		r, err := svc.Update(ctx, id, patch)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "updated %s %s on %s\n", r.ID, core.FormatYen(r.Amount), r.Date)
		return nil
	})
}

func cmdRm(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "rm")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}
	id := fs.Arg(0)
	return a.withService(ctx, func(svc *services.ExpenseService) error {
		if err := svc.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "removed %s\n", id)
		return nil
	})
}

func cmdLs(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "ls")
	month := a.periodFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := core.ParsePeriod(*month)
	if err != nil {
		return err
	}

	records, err := a.store.GetByPeriod(ctx, p)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tAMOUNT\tCATEGORY\tMEMO\tSTATUS\tID")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Date, core.FormatYen(r.Amount), r.Category, r.Memo, r.SyncStatus, r.ID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := core.Summarize(p, records)
	fmt.Fprintf(a.out, "\n%s total %s in %d records\n", p, core.FormatYen(s.Total), len(records))

	if a.remote.Budgets == nil || !a.probe(ctx).Online() {
		return nil
	}
	budget, ok, err := a.remote.Budgets.GetBudget(ctx, p)
	if err != nil {
		a.logger.Warn("Budget unavailable", applog.FieldError, err)
		return nil
	}
	if ok {
		fmt.Fprintf(a.out, "budget %s, remaining %s\n", core.FormatYen(budget), core.FormatYen(core.Remaining(budget, records)))
	}
	return nil
}

func cmdSync(ctx context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	prober := a.probe(ctx)
	if !prober.Online() {
		pending, err := a.store.ListPending(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "remote unreachable, %d records pending\n", len(pending))
		return nil
	}

	res, err := a.syncer(prober).SyncBidirectional(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "uploaded %d (failed %d, deleted %d); merged %s: added %d, updated %d, conflicts %d, removed %d\n",
		res.Upload.Uploaded, res.Upload.Failed, res.Upload.Deleted,
		res.Period, res.Merge.Added, res.Merge.Updated, res.Merge.Conflicts, res.Merge.Removed)
	return nil
}

func cmdBudget(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "budget")
	month := a.periodFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := core.ParsePeriod(*month)
	if err != nil {
		return err
	}
	if a.remote.Budgets == nil {
		return fmt.Errorf("the %s backend keeps no budgets", a.remote.Kind)
	}

	switch fs.NArg() {
	case 0:
		v, ok, err := a.remote.Budgets.GetBudget(ctx, p)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(a.out, "no budget for %s\n", p)
			return nil
		}
		fmt.Fprintf(a.out, "budget for %s: %s\n", p, core.FormatYen(v))
	case 1:
		v, err := core.ParseAmount(fs.Arg(0))
		if err != nil {
			return fmt.Errorf("amount %q: %w", fs.Arg(0), err)
		}
		if err := a.remote.Budgets.SetBudget(ctx, p, v); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "budget for %s set to %s\n", p, core.FormatYen(v))
	default:
		return errUsage
	}
	return nil
}

func cmdConflicts(ctx context.Context, a *app, args []string) error {
	if len(args) == 2 && args[0] == "dismiss" {
		if err := a.store.DismissConflict(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "dismissed %s\n", args[1])
		return nil
	}
	if len(args) != 0 {
		return errUsage
	}

	conflicts, err := a.store.ListConflicts(ctx)
	if err != nil {
		return err
	}
	if len(conflicts) == 0 {
		fmt.Fprintln(a.out, "no conflicts")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCAL\tDUPLICATE\tLOCAL DEVICE\tREMOTE DEVICE\tDETECTED")
	for _, c := range conflicts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.LocalID, c.DuplicateID, c.LocalDeviceID, c.RemoteDeviceID, c.DetectedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func cmdExport(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "export")
	month := a.periodFlag(fs)
	out := fs.String("o", "", "output file (default household-YYYY-MM.xlsx)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := core.ParsePeriod(*month)
	if err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = fmt.Sprintf("household-%s.xlsx", p)
	}
	n, err := writeExport(ctx, a.store, p, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %d records to %s\n", n, path)
	return nil
}

func writeExport(ctx context.Context, lister export.Lister, p core.Period, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	n, err := export.WritePeriod(ctx, lister, p, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, errors.Join(err, os.Remove(path))
	}
	return n, nil
}
