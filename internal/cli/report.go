package cli

import (
	"strconv"

	"github.com/bryan-buckman/podgrab/internal/output"
	"github.com/bryan-buckman/podgrab/internal/podcasts"
)

// printReport renders one row per synced channel, then the totals.
func printReport(p *output.Printer, r *podcasts.Report) error {
	if r == nil {
		return nil
	}
	if len(r.Feeds) == 0 {
		p.Info("No subscriptions.")
		return nil
	}

	table := p.NewTable("Channel", "Episodes", "Bytes", "Status")
	for _, f := range r.Feeds {
		if f.Err != nil {
			table.AddRow(f.Name, p.CountBadge(0), "0", "error: "+f.Err.Error())
			continue
		}
		for _, c := range f.Channels {
			status := "ok"
			if c.Err != nil {
				status = "stopped: " + c.Err.Error()
			}
			table.AddRow(c.Channel, p.CountBadge(c.Items), strconv.FormatInt(c.Bytes, 10), status)
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	p.Success("%d podcasts totalling %d bytes have been downloaded", r.Items(), r.Bytes())
	return nil
}
