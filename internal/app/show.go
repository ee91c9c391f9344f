package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"posturewatch/internal/storage"
)

// Show prints recent posture events.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show events")
	}
	if closeStore != nil {
		defer closeStore()
	}

	events, err := store.ListRecentEvents(ctx, opts.Limit)
	if err != nil {
		return err
	}
	return writeEventTable(os.Stdout, events)
}

func writeEventTable(w io.Writer, events []storage.EventRecord) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "no events found")
		return err
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tType\tDuration\tSitting\tLying\tSubject\tSession")
	for _, ev := range events {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.OccurredAt.UTC().Format(time.RFC3339),
			ev.Type,
			minutesCell(ev.DurationMinutes),
			minutesCell(ev.SittingMinutes),
			minutesCell(ev.LyingMinutes),
			ev.Subject,
			shortID(ev.SessionID),
		)
	}
	return writer.Flush()
}

func minutesCell(m int) string {
	if m == 0 {
		return "-"
	}
	return fmt.Sprintf("%dm", m)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
