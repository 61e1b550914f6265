package utils

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"cryptoPositionWatch/internal/domain"
)

var closureCSVHeader = []string{
	"id", "symbol", "side", "entry_price", "quantity",
	"take_profit_order_id", "stop_loss_order_id", "close_reason", "closing_order_id",
	"opened_at", "closed_at", "notified_at",
}

// WriteClosuresToCSV writes events to filename, replacing it.
func WriteClosuresToCSV(events []*domain.ClosureEvent, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := WriteClosuresCSV(file, events); err != nil {
		return err
	}
	return file.Close()
}

// WriteClosuresCSV writes a header row and one row per event. Times are
// RFC3339 in UTC; an unnotified closure has an empty notified_at.
func WriteClosuresCSV(w io.Writer, events []*domain.ClosureEvent) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(closureCSVHeader); err != nil {
		return err
	}
	for _, ev := range events {
		notifiedAt := ""
		if ev.NotifiedAt != nil {
			notifiedAt = ev.NotifiedAt.UTC().Format(time.RFC3339)
		}
		err := writer.Write([]string{
			strconv.FormatInt(ev.ID, 10),
			ev.Symbol,
			string(ev.Side),
			strconv.FormatFloat(ev.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(ev.Quantity, 'f', -1, 64),
			ev.TakeProfitOrderID,
			ev.StopLossOrderID,
			string(ev.CloseReason),
			ev.ClosingOrderID,
			ev.OpenedAt.UTC().Format(time.RFC3339),
			ev.ClosedAt.UTC().Format(time.RFC3339),
			notifiedAt,
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
