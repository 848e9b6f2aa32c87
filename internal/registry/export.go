package registry

import (
	"fmt"
	"io"
	"strings"
)

// exportColumns is the fixed CSV column order.
var exportColumns = []string{"Name", "Email", "Company", "Phone", "Service", "Message", "Status", "Date"}

// ExportCSV writes the entire unfiltered set as CSV. Every field is
// quote-wrapped with embedded quotes doubled. encoding/csv is not used
// because it quotes only when necessary and this format quotes
// unconditionally.
func (r *Registry) ExportCSV(w io.Writer) error {
	r.mu.RLock()
	records := make([]contactRow, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, contactRow{
			rec.Name,
			rec.Email,
			rec.Company,
			rec.Phone,
			rec.Service,
			rec.Message,
			string(rec.Status.Display()),
			rec.CreatedAt.Local().Format("2006-01-02"),
		})
	}
	r.mu.RUnlock()

	if err := writeRow(w, exportColumns); err != nil {
		return err
	}
	for _, row := range records {
		if err := writeRow(w, row[:]); err != nil {
			return err
		}
	}

	if r.metrics != nil {
		r.metrics.CSVExports.Inc()
	}
	return nil
}

type contactRow [8]string

func writeRow(w io.Writer, fields []string) error {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	if _, err := fmt.Fprintln(w, strings.Join(quoted, ",")); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	return nil
}
