package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/bmlt-enabled/tomato/internal/semantic"
)

// CSV streams the records as a comma-separated table with every field
// quoted and bare newline row termination. Columns guarded by a
// qualifier appear only when the first record qualifies, mirroring how
// the distance columns come and go with geo searches.
func CSV(w io.Writer, m semantic.Map, stream semantic.RecordStream) error {
	bw := bufio.NewWriter(w)

	var first semantic.Record
	hasFirst := false
	if stream != nil {
		if rec, ok := stream.Next(); ok {
			first, hasFirst = rec, true
		}
	}

	columns := make(semantic.Map, 0, len(m))
	for _, field := range m {
		if field.Qualifier != nil && (!hasFirst || !field.Qualifier(first)) {
			continue
		}
		columns = append(columns, field)
	}

	writeCSVRow(bw, columns, nil)
	if hasFirst {
		writeCSVRow(bw, columns, first)
		for {
			rec, ok := stream.Next()
			if !ok {
				break
			}
			writeCSVRow(bw, columns, rec)
		}
	}
	if stream != nil {
		if err := stream.Err(); err != nil {
			return fmt.Errorf("streaming records: %w", err)
		}
		if err := stream.Close(); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// writeCSVRow writes one quoted row; a nil record writes the header.
func writeCSVRow(w *bufio.Writer, columns semantic.Map, rec semantic.Record) {
	for i, field := range columns {
		if i > 0 {
			w.WriteByte(',')
		}
		value := field.Name
		if rec != nil {
			if field.Qualifier != nil && !field.Qualifier(rec) {
				value = ""
			} else {
				value = field.Accessor.Resolve(rec).Render()
			}
		}
		w.WriteByte('"')
		w.WriteString(strings.ReplaceAll(value, `"`, `""`))
		w.WriteByte('"')
	}
	w.WriteByte('\n')
}
