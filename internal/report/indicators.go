package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	md "github.com/nao1215/markdown"

	"tradedesk/internal/indicator"
)

// ReadCloses reads closing prices from CSV. The last column of each row is
// the close; a first row that does not parse is taken as a header.
func ReadCloses(r io.Reader) ([]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var closes []float64
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[len(rec)-1]), 64)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		closes = append(closes, v)
	}
	if len(closes) == 0 {
		return nil, errors.New("no closing prices")
	}
	return closes, nil
}

// IndicatorMarkdown renders the last rows values of the named indicators
// over closes as a markdown table, newest last. Warm-up values show as "-".
func IndicatorMarkdown(title string, closes []float64, names string, rows int) (string, error) {
	specs, err := indicator.ParseSpecs(names)
	if err != nil {
		return "", err
	}
	series := indicator.ComputeAll(specs, closes)
	cols := make([]string, 0, len(series))
	for k := range series {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	if rows <= 0 || rows > len(closes) {
		rows = len(closes)
	}
	table := md.TableSet{Header: append([]string{"#", "Close"}, cols...)}
	for i := len(closes) - rows; i < len(closes); i++ {
		row := []string{strconv.Itoa(i + 1), strconv.FormatFloat(closes[i], 'f', 2, 64)}
		for _, c := range cols {
			v := series[c][i]
			if indicator.Defined(v) {
				row = append(row, strconv.FormatFloat(v, 'f', 4, 64))
			} else {
				row = append(row, "-")
			}
		}
		table.Rows = append(table.Rows, row)
	}

	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)
	doc.H1(title)
	doc.PlainText(fmt.Sprintf("%d closes, showing the last %d", len(closes), rows))
	doc.Table(table)
	if err := doc.Error(); err != nil {
		return "", err
	}
	return doc.String(), nil
}
