// Package csvio reads foreign expense CSV files and writes ledger exports.
package csvio

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"kakeibo/internal/core"
)

// Row is one expense line recovered from an imported file. Category is the
// label exactly as it appeared, trimmed; it may be empty.
type Row struct {
	Date        string      `json:"date"`
	Category    string      `json:"category"`
	Amount      int64       `json:"amount"`
	Description string      `json:"description"`
	Rating      core.Rating `json:"rating,omitempty"`
	Memo        string      `json:"memo"`
}

type ParseResult struct {
	Rows []Row `json:"rows"`
	// Categories holds every distinct non-empty label, sorted.
	Categories []string `json:"categories"`
}

var (
	headerDatePattern = regexp.MustCompile(`^\d{4}[/-]\d{1,2}[/-]\d{1,2}$`)
	datePattern       = regexp.MustCompile(`^(\d{4})[/-](\d{1,2})[/-](\d{1,2})$`)
)

// Parse reads the whole of r and extracts expense rows. Rows with an
// unusable date or amount are dropped; only a read failure is an error.
func Parse(r io.Reader) (ParseResult, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return ParseResult{}, fmt.Errorf("read csv: %w", err)
	}
	return ParseString(string(b)), nil
}

// ParseString is Parse over in-memory content.
func ParseString(content string) ParseResult {
	content = strings.TrimPrefix(content, "\uFEFF")
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	start, layout := 0, foreignLayout
	if len(lines) > 0 {
		first := strings.Split(lines[0], ",")[0]
		if first != "" && !headerDatePattern.MatchString(first) {
			start = 1
			if strings.HasPrefix(lines[0], strings.Join(ExpenseHeader[:3], ",")) {
				layout = exportLayout
			}
		}
	}

	res := ParseResult{Rows: []Row{}, Categories: []string{}}
	labels := map[string]struct{}{}
	for _, line := range lines[start:] {
		row, ok := parseRow(SplitLine(line), layout)
		if !ok {
			continue
		}
		if row.Category != "" {
			labels[row.Category] = struct{}{}
		}
		res.Rows = append(res.Rows, row)
	}

	for l := range labels {
		res.Categories = append(res.Categories, l)
	}
	sort.Strings(res.Categories)
	return res
}

// columns gives the field index of each value; minor < 0 means the file
// has no separate minor-category column.
type columns struct {
	date, major, minor, amount, description, rating, memo int
}

var (
	// date, category_label, amount, description, rating, memo
	foreignLayout = columns{date: 0, major: 1, minor: -1, amount: 2, description: 3, rating: 4, memo: 5}
	// Files produced by FormatExpenses. The major and minor columns are
	// recombined into the same label Category.Label renders.
	exportLayout = columns{date: 0, major: 1, minor: 2, amount: 3, description: 4, rating: 5, memo: 7}
)

func parseRow(cols []string, layout columns) (Row, bool) {
	offset := 0
	if cols[0] == "" && len(cols) > 1 {
		offset = 1
	}
	col := func(i int) string {
		if i >= 0 && offset+i < len(cols) {
			return cols[offset+i]
		}
		return ""
	}

	date, ok := NormalizeDate(col(layout.date))
	if !ok {
		return Row{}, false
	}
	amount, err := core.ParseAmount(col(layout.amount))
	if err != nil {
		return Row{}, false
	}
	label := core.Category{
		MajorName: strings.TrimSpace(col(layout.major)),
		MinorName: strings.TrimSpace(col(layout.minor)),
	}.Label()
	return Row{
		Date:        date,
		Category:    label,
		Amount:      amount,
		Description: strings.TrimSpace(col(layout.description)),
		Rating:      NormalizeRating(col(layout.rating)),
		Memo:        strings.TrimSpace(col(layout.memo)),
	}, true
}

// SplitLine splits one CSV line on commas outside double quotes. Inside
// quotes "" stands for a literal quote. It always returns at least one field.
func SplitLine(line string) []string {
	var (
		fields  []string
		cur     strings.Builder
		inQuote bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			if inQuote && i+1 < len(line) && line[i+1] == '"' {
				cur.WriteByte('"')
				i++
			} else {
				inQuote = !inQuote
			}
		case c == ',' && !inQuote:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(fields, cur.String())
}

// NormalizeDate turns YYYY/M/D or YYYY-M-D into zero-padded YYYY-MM-DD.
func NormalizeDate(s string) (string, bool) {
	m := datePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	return m[1] + "-" + pad2(m[2]) + "-" + pad2(m[3]), true
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// NormalizeRating maps the many ways spreadsheets spell a rating onto the
// three canonical marks. Anything unrecognized is no rating.
func NormalizeRating(s string) core.Rating {
	switch strings.TrimSpace(s) {
	case "〇", "○":
		return core.RatingGood
	case "△":
		return core.RatingFair
	case "✖", "×", "x", "X":
		return core.RatingBad
	default:
		return core.RatingNone
	}
}
