package provider

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledgerstore/internal/domain"
)

// NumberFormat names the numeric convention of a CSV export.
type NumberFormat int

const (
	// NumberUS: 1,234.56
	NumberUS NumberFormat = iota
	// NumberEU: 1.234,56
	NumberEU
	// NumberEUSpace: 1 234,56
	NumberEUSpace
)

// ColumnMappings names the CSV header of each canonical column. Empty
// entries are auto-detected from common bank export headers. Either Amount
// or the Debit/Credit pair must resolve.
type ColumnMappings struct {
	Date        string
	Description string
	Amount      string
	Debit       string
	Credit      string
	Balance     string
}

// ImportOptions controls CSV normalization.
type ImportOptions struct {
	Mappings ColumnMappings
	// Delimiter forces a field separator; zero auto-detects among
	// comma, semicolon, tab and pipe.
	Delimiter rune
	// SkipRows drops leading preamble lines before the header.
	SkipRows     int
	NumberFormat NumberFormat
	// FlipSign negates every amount, for exports that record expenses
	// as positive.
	FlipSign bool
	// DateFormats are tried before the built-in layouts.
	DateFormats []string
	// BatchID overrides the generated batch id.
	BatchID string
}

// NewBatchID derives the import batch id from the import instant.
func NewBatchID(now time.Time) string {
	return "import_" + now.UTC().Format("20060102_150405")
}

var defaultDateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
	"01-02-2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"2006-01-02 15:04:05",
}

var autoDetectHeaders = map[string][]string{
	"date":        {"date", "transaction date", "posted date", "booking date", "value date", "posted"},
	"description": {"description", "memo", "payee", "merchant", "details", "narrative", "reference"},
	"amount":      {"amount", "transaction amount", "value"},
	"debit":       {"debit", "withdrawal", "withdrawals", "money out", "paid out", "debit amount"},
	"credit":      {"credit", "deposit", "deposits", "money in", "paid in", "credit amount"},
	"balance":     {"balance", "running balance", "closing balance"},
}

// ImportCSV normalizes a bank CSV export into a batch of transactions for
// one account, plus at most one balance snapshot when the export carries a
// running balance. Rows that fail to parse are skipped and collected; a
// structural problem (no usable header) fails the whole import.
func ImportCSV(r io.Reader, accountID uuid.UUID, opts ImportOptions) (*Batch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ImportCSV: reading input: %w", err)
	}

	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if opts.SkipRows > 0 {
		if opts.SkipRows >= len(lines) {
			return nil, fmt.Errorf("ImportCSV: skip rows %d leaves no content", opts.SkipRows)
		}
		lines = lines[opts.SkipRows:]
	}
	content := strings.Join(lines, "\n")

	delimiter := opts.Delimiter
	if delimiter == 0 {
		delimiter = detectDelimiter(lines[0])
	}

	reader := csv.NewReader(strings.NewReader(content))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("ImportCSV: reading header: %w", err)
	}
	cols, err := resolveColumns(header, opts.Mappings)
	if err != nil {
		return nil, fmt.Errorf("ImportCSV: %w", err)
	}

	batchID := opts.BatchID
	if batchID == "" {
		batchID = NewBatchID(time.Now())
	}

	dateFormats := append(append([]string{}, opts.DateFormats...), defaultDateFormats...)

	batch := &Batch{Provider: KindCSVImport}
	var latestBalance *SnapshotRecord

	for rowIndex := 1; ; rowIndex++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			batch.Errors = append(batch.Errors, RecordError{Index: rowIndex, Record: "row", Err: err})
			continue
		}
		if isBlankRow(row) {
			continue
		}

		t, balance, err := normalizeCSVRow(row, cols, opts, dateFormats, accountID, batchID)
		if err != nil {
			batch.Errors = append(batch.Errors, RecordError{Index: rowIndex, Record: "row", Err: err})
			continue
		}
		batch.Transactions = append(batch.Transactions, TransactionRecord{
			Key: IdentityKey{
				Kind:        KindCSVImport,
				Fingerprint: t.CSVFingerprint,
				BatchID:     batchID,
			},
			Transaction: t,
		})

		if balance != nil && (latestBalance == nil || t.TransactionDate.After(latestBalance.At)) {
			latestBalance = &SnapshotRecord{
				Balance: *balance,
				At:      t.TransactionDate,
				Source:  string(KindCSVImport),
			}
		}
	}

	if latestBalance != nil {
		batch.Snapshots = append(batch.Snapshots, *latestBalance)
	}
	return batch, nil
}

// columnIndexes holds resolved header positions; -1 means absent.
type columnIndexes struct {
	date, description, amount, debit, credit, balance int
}

func resolveColumns(header []string, mappings ColumnMappings) (columnIndexes, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}

	find := func(mapped, kind string) int {
		if mapped != "" {
			if i, ok := index[strings.ToLower(strings.TrimSpace(mapped))]; ok {
				return i
			}
			return -1
		}
		for _, candidate := range autoDetectHeaders[kind] {
			if i, ok := index[candidate]; ok {
				return i
			}
		}
		return -1
	}

	cols := columnIndexes{
		date:        find(mappings.Date, "date"),
		description: find(mappings.Description, "description"),
		amount:      find(mappings.Amount, "amount"),
		debit:       find(mappings.Debit, "debit"),
		credit:      find(mappings.Credit, "credit"),
		balance:     find(mappings.Balance, "balance"),
	}

	if cols.date < 0 {
		return cols, fmt.Errorf("no date column found in header %v", header)
	}
	if cols.amount < 0 && cols.debit < 0 && cols.credit < 0 {
		return cols, fmt.Errorf("no amount or debit/credit column found in header %v", header)
	}
	return cols, nil
}

func normalizeCSVRow(row []string, cols columnIndexes, opts ImportOptions, dateFormats []string, accountID uuid.UUID, batchID string) (*domain.Transaction, *decimal.Decimal, error) {
	field := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	date, err := parseCSVDate(field(cols.date), dateFormats)
	if err != nil {
		return nil, nil, err
	}

	var amount decimal.Decimal
	switch {
	case cols.amount >= 0 && field(cols.amount) != "":
		amount, err = ParseNumber(field(cols.amount), opts.NumberFormat)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing amount %q: %w", field(cols.amount), err)
		}
	case field(cols.debit) != "":
		amount, err = ParseNumber(field(cols.debit), opts.NumberFormat)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing debit %q: %w", field(cols.debit), err)
		}
		// Debit columns record magnitudes; expenses are negative.
		if amount.IsPositive() {
			amount = amount.Neg()
		}
	case field(cols.credit) != "":
		amount, err = ParseNumber(field(cols.credit), opts.NumberFormat)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing credit %q: %w", field(cols.credit), err)
		}
	default:
		return nil, nil, fmt.Errorf("row has no amount")
	}
	if opts.FlipSign {
		amount = amount.Neg()
	}

	t := domain.NewTransaction(uuid.New(), accountID, amount, date)
	t.Description = field(cols.description)
	t.CSVBatchID = batchID
	t.EnsureFingerprint()

	var balance *decimal.Decimal
	if s := field(cols.balance); s != "" {
		if b, err := ParseNumber(s, opts.NumberFormat); err == nil {
			balance = &b
		}
	}
	return t, balance, nil
}

func parseCSVDate(s string, formats []string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range formats {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseNumber parses a money value in the given convention, tolerating
// currency symbols, trailing currency codes and accounting-style
// parentheses negatives.
func ParseNumber(s string, format NumberFormat) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("ParseNumber: empty value")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	// Strip currency symbols and a trailing alphabetic code ("12.34 USD").
	s = strings.TrimSpace(s)
	for _, sym := range []string{"$", "€", "£", "¥"} {
		s = strings.ReplaceAll(s, sym, "")
	}
	fields := strings.Fields(s)
	if len(fields) > 1 && isAlpha(fields[len(fields)-1]) {
		s = strings.Join(fields[:len(fields)-1], " ")
	}
	s = strings.TrimSpace(s)

	switch format {
	case NumberEU:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case NumberEUSpace:
		s = strings.ReplaceAll(s, " ", "")
		s = strings.ReplaceAll(s, " ", "")
		s = strings.ReplaceAll(s, ",", ".")
	default:
		s = strings.ReplaceAll(s, ",", "")
		s = strings.ReplaceAll(s, " ", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("ParseNumber: %w", err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

func detectDelimiter(headerLine string) rune {
	best, bestCount := ',', strings.Count(headerLine, ",")
	for _, candidate := range []rune{';', '\t', '|'} {
		if n := strings.Count(headerLine, string(candidate)); n > bestCount {
			best, bestCount = candidate, n
		}
	}
	return best
}

func isBlankRow(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func isAlpha(s string) bool {
	for _, c := range s {
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return len(s) > 0
}
