package domain

// Source identifies which ingestion path produced a transaction. It is
// computed, never stored: derivable purely from which identity columns are
// populated, in a fixed precedence order. Keeping the rule in one place
// keeps it auditable.
type Source string

const (
	SourceSimpleFIN Source = "simplefin"
	SourceLunchflow Source = "lunchflow"
	SourceCSVImport Source = "csv_import"
	SourceSplit     Source = "split"
	SourceManual    Source = "manual"
	SourceUnknown   Source = "unknown"
)

// SourceOf resolves a transaction's source from its populated identity
// fields. Precedence: provider ids first, then CSV batch, then split parent,
// then the manual flag. A row with both a provider id and the manual flag
// resolves to the provider.
func SourceOf(t *Transaction) Source {
	switch {
	case t.SimpleFIN != nil && t.SimpleFIN.ID != "":
		return SourceSimpleFIN
	case t.Lunchflow != nil && t.Lunchflow.ID != "":
		return SourceLunchflow
	case t.CSVBatchID != "":
		return SourceCSVImport
	case t.ParentTransactionID != nil:
		return SourceSplit
	case t.IsManual:
		return SourceManual
	default:
		return SourceUnknown
	}
}
