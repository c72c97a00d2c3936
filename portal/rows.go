package portal

import (
	"time"

	"github.com/reveller/deuker-monitor/docket"
)

// TableKind selects the column mapping applied to a row.
type TableKind int

const (
	KindCharges TableKind = iota
	KindDockets
	KindExtraDocuments
)

// RowKind tags the result of parsing one row.
type RowKind int

const (
	RowUnparsed RowKind = iota
	RowCharge
	RowDocket
	RowExtraDocument
)

// ParsedRow is the tagged result of ParseRow. Exactly one of Charge, Docket,
// or ExtraDocument is populated, matching Kind; Unparsed rows carry only the
// reason. Malformed rows are returned, not silently dropped — the caller
// decides to log and skip.
type ParsedRow struct {
	Kind          RowKind
	Charge        docket.Charge
	Docket        docket.DocketEntry
	ExtraDocument ExtraDocument
	Reason        string
}

// ExtraDocument is one downloadable row from the Extra Documents tab.
type ExtraDocument struct {
	CaseNumber  string
	Description string
}

// ParseRow maps a row's cells to a record using the fixed column layout for
// the given table kind:
//
//	charges  (>=3 cells): seq no | charge | type | disposition?
//	dockets  (>=4 cells): view control | din | date | book/page | docket?
//	extra    (>=2 cells): view control | ... | document description (last cell)
//
// Rows with too few cells come back as RowUnparsed.
func ParseRow(kind TableKind, caseNumber string, row TableRow, now time.Time) ParsedRow {
	switch kind {
	case KindCharges:
		return parseChargeRow(caseNumber, row, now)
	case KindDockets:
		return parseDocketRow(caseNumber, row, now)
	case KindExtraDocuments:
		return parseExtraDocumentRow(caseNumber, row)
	}
	return ParsedRow{Kind: RowUnparsed, Reason: "unknown table kind"}
}

func parseChargeRow(caseNumber string, row TableRow, now time.Time) ParsedRow {
	cells := row.Cells
	if len(cells) < 3 {
		return ParsedRow{Kind: RowUnparsed, Reason: "charge row needs >=3 cells"}
	}
	c := docket.Charge{
		CaseNumber:        caseNumber,
		SequenceNumber:    cells[0].Text,
		ChargeDescription: cells[1].Text,
		ChargeType:        cells[2].Text,
		TimestampFound:    now.Format(time.RFC3339),
	}
	if len(cells) > 3 {
		c.Disposition = cells[3].Text
	}
	return ParsedRow{Kind: RowCharge, Charge: c}
}

func parseDocketRow(caseNumber string, row TableRow, now time.Time) ParsedRow {
	cells := row.Cells
	if len(cells) < 4 {
		return ParsedRow{Kind: RowUnparsed, Reason: "docket row needs >=4 cells"}
	}
	d := docket.DocketEntry{
		CaseNumber:     caseNumber,
		DIN:            cells[1].Text,
		Date:           cells[2].Text,
		BookPage:       cells[3].Text,
		HasDocument:    cells[0].HasViewControl,
		TimestampFound: now.Format(time.RFC3339),
	}
	if len(cells) > 4 {
		d.DocketDescription = cells[4].Text
	}
	return ParsedRow{Kind: RowDocket, Docket: d}
}

func parseExtraDocumentRow(caseNumber string, row TableRow) ParsedRow {
	cells := row.Cells
	if len(cells) < 2 {
		return ParsedRow{Kind: RowUnparsed, Reason: "extra-document row needs >=2 cells"}
	}
	if !cells[0].HasViewControl {
		return ParsedRow{Kind: RowUnparsed, Reason: "no view control in first cell"}
	}

	// Description lives in the last cell; fall back to the first non-trivial
	// cell when the last one is blank or too short to identify anything.
	desc := ""
	if len(cells) >= 3 {
		desc = cells[len(cells)-1].Text
	}
	if len(desc) < 3 {
		for _, cell := range cells[1:] {
			if len(cell.Text) > 3 {
				desc = cell.Text
				break
			}
		}
	}
	// A blank description is still a downloadable row; the caller assigns a
	// positional fallback name ("extra-doc-N").
	return ParsedRow{Kind: RowExtraDocument, ExtraDocument: ExtraDocument{
		CaseNumber:  caseNumber,
		Description: desc,
	}}
}
