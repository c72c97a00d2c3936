package portal

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Table is one <table> from the rendered markup, reduced to the parts row
// classification needs: header text and per-cell text plus control flags.
type Table struct {
	Headers []string
	Rows    []TableRow
}

// TableRow is one <tr> containing <td> cells (header-only rows have none).
type TableRow struct {
	Cells []Cell
}

// Cell is one <td>. HasViewControl reports an embedded img/a/svg or a
// span[role=button] — the portal's only signal that a row has an attachment.
type Cell struct {
	Text           string
	Href           string
	LinkText       string
	HasViewControl bool
}

// ParseTables parses rendered markup and returns every table in document
// order. Parsing never fails on malformed markup; x/net/html recovers the
// way a browser does.
func ParseTables(markup string) []Table {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil
	}

	var tables []Table
	walk(doc, func(n *html.Node) {
		if n.DataAtom == atom.Table {
			tables = append(tables, parseTable(n))
		}
	})
	return tables
}

// HeaderText joins a table's header cells, lowercased, for kind detection.
func (t Table) HeaderText() string {
	return strings.ToLower(strings.Join(t.Headers, " "))
}

// IsChargesTable reports whether the header names both a sequence-number and
// a charge column. The first such table on the page is authoritative.
func (t Table) IsChargesTable() bool {
	h := t.HeaderText()
	return strings.Contains(h, "seq no") && strings.Contains(h, "charge")
}

// IsDocketsTable reports whether the header names both a DIN and a docket
// column.
func (t Table) IsDocketsTable() bool {
	h := t.HeaderText()
	return strings.Contains(h, "din") && strings.Contains(h, "docket")
}

// IsExtraDocumentsTable reports whether the header looks like the Extra
// Documents listing: a view/image column and a document column, but none of
// the docket table's DIN/book columns.
func (t Table) IsExtraDocumentsTable() bool {
	h := t.HeaderText()
	if len(t.Headers) < 2 {
		return false
	}
	return (strings.Contains(h, "view") || strings.Contains(h, "image")) &&
		strings.Contains(h, "document") &&
		!strings.Contains(h, "din") &&
		!strings.Contains(h, "book")
}

func parseTable(table *html.Node) Table {
	var t Table
	walk(table, func(n *html.Node) {
		switch n.DataAtom {
		case atom.Th:
			t.Headers = append(t.Headers, collectText(n))
		case atom.Tr:
			row := parseRow(n)
			if len(row.Cells) > 0 {
				t.Rows = append(t.Rows, row)
			}
		}
	})
	return t
}

func parseRow(tr *html.Node) TableRow {
	var row TableRow
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.DataAtom != atom.Td {
			continue
		}
		row.Cells = append(row.Cells, parseCell(c))
	}
	return row
}

func parseCell(td *html.Node) Cell {
	cell := Cell{Text: collectText(td)}
	walk(td, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.DataAtom {
		case atom.A:
			if cell.Href == "" {
				cell.Href = attr(n, "href")
				cell.LinkText = collectText(n)
			}
			cell.HasViewControl = true
		case atom.Img, atom.Svg:
			cell.HasViewControl = true
		case atom.Span:
			if attr(n, "role") == "button" {
				cell.HasViewControl = true
			}
		}
	})
	return cell
}

// walk visits n and all descendants depth-first.
func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// collectText concatenates all text nodes under n, trimmed. Whitespace
// inside the cell is preserved as rendered; only the edges are trimmed,
// matching the trim-at-parse-time rule the fingerprints rely on.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return strings.TrimSpace(sb.String())
}
