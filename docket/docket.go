// Package docket defines the record types extracted from the court portal
// and their identity fingerprints.
//
// Fingerprints are one-way hashes over identity fields only. They are the
// deduplication keys persisted across runs, so the field set and order are
// frozen: changing either would re-report every already-seen row.
package docket

import (
	"crypto/sha256"
	"encoding/hex"
)

// Charge is a single charge row from a case's CHARGES table.
type Charge struct {
	CaseNumber        string `json:"case_number"`
	SequenceNumber    string `json:"sequence_number"`
	ChargeDescription string `json:"charge_description"`
	ChargeType        string `json:"charge_type"`
	Disposition       string `json:"disposition"`
	TimestampFound    string `json:"timestamp_found"`
}

// Fingerprint hashes the charge's identity fields. Disposition is excluded:
// a disposition change on a known sequence number is not reported as new.
func (c Charge) Fingerprint() string {
	return fingerprint(c.CaseNumber, c.SequenceNumber, c.ChargeDescription, c.ChargeType)
}

// DocketEntry is a single row from a case's DOCKETS table.
type DocketEntry struct {
	CaseNumber         string `json:"case_number"`
	DIN                string `json:"din"`
	Date               string `json:"date"`
	DocketDescription  string `json:"docket_description"`
	BookPage           string `json:"book_page"`
	TimestampFound     string `json:"timestamp_found"`
	HasDocument        bool   `json:"has_document"`
	DocumentDownloaded bool   `json:"document_downloaded"`
	DocumentFilename   string `json:"document_filename"`
}

// Fingerprint hashes the docket entry's identity fields. The attachment flag
// and download outcome are lifecycle state, not identity.
func (d DocketEntry) Fingerprint() string {
	return fingerprint(d.CaseNumber, d.DIN, d.Date, d.DocketDescription)
}

// DocumentID is the dedup key for a docket attachment. It is plain text, not
// a hash, so a failed download can be retried and state files stay greppable.
func (d DocketEntry) DocumentID() string {
	return d.CaseNumber + "_" + d.DIN + "_" + d.DocketDescription
}

// ExtraDocumentID is the dedup key for an attachment on the Extra Documents
// tab, which has no DIN.
func ExtraDocumentID(caseNumber, description string) string {
	return caseNumber + "_extra_" + description
}

// CaseSummary is one row of the defendant's case list popup. It is produced
// fresh each cycle and folded into CaseInfo; it is never persisted itself.
type CaseSummary struct {
	CaseNumber  string
	CaseURL     string
	FiledDate   string
	ClosedDate  string
	FirstCharge string
	BalanceDue  string
}

// CaseInfo is the persisted per-case record, overwritten every cycle with
// the counts from the most recent full read.
type CaseInfo struct {
	CaseNumber  string `json:"case_number"`
	FiledDate   string `json:"filed_date"`
	ClosedDate  string `json:"closed_date"`
	FirstCharge string `json:"first_charge"`
	BalanceDue  string `json:"balance_due"`
	ChargeCount int    `json:"charge_count"`
	DocketCount int    `json:"docket_count"`
	LastChecked string `json:"last_checked"`
}

// fingerprint joins the fields with '|' and hashes them. The separator and
// field order match the original state files, which must stay loadable.
func fingerprint(fields ...string) string {
	h := sha256.New()
	for i, f := range fields {
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}
