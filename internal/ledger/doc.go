// Package ledger parses the claimed-inventory file supplied with an audit.
//
// Parse accepts any delimited text with a header row and performs no schema
// validation: the columns are passed to the model as-is. Excerpt renders the
// leading rows as the JSON text block embedded in the audit request.
package ledger
