// Command tally audits a claimed inventory ledger against a site-walkthrough
// video. It samples three frames, asks a multimodal reasoning service to
// compare them with the ledger, prints a risk-scored report and can export
// a signed certificate. "tally serve" runs the same pipeline behind a local
// HTTP dashboard.
package main
