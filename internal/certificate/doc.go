// Package certificate lays out a finished audit as a paginated printable
// document and exports it as HTML or as PDF through headless Chromium.
//
// Pagination is computed in Go by Layout using fixed row heights, so the
// page breaks in the printed file match the Document model exactly and can
// be tested without a browser.
package certificate
