// Package sqlclassify implements SQL statement classification,
// MySQL-to-SQLite dialect transpilation, and consistency-hint extraction.
//
// Rewrites are regex-table driven and applied only to code regions of the
// statement: a byte mask computed by codeMask keeps string literals,
// quoted identifiers, and comments untouched.
package sqlclassify
