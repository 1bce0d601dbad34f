// Package staging names and sweeps partial archives left in the install
// directory by interrupted mirror downloads.
package staging
