// Package cli implements the lendingctl command tree.
package cli
