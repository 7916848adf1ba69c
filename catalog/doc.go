// Package catalog parses the two JSON catalog formats a MoQ publisher
// may advertise on its "catalog" / "catalog.json" track into one unified
// available-track map, and holds the most recently successfully parsed
// snapshot for the manager's subscription reconciliation loop.
package catalog
