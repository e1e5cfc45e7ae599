// Package lending holds the domain model of the lending inventory core: titles with a copy count,
// borrowers, loan records and their lifecycle, the fine arithmetic, and the contracts that storage
// implementations must honor.
//
// The package is dependency-free apart from identifiers. Storage lives in lending/sqlengine,
// the borrow and return orchestration in lending/engine and the overdue reclassification in lending/scanner.
//
// Inventory conservation: for every title, available copies plus the number of ACTIVE or OVERDUE
// loan records for that title equals the total copy count, at every committed state.
package lending
