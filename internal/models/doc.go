// Package models defines the core domain models for trip settlement.
//
// # Inputs
//
// The following models are owned by the expense subsystem and are read-only
// to the settlement engine:
//   - Trip: a group of participants sharing expenses in one base currency
//   - Expense: a payment by one participant on behalf of several
//   - LineItem: an itemized line on an expense, assigned to participants
//
// # Snapshot
//
// The following models make up the persisted settlement snapshot for a trip:
//   - SettlementSummary: per-participant totals, replaced on every recompute
//   - MinimalTransfer: a directed payment that settles one pair
//
// ParticipantContribution is derived per expense and never persisted.
//
// # Design Principles
//
// 1. **Exact money**: every amount is a decimal.Decimal, never a float
// 2. **Snapshots, not logs**: a recompute replaces the whole snapshot
// 3. **Avoid circular references**: use ID strings instead of pointers for relationships
package models
