// Package brokerage defines a canonical, strongly-typed model of brokerage
// holdings and executed trades, populated from custodian exports.
//
// Each custodian encodes the same economic event in its own textual
// conventions; the per-broker sub-packages (fidelity, ibkr) reconstruct a
// single unambiguous representation from those conventions. This package
// holds the target types: Currency and Cash (exact-decimal money), the
// closed set of Instrument variants, and the Position and Trade records.
//
// All values are immutable once constructed, and every domain invariant is
// enforced at construction time.
package brokerage
