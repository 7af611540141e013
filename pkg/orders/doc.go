// Package orders defines the order data model for the federation broker:
// the Order type and its lifecycle states, the synchronized per-state lists
// with their resettable sweep cursor, the shared in-memory repository, the
// dependency tracker for composite orders, and the broker error taxonomy.
//
// Everything else in the broker (controller, transitioner, processors,
// connectors) operates on the types in this package.
package orders
