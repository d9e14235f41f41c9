// Package tables registers the importable fleet entities with the core
// registry. Import it for side effects:
//
//	import _ "github.com/JonMunkholm/fleetimport/internal/core/tables"
//
// Each entity file registers its catalog, record builder and validator from
// init(). Typed records (Load, Truck) are exported for the store package.
package tables
