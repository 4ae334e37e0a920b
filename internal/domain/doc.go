// Package domain models the ANEEL SIGEL wind-turbine registry ("aerogeradores")
// and the decisions the pipeline makes about it.
//
// # Data Source
//
// Records come from the SIGEL ArcGIS MapServer layer exposed at
// https://sigel.aneel.gov.br/arcgis/rest/services/PORTAL/WFS/MapServer/0/query.
// Each query returns a JSON object with a "features" array. A feature pairs an
// "attributes" object (flat scalar fields) with a point "geometry" {x, y},
// where x is longitude and y is latitude in decimal degrees.
//
// # Field Conventions
//
//	CEG               facility identifier, unique per generation unit
//	POT_MW            installed capacity in megawatts
//	OPERACAO          operational status, "Sim" or "Não"
//	DATA_ATUALIZACAO  last update, epoch milliseconds
//	NOME_EOL          wind farm name
//	ALT_TOTAL         total turbine height in metres
//
// Attribute order is significant: the service returns fields in layer order
// and the pipeline keeps that order through every stage. [Attributes] decodes
// JSON objects without losing it.
//
// # Freshness
//
// The maximum DATA_ATUALIZACAO across a small sample of remote records is the
// freshness marker. A marker of 0 means no usable timestamp was found and is
// always treated as stale. See [NeedsRefresh].
//
// # Cleaning
//
// [Clean] applies the consolidation rules in a fixed order: drop the WKT
// column, coerce coordinates, convert DATA_ATUALIZACAO to YYYY-MM-DD, move
// coordinates first, validate, filter implausible capacity (>= 1000 MW),
// filter unknown operational status, then keep the most recent row per CEG.
//
// Brazil's approximate bounding box (latitude -35..5, longitude -75..-30) is
// used only for warnings; out-of-box rows are never dropped.
package domain
