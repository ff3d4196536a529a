// Package dataprocessing turns raw carrier invoice exports into filtered,
// aggregated charge reports. It consolidates file loading, per-carrier
// reshaping, and summary generation into a cohesive package covering the
// lifecycle from upload bytes to renderable tables.
//
// # Architecture
//
// The package is organized around three components:
//
// 1. Loader: reads CSV and XLSX uploads into a generic Table
// 2. Reshaper: converts the FedEx wide slot layout into one row per tracking ID
// 3. Aggregator: filters and pivots the UPS long layout into one row per shipment
//
// # Usage
//
// Loading an upload:
//
//	loader := dataprocessing.NewLoader(logger)
//	table, err := loader.Load(file, "invoice.csv")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Reshaping a FedEx invoice:
//
//	reshaper := dataprocessing.NewReshaper(logger, dataprocessing.DefaultReshaperConfig())
//	report, err := reshaper.Reshape(ctx, table)
//
// Aggregating a UPS invoice:
//
//	aggregator := dataprocessing.NewAggregator(logger)
//	report, err := aggregator.Prepare(ctx, table)
//	pivot := aggregator.Pivot(ctx, report, selection)
//
// # Missing Values
//
// Cells are stored as strings exactly as loaded. A cell is missing when
// its key is absent or its trimmed value is empty; amounts that fail
// numeric parsing are excluded from sums but never abort processing.
// The two carriers aggregate duplicates differently and the difference
// is intentional: FedEx repeated descriptions within a row overwrite,
// UPS repeated charges within a shipment sum.
//
// # Error Handling
//
// Loaders return parsing errors that name the failing sheet or format.
// The UPS path rejects files without its required columns up front with
// a MissingColumnsError listing the columns that were actually present.
package dataprocessing
