package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricAPILatency         = "APILatency"
	MetricAPIRequestCount    = "APIRequestCount"
	MetricScanDays           = "TransitScanDays"
	MetricScanEvents         = "TransitScanEvents"
	MetricEphemerisCacheHit  = "EphemerisCacheHit"
	MetricEphemerisCacheMiss = "EphemerisCacheMiss"

	// Dimension Keys
	DimEndpoint = "Endpoint"
	DimMethod   = "Method"
	DimStatus   = "Status"
	DimBody     = "Body"
	DimProvider = "Provider"

	// Metric Namespace
	MetricNamespace = "Astroscope"
)
