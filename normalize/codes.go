package normalize

// Diagnostic codes emitted by the normalizer. Structural validation of the
// finished flow reports graph FL-0xx codes alongside these.
const (
	// Resolution.
	CodeMalformedPayload  = "NF-100"
	CodeUnknownType       = "NF-101"
	CodeAliasedType       = "NF-102"
	CodeDisallowedType    = "NF-103"
	CodeNodeCapExceeded   = "NF-104"
	CodeUnparsablePayload = "NF-105"

	// Identity.
	CodeDuplicateID = "NF-201"

	// Connections.
	CodeUnresolvedEdge = "NF-301"
	CodeEdgeFromEnd    = "NF-302"
	CodeEdgeIntoStart  = "NF-303"
	CodeDuplicateEdge  = "NF-304"

	// Arity.
	CodeExtraEdges     = "NF-401"
	CodeRouteMapReset  = "NF-402"
	CodeFallbackAdded  = "NF-403"
	CodeIntentsDerived = "NF-404"
	CodeAPIExtraEdges  = "NF-405"
	CodeAPISameTarget  = "NF-406"
	CodeAPIPathAdded   = "NF-407"
	CodeIntentsCoerced = "NF-408"
	CodeStaleRoute     = "NF-409"
	CodeRouteEdgeAdded = "NF-410"

	// Topology.
	CodeDuplicateStart = "NF-501"
	CodeStartAdded     = "NF-502"
	CodeDuplicateEnd   = "NF-503"
	CodeEndAdded       = "NF-504"
	CodeResponseAdded  = "NF-505"
	CodeDanglingWired  = "NF-506"

	// Inference and usage.
	CodeURLInferred    = "NF-601"
	CodeMethodInferred = "NF-602"
	CodeUsage          = "NF-603"
)

// Handle names used on synthesized and classified edges.
const (
	DefaultSourceHandle = "a"
	DefaultTargetHandle = "b"
	FallbackHandle      = "fallback"
	SuccessHandle       = "success"
	ErrorHandle         = "error"
)

// Auto-layout geometry for nodes without an explicit position.
const (
	layoutSpacingX  = 250
	layoutBaselineY = 100
)
