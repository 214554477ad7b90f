package papyrus

// DefaultRoutingThreshold is the multiplicative factor applied to the chunk
// distance when deciding whether the summary is close enough to prefer. The
// summary must be meaningfully closer, not just closer: a broad summary is
// lossy context, so it only wins when its distance beats the best chunk
// distance scaled down by this factor.
const DefaultRoutingThreshold = 0.8

// Route decides between the two context granularities. summaryDist and
// chunkDist are optional: nil means that tier returned no rows.
//
//	both present   -> summary iff summaryDist < chunkDist*threshold
//	summary only   -> summary (only summary-level signal exists)
//	summary absent -> chunks (never answer from a nonexistent summary)
func Route(summaryDist, chunkDist *float32, threshold float32) bool {
	switch {
	case summaryDist == nil:
		return false
	case chunkDist == nil:
		return true
	default:
		return *summaryDist < *chunkDist*threshold
	}
}
