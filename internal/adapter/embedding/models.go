package embedding

// knownDimension returns the output size of well-known models, or 0 when the
// dimension has to be learned from the first response.
func knownDimension(model string) int {
	switch model {
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	case "text-embedding-3-large":
		return 3072
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large":
		return 1024
	case "all-minilm", "all-MiniLM-L6-v2", "sentence-transformers/all-MiniLM-L6-v2":
		return 384
	}
	return 0
}

// RecommendedThreshold returns a threshold measured for model under metric,
// if one is known. Distances from different models are not on one scale, so
// there is no fallback for unknown models; run calibrate instead.
func RecommendedThreshold(model, metric string) (float64, bool) {
	if metric != "l2" {
		return 0, false
	}
	switch model {
	case HashModel:
		return 0.05, true
	case "all-minilm", "all-MiniLM-L6-v2", "sentence-transformers/all-MiniLM-L6-v2":
		return 0.12, true
	}
	return 0, false
}
