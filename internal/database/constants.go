package database

// EncodingDim is the fixed dimensionality of stored face encodings.
// dlib face descriptors are 128 floats; rows with any other length are
// rejected at load time.
const EncodingDim = 128

// HNSW index parameters for the in-memory gallery index
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16
)
