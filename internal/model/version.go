package model

// PipelineVersion is the wro pipeline version. It is folded into key
// hashes so an upgrade never serves artifacts persisted by an older one.
const PipelineVersion = "0.1.0"
