// Package csvio reads and writes the job's CSV files: the per-query
// intermediate retrieval files, the fused master list, the distance threshold
// export and the store summary.
//
// Every write goes to a temporary file in the target directory that is renamed
// into place once complete, so a failed run never leaves a partial file.
package csvio
