// Command ntpidump extracts NTPI firmware containers: it walks the
// region chain, materializes the manifests into a staging workspace, and
// decompresses every packed file in parallel into an output directory.
package main
