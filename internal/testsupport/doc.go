// Package testsupport builds synthetic containers for tests: real
// encrypted regions, real compressed blocks, and matching file tables,
// assembled the same way the packaging tool lays them out.
package testsupport
