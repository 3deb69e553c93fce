// Package fileindex decodes FileIndex.xml, the table that maps every
// embedded file to its block chain in the packed region. Decoding
// validates the whole table up front: byte ranges must fit the packed
// region, names must be safe relative paths, and duplicates are rejected.
package fileindex
