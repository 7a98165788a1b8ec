// Package cstore provides a collection/key store on top of the eKV database core.
//
// Values are addressed by a collection name and a non-empty key. Collections exist
// implicitly as long as they contain at least one key and are enumerated in ascending
// order. Extensions registered on a cstore receive the collection of every mutation.
package cstore
