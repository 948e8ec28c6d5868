// Package main hosts the licenses CLI.
//
// The Cobra command tree loads configuration, builds the reference corpus and
// drives the engine over dependency files, then prints the inventory as JSON
// or a table. Supporting commands sync the corpus from the SPDX license list,
// manage manual overrides and browse the run history kept in the store.
package main
