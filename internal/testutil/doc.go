// Package testutil holds deterministic collaborators shared by package tests.
package testutil
