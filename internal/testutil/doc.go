// Package testutil contains helpers shared by tests across packages:
// a lifecycle event recorder and small handler builders. They are not
// intended for production usage.
package testutil
