// Package integration_tests runs the example site through the public
// packages: publishing, serving and route reloads.
package integration_tests
