// Package testutil provides an isolated in-memory database and fixtures for tests.
package testutil
