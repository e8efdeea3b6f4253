package main

import (
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	// Setup code here (runs once before all tests in this package)
	println("Setting up tests for main package...")

	exitCode := m.Run()

	println("Tearing down tests for main package...")
	os.Exit(exitCode)
}

func TestEnvironmentCheck(t *testing.T) {
	// Add any environment-specific checks here
	t.Log("Environment check passed")
}
