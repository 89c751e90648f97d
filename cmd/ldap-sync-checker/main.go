// Package main is the entry point for ldap-sync-checker.
package main

import (
	"os"

	"github.com/stacklok/ldap-sync-checker/cmd/ldap-sync-checker/app"
)

func main() {
	os.Exit(app.Execute(os.Args[1:], os.Stdout))
}
