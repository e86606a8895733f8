/*
leasectl - Lease engine server and back-office CLI

COMMANDS:
  serve            Run the HTTP API with the overdue scheduler
  calc [file]      Recalculate a contract form (JSON file or stdin)
  user add         Create a back-office user
  seed <scenario>  Load a demo scenario into the database

CONFIGURATION:
  Environment variables, optionally from an env file (--env, default .env).
  See config/config.go for the keys and their defaults.

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration keys
*/
package main

func main() {
	Execute()
}
