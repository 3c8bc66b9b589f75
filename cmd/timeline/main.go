/*
main.go - Application entry point

PURPOSE:
  Command-line front end for the timeline engine. Subcommands run the HTTP
  server, print the effective configuration, and dump a day from the
  database.

COMMANDS:
  serve         Start the HTTP API and the midnight rollover scheduler
  config show   Print the merged configuration as YAML
  day [date]    Print a day's slices and totals (default: today)

CONFIGURATION:
  --config points at an optional YAML file. Every key can be overridden
  from the environment with the TIMELINE_ prefix, e.g.
  TIMELINE_SERVER_PORT=3000.

EXAMPLES:
  # Run with file database
  timeline serve --db ./data/timeline.db

  # Run with in-memory database
  timeline serve --db :memory:

  # Inspect yesterday
  timeline day 2026-10-16

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
*/
package main

import "os"

var version = "dev"

func main() {
	if err := Execute(version); err != nil {
		os.Exit(1)
	}
}
