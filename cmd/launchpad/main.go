// Package main is the entry point for launchpad, the container startup
// sequencer for the anime-platform backend: it waits for backing services,
// applies schema migrations, then hands off to the application server.
package main

func main() {
	Execute()
}
