// Command facectl administers a facelog deployment: schema migration,
// lookups against the detection log and the one-off legacy MySQL import.
package main

func main() {
	Execute()
}
