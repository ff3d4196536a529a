// Command parcelctl runs the carrier invoice pipelines from the command
// line. It loads FedEx and UPS invoice files, extracts their charge
// categories and writes the same reports the web UI serves, with no
// browser in the loop.
package main

func main() {
	Execute()
}
