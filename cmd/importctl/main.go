// Command importctl maps, previews and commits fleet imports from the
// command line using the same pipeline as the HTTP server.
package main

func main() {
	execute()
}
