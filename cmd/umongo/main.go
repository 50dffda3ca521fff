// Package main is the entry point for the umongo document server.
package main

func main() {
	Execute()
}
