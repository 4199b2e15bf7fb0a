// Command ai is the operator-facing client for the memoryd daemon: a
// thin Unix-socket RPC caller, never a second implementation of the
// daemon's logic.
package main

func main() {
	Execute()
}
