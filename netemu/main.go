// Command netemu runs emulated networks of hosts and learning switches.
package main

import "github.com/sarchlab/netemu/netemu/cmd"

func main() {
	cmd.Execute()
}
