// The main package for the redharvest executable.
package main

import "github.com/sugetang/redharvest/cmd"

func main() {
	cmd.Execute()
}
