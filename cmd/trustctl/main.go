package main

import "go.pilab.hu/trustgate/cmd/trustctl/cmd"

func main() {
	cmd.Execute()
}
