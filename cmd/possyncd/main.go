package main

import "bistrosync/cmd/possyncd/cmd"

func main() {
	cmd.Execute()
}
