package main

import "TrackHound/cmd"

func main() {
	cmd.Execute()
}
