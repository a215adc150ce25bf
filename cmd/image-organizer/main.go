package main

import "go-image-organizer/cmd/image-organizer/cmd"

func main() {
	cmd.Execute()
}
