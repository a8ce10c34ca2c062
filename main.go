package main

import "github.com/Taichi-iskw/ytscribe/cmd"

func main() {
	cmd.Execute()
}
