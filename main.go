package main

import (
	"github.com/faiface/pixel/pixelgl"

	"chip8/cmd"
)

func main() {
	// pixelgl needs the main OS thread; everything else runs under it
	pixelgl.Run(run)
}

func run() {
	cmd.Execute()
}
