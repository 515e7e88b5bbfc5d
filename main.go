package main

import (
	"github.com/ColonelBlimp/fxprobe/cmd"
	"github.com/ColonelBlimp/fxprobe/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
