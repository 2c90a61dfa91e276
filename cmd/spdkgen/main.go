package main

import "github.com/goplus/spdkgen/cmd/spdkgen/internal"

func main() {
	internal.Execute()
}
