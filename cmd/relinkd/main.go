// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import "github.com/ManuGH/relinkd/cmd/relinkd/commands"

func main() {
	commands.Execute()
}
