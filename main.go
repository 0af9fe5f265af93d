// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/invowk/lazyload/cmd/lazyload"

func main() {
	cmd.Execute()
}
