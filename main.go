// Copyright (c) 2025 The blockidx developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package main

import "github.com/blockidx/blockidxd/cmd"

func main() {
	cmd.Execute()
}
