// Command gsd normalizes yearly gas sendout report workbooks into one long
// table.
package main

import "github.com/klytics/gsdkit/cmd"

func main() {
	cmd.Execute()
}
