// Command sheetsense turns natural-language requests into spreadsheet edits.
package main

import "github.com/klytics/sheetsense/cmd"

func main() {
	cmd.Execute()
}
