// CropCare CLI entry point
//
// CropCare diagnoses crop diseases from photos, streams answers from a
// farming assistant and keeps working offline, syncing when the
// connection returns.
package main

import "github.com/jbctechsolutions/cropcare/internal/presentation/cli/commands"

func main() {
	commands.Execute()
}
