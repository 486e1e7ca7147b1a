package main

import (
	"encoding/json"
	"fmt"
)

// writeJSON prints a report as indented JSON on stdout. Report maps
// are allocated by the mode that fills them, so no nil normalization
// is needed here.
func writeJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
