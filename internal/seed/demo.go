package seed

import (
	"bytes"
	_ "embed"
)

//go:embed demo.yaml
var demoCatalog []byte

// Demo returns the built-in demonstration catalog.
func Demo() (*Catalog, error) {
	return Parse(bytes.NewReader(demoCatalog))
}
