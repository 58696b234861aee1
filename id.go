package ballot

import "github.com/xraph/ballot/id"

// ID is the identifier type for ballot receipts.
type ID = id.ID

// Prefix identifies the receipt kind encoded in a TypeID.
type Prefix = id.Prefix
