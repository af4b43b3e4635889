package swagger

import _ "embed"

// OpenAPI is the worthrank HTTP API description.
//
//go:embed openapi.yaml
var OpenAPI []byte
