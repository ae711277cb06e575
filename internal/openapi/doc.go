package openapi

import "github.com/codalotl/skilleval/internal/ordered"

// Object is a decoded spec mapping with keys in document order.
type Object = ordered.Object

// maxDepth bounds composition and $ref chains.
const maxDepth = ordered.MaxDepth

func truthy(v any) bool { return ordered.Truthy(v) }
