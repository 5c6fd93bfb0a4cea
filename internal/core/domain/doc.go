// Package domain defines the core entities of the distillyzer knowledge base.
//
// This package is the innermost layer of the hexagonal architecture.
// It has NO external dependencies and defines the fundamental types:
//
//   - Source: A harvested origin (YouTube channel, GitHub repository, website)
//   - Item: One harvested unit (a video, a code file, an article)
//   - Chunk: A bounded, embeddable slice of an Item with its Provenance
//   - SearchHit / Answer: Results of the read path
//   - Settings: Process-wide configuration built once at startup
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
