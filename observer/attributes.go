package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for observability spans and metrics.
var (
	AttrLLMProvider = attribute.Key("llm.provider")
	AttrLLMMethod   = attribute.Key("llm.method")

	AttrStreamChunks = attribute.Key("llm.stream_chunks")

	AttrEmbedTextCount  = attribute.Key("llm.embed.text_count")
	AttrEmbedDimensions = attribute.Key("llm.embed.dimensions")

	AttrStoreOp    = attribute.Key("store.operation")
	AttrDocumentID = attribute.Key("document.id")

	AttrParentCount = attribute.Key("store.parent_count")
	AttrChildCount  = attribute.Key("store.child_count")
	AttrResultCount = attribute.Key("store.result_count")
)
