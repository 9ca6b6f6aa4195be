package constant

// Retrieval and conversation defaults. Runtime values come from config;
// these are the floors and fallbacks the services enforce.
const (
	// DefaultTopK is the number of chunks grounded into the answer prompt
	// when the request does not override it.
	DefaultTopK = 3

	// MinTopK is the lowest k a caller may request.
	MinTopK = 1

	// DefaultHistoryWindow is how many recent turns the session cache keeps.
	DefaultHistoryWindow = 20

	// HistoryPromptLimit caps the turns sent to the model for rewriting
	// and answering.
	HistoryPromptLimit = 10

	// TitleWordCount is how many leading words of the first message become
	// the title of an implicitly created chat.
	TitleWordCount = 8
)

const (
	// Ingestion chunking parameters.
	ChunkSize    = 1000
	ChunkOverlap = 200
)

// Embedding task types, matching the Gemini task taxonomy. The Ollama
// provider ignores them.
const (
	TaskTypeRetrievalQuery    = "RETRIEVAL_QUERY"
	TaskTypeRetrievalDocument = "RETRIEVAL_DOCUMENT"
)
