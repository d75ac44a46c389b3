package model

// SearchResult 定义了检索返回给下游问答组件的结果结构。
type SearchResult struct {
	FileMD5     string  `json:"fileMd5"`
	FileName    string  `json:"fileName"`
	ChunkID     int     `json:"chunkId"`
	TextContent string  `json:"textContent"`
	Score       float64 `json:"score"`
}

// EsChunk 定义了存储在 Elasticsearch 中的分块文档结构。
type EsChunk struct {
	ChunkKey     string    `json:"chunk_key"` // 唯一标识，fileMd5 + chunkId
	FileMD5      string    `json:"file_md5"`
	FileName     string    `json:"file_name"`
	ChunkID      int       `json:"chunk_id"`
	TextContent  string    `json:"text_content"`
	Vector       []float32 `json:"vector"` // 文本内容的向量表示
	ModelVersion string    `json:"model_version"`
}
