package model

// DocumentChunk 对应于数据库中的 document_chunks 表。
// 每行是某个文档切分后的一段文本，即索引条目的持久化形式。
type DocumentChunk struct {
	ChunkPK      uint   `gorm:"primaryKey;autoIncrement;column:chunk_pk"`
	FileMD5      string `gorm:"type:varchar(32);not null;index;column:file_md5"`
	ChunkID      int    `gorm:"not null;column:chunk_id"`
	TextContent  string `gorm:"type:text;column:text_content"`
	ModelVersion string `gorm:"type:varchar(50);column:model_version"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}
