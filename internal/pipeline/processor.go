// Package pipeline 定义了文档处理的核心流程：
// 提取文本 -> 分块 -> 入库 -> 向量化 -> 索引到 Elasticsearch。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"pdf-chat-go/internal/config"
	"pdf-chat-go/internal/model"
	"pdf-chat-go/internal/repository"
	"pdf-chat-go/pkg/embedding"
	"pdf-chat-go/pkg/es"
	"pdf-chat-go/pkg/log"
	"pdf-chat-go/pkg/tasks"
)

// Extractor 定义了从文件中提取纯文本的能力。
type Extractor interface {
	ExtractText(path string) (string, error)
}

// Processor 封装了文档处理的所有依赖和逻辑。
type Processor struct {
	extractor       Extractor
	fallback        Extractor
	embeddingClient embedding.Client
	esCfg           config.ElasticsearchConfig
	embeddingCfg    config.EmbeddingConfig
	loaderCfg       config.LoaderConfig
	docRepo         repository.DocumentRepository
	chunkRepo       repository.ChunkRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	extractor Extractor,
	fallback Extractor,
	embeddingClient embedding.Client,
	esCfg config.ElasticsearchConfig,
	embeddingCfg config.EmbeddingConfig,
	loaderCfg config.LoaderConfig,
	docRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
) *Processor {
	return &Processor{
		extractor:       extractor,
		fallback:        fallback,
		embeddingClient: embeddingClient,
		esCfg:           esCfg,
		embeddingCfg:    embeddingCfg,
		loaderCfg:       loaderCfg,
		docRepo:         docRepo,
		chunkRepo:       chunkRepo,
	}
}

// Process 是文档处理的主函数。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentTask) error {
	log.Infof("[Processor] 开始处理文档, FileMD5: %s, FileName: %s", task.FileMD5, task.FileName)

	err := p.process(ctx, task)
	if p.docRepo != nil {
		if err != nil {
			if sErr := p.docRepo.UpdateStatus(task.FileMD5, model.DocumentStatusFailed, err.Error()); sErr != nil {
				log.Warnf("[Processor] 更新文档失败状态出错, FileMD5: %s, err=%v", task.FileMD5, sErr)
			}
		} else {
			if sErr := p.docRepo.UpdateStatus(task.FileMD5, model.DocumentStatusProcessed, ""); sErr != nil {
				log.Warnf("[Processor] 更新文档完成状态出错, FileMD5: %s, err=%v", task.FileMD5, sErr)
			}
		}
	}
	return err
}

func (p *Processor) process(ctx context.Context, task tasks.DocumentTask) error {
	// 1. 提取文本
	log.Infof("[Processor] 步骤1: 提取文本内容, Path: %s", task.Path)
	textContent, err := p.extractor.ExtractText(task.Path)
	if (err != nil || strings.TrimSpace(textContent) == "") && p.fallback != nil {
		log.Warnf("[Processor] 本地提取失败或无文本, 使用兜底提取器, FileName: %s", task.FileName)
		textContent, err = p.fallback.ExtractText(task.Path)
	}
	if err != nil {
		log.Errorf("[Processor] 文本提取失败, FileName: %s, Error: %v", task.FileName, err)
		return fmt.Errorf("文本提取失败: %w", err)
	}
	if strings.TrimSpace(textContent) == "" {
		log.Warnf("[Processor] 提取的文本内容为空, 处理中止, FileName: %s", task.FileName)
		return errors.New("提取的文本内容为空")
	}
	log.Infof("[Processor] 步骤1: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(textContent))

	// 2. 文本切块
	chunkSize, chunkOverlap := p.loaderCfg.ChunkSize, p.loaderCfg.ChunkOverlap
	log.Infof("[Processor] 步骤2: 进行文本分块, chunkSize: %d, chunkOverlap: %d", chunkSize, chunkOverlap)
	chunks := p.splitText(textContent, chunkSize, chunkOverlap)
	log.Infof("[Processor] 步骤2: 文本分块完成, 共生成 %d 个分块", len(chunks))
	if len(chunks) == 0 {
		log.Warnf("[Processor] 未生成任何文本分块, 处理中止, FileName: %s", task.FileName)
		return errors.New("未生成任何文本分块")
	}

	// 阶段一：将分块文本和元数据存入数据库（未启用 MySQL 时跳过，直接用内存分块）
	dbChunks := make([]*model.DocumentChunk, 0, len(chunks))
	for i, chunk := range chunks {
		dbChunks = append(dbChunks, &model.DocumentChunk{
			FileMD5:      task.FileMD5,
			ChunkID:      i,
			TextContent:  chunk,
			ModelVersion: p.embeddingCfg.Model,
		})
	}
	savedChunks := dbChunks
	if p.chunkRepo != nil {
		log.Info("[Processor] 阶段一: 开始将分块文本存入数据库")
		// 为避免重复写入导致的累计膨胀，处理前先清理该文件既有的分块记录（幂等）
		if err := p.chunkRepo.DeleteByFileMD5(task.FileMD5); err != nil {
			log.Warnf("[Processor] 清理 document_chunks 旧记录失败 (file_md5=%s): %v", task.FileMD5, err)
		}
		if err := p.chunkRepo.BatchCreate(dbChunks); err != nil {
			log.Errorf("[Processor] 阶段一: 批量保存文本分块到数据库失败, Error: %v", err)
			return fmt.Errorf("批量保存文本分块失败: %w", err)
		}
		log.Infof("[Processor] 阶段一: 成功将 %d 个分块存入数据库", len(dbChunks))

		// 阶段二：从数据库读取，进行向量化，然后索引到ES
		log.Info("[Processor] 阶段二: 开始从数据库读取分块并进行向量化")
		var err error
		savedChunks, err = p.chunkRepo.FindByFileMD5(task.FileMD5)
		if err != nil {
			log.Errorf("[Processor] 阶段二: 从数据库读取分块失败, FileMD5: %s, Error: %v", task.FileMD5, err)
			return fmt.Errorf("从数据库读取分块失败: %w", err)
		}
	}

	// 3. 向量化并索引到 ES
	log.Info("[Processor] 步骤3: 开始遍历分块并进行向量化与索引")
	for i, dbChunk := range savedChunks {
		// 3a. 向量化
		vector, err := p.embeddingClient.CreateEmbedding(ctx, dbChunk.TextContent)
		if err != nil {
			log.Errorf("[Processor] 分块 %d 向量化失败, Error: %v", dbChunk.ChunkID, err)
			return fmt.Errorf("块 %d 向量化失败: %w", dbChunk.ChunkID, err)
		}

		// 3b. 准备 ES 的分块文档
		esChunk := model.EsChunk{
			ChunkKey:     fmt.Sprintf("%s_%d", dbChunk.FileMD5, dbChunk.ChunkID),
			FileMD5:      dbChunk.FileMD5,
			FileName:     task.FileName,
			ChunkID:      dbChunk.ChunkID,
			TextContent:  dbChunk.TextContent,
			Vector:       vector,
			ModelVersion: p.embeddingCfg.Model,
		}

		// 3c. 索引到 Elasticsearch
		if err := es.IndexChunk(ctx, p.esCfg.IndexName, esChunk); err != nil {
			log.Errorf("[Processor] 索引分块 %d 到Elasticsearch失败, Error: %v", dbChunk.ChunkID, err)
			return fmt.Errorf("索引块 %d 到 Elasticsearch 失败: %w", dbChunk.ChunkID, err)
		}
		log.Infof("[Processor] 分块 %d/%d 向量化并索引成功", i+1, len(savedChunks))
	}

	log.Infof("[Processor] 文档处理成功完成, FileMD5: %s", task.FileMD5)
	return nil
}

// splitText 将长文本按指定大小和重叠进行切分。
func (p *Processor) splitText(text string, chunkSize int, chunkOverlap int) []string {
	if chunkSize <= chunkOverlap {
		// overlap 不合法时退化为简单切分
		return p.simpleSplit(text, chunkSize)
	}

	var chunks []string
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := chunkSize - chunkOverlap
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func (p *Processor) simpleSplit(text string, chunkSize int) []string {
	var chunks []string
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
