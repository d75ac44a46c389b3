// Package main 是应用程序的入口点。
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"pdf-chat-go/internal/config"
	"pdf-chat-go/internal/index"
	"pdf-chat-go/internal/loader"
	"pdf-chat-go/internal/model"
	"pdf-chat-go/internal/pipeline"
	"pdf-chat-go/internal/repository"
	"pdf-chat-go/internal/service"
	"pdf-chat-go/internal/watcher"
	"pdf-chat-go/pkg/database"
	"pdf-chat-go/pkg/embedding"
	"pdf-chat-go/pkg/es"
	"pdf-chat-go/pkg/kafka"
	"pdf-chat-go/pkg/llm"
	"pdf-chat-go/pkg/log"
	"pdf-chat-go/pkg/pdf"
	"pdf-chat-go/pkg/storage"
	"pdf-chat-go/pkg/tasks"
	"pdf-chat-go/pkg/tika"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 按配置初始化外部依赖（均可单独关闭，关闭后走进程内路径）
	var docRepo repository.DocumentRepository
	var chunkRepo repository.ChunkRepository
	if cfg.Database.MySQL.Enabled {
		database.InitMySQL(cfg.Database.MySQL.DSN)
		docRepo = repository.NewDocumentRepository(database.DB)
		chunkRepo = repository.NewChunkRepository(database.DB)
	}

	var conversationRepo repository.ConversationRepository
	if cfg.Database.Redis.Enabled {
		database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		conversationRepo = repository.NewConversationRepository(database.RDB)
	}

	if cfg.MinIO.Enabled {
		storage.InitMinIO(cfg.MinIO)
	}

	if cfg.Elasticsearch.Enabled {
		if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
			log.Errorf("es 初始化失败 %s", err)
			return
		}
	}

	if cfg.Kafka.Enabled {
		kafka.InitProducer(cfg.Kafka)
	}

	// 4. 构建提取器链：本地解析优先，Tika 作为兜底
	pdfExtractor := pdf.NewExtractor()
	var fallback loader.Extractor
	var pipelineFallback pipeline.Extractor
	if cfg.Tika.Enabled {
		tikaClient := tika.NewClient(cfg.Tika)
		fallback = tikaFallback{tikaClient}
		pipelineFallback = tikaFallback{tikaClient}
	}

	// 5. 构建检索后端：默认进程内索引，启用 ES 后走混合检索
	memoryIndex := index.NewMemoryIndex(cfg.Loader.ChunkSize, cfg.Loader.ChunkOverlap)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	var retriever service.Retriever = memoryIndex
	if cfg.Elasticsearch.Enabled {
		retriever = service.NewSearchService(embeddingClient, es.ESClient, cfg.Elasticsearch)
	}

	// 6. 组装 Loader：旁路依赖按启用状态注入
	deps := loader.Deps{Fallback: fallback}
	if cfg.Kafka.Enabled {
		deps.Publish = func(task tasks.DocumentTask) error {
			return kafka.ProduceDocumentTask(task)
		}
	}
	if cfg.MinIO.Enabled {
		deps.Archive = func(ctx context.Context, doc model.Document) error {
			return storage.ArchiveFile(ctx, cfg.MinIO.BucketName, doc.FileMD5, doc.Title, doc.Path)
		}
	}
	if docRepo != nil {
		deps.Record = func(ctx context.Context, doc model.Document) error {
			return docRepo.Upsert(&model.PDFDocument{
				FileMD5:  doc.FileMD5,
				FileName: doc.Title,
				FilePath: doc.Path,
				FileSize: doc.Size,
				Status:   model.DocumentStatusPending,
			})
		}
	}
	deps.OnRemove = func(ctx context.Context, fileMD5 string) error {
		if cfg.Elasticsearch.Enabled {
			if err := es.DeleteChunksByFileMD5(ctx, cfg.Elasticsearch.IndexName, fileMD5); err != nil {
				log.Warnf("清理 ES 索引条目失败, FileMD5: %s, err=%v", fileMD5, err)
			}
		}
		if docRepo != nil {
			return docRepo.DeleteByMD5(fileMD5)
		}
		return nil
	}

	docLoader := loader.New(cfg.Loader, pdfExtractor, memoryIndex, deps)

	// 7. 组装问答服务
	var llmClient llm.Client
	if cfg.LLM.Enabled {
		llmClient = llm.NewClient(cfg.LLM)
	}
	chatService := service.NewChatService(retriever, llmClient, conversationRepo, cfg.LLM.Prompt)
	documentService := service.NewDocumentService(docLoader.Library(), cfg.MinIO)

	var conversationService service.ConversationService
	sessionID := uuid.NewString()
	if conversationRepo != nil {
		conversationService = service.NewConversationService(conversationRepo)
		sessionID = conversationService.NewSession()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 8. 初始扫描：启动时一次性加载知识库文件夹
	log.Infof("[Loader] 开始初始扫描: %s", cfg.Loader.FolderPath)
	if err := docLoader.Scan(ctx); err != nil {
		log.Errorf("[Loader] 初始扫描失败: %s", err)
		return
	}
	log.Infof("[Loader] 初始扫描完成, 已加载文档数: %d", docLoader.Library().Len())

	// 9. 启动 Kafka 消费者（异步分块/向量化/索引管道）
	if cfg.Kafka.Enabled {
		processor := pipeline.NewProcessor(
			pdfExtractor,
			pipelineFallback,
			embeddingClient,
			cfg.Elasticsearch,
			cfg.Embedding,
			cfg.Loader,
			docRepo,
			chunkRepo,
		)
		go kafka.StartConsumer(cfg.Kafka, processor)
	}

	// 10. 启动文件夹监听（可选）
	var wg sync.WaitGroup
	if cfg.Loader.Watch {
		w, err := watcher.New(cfg.Loader.FolderPath, cfg.Loader.Extensions, func(ctx context.Context) {
			if err := docLoader.Scan(ctx); err != nil {
				log.Errorf("[Loader] 重新扫描失败: %s", err)
			} else {
				log.Infof("[Loader] 重新扫描完成, 当前文档数: %d", docLoader.Library().Len())
			}
		})
		if err != nil {
			log.Errorf("[Watcher] 创建监听器失败: %s", err)
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil && err != context.Canceled {
				log.Errorf("[Watcher] 监听退出: %s", err)
			}
		}()
	}

	// 11. 启动控制台问答循环
	go runConsole(ctx, chatService, documentService, conversationService, sessionID)

	// 12. 等待退出信号并优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("收到退出信号，正在关闭...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn("等待后台协程退出超时")
	}
	log.Info("服务已退出")
}

// runConsole 从标准输入读取问题并把回答流式写到标准输出。
// 支持的命令：:docs 列出已加载的文档，:history 查看会话历史，:new 开启新会话。
func runConsole(ctx context.Context, chatSvc service.ChatService, docSvc service.DocumentService, convSvc service.ConversationService, sessionID string) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Println("知识库已就绪，输入问题开始提问（:docs 查看文档，:history 会话历史，:new 新会话）")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line {
		case ":docs":
			for _, doc := range docSvc.ListDocuments() {
				fmt.Printf("  %s  (%d bytes)\n", doc.Title, doc.Size)
			}
			continue
		case ":history":
			if convSvc == nil {
				fmt.Println("未启用 Redis，会话历史不可用")
				continue
			}
			history, err := convSvc.GetConversationHistory(ctx, sessionID)
			if err != nil {
				log.Errorf("[Chat] 读取会话历史失败: %s", err)
				continue
			}
			for _, msg := range history {
				fmt.Printf("  [%s] %s\n", msg.Role, msg.Content)
			}
			continue
		case ":new":
			if convSvc != nil {
				sessionID = convSvc.NewSession()
			} else {
				sessionID = uuid.NewString()
			}
			fmt.Println("已开启新会话")
			continue
		}

		if err := chatSvc.StreamAnswer(ctx, sessionID, line, os.Stdout); err != nil {
			log.Errorf("[Chat] 回答失败: %s", err)
			fmt.Println("回答失败，请稍后重试")
			continue
		}
		fmt.Println()
	}
}

// tikaFallback 将 Tika 客户端适配为按路径提取的接口。
type tikaFallback struct {
	client *tika.Client
}

func (t tikaFallback) ExtractText(path string) (string, error) {
	return t.client.ExtractFile(path)
}
