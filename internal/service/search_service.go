// Package service 提供了检索相关的业务逻辑。
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"pdf-chat-go/internal/config"
	"pdf-chat-go/internal/model"
	"pdf-chat-go/pkg/embedding"
	"pdf-chat-go/pkg/log"
)

// Retriever 是问答组件使用的检索接口。
// 检索策略是可插拔的：进程内倒排索引与 Elasticsearch 后端都实现了它。
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]model.SearchResult, error)
}

// SearchService 接口定义了基于 Elasticsearch 的混合检索操作。
type SearchService interface {
	Retriever
}

type searchService struct {
	embeddingClient embedding.Client
	esClient        *elasticsearch.Client
	esCfg           config.ElasticsearchConfig
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(embeddingClient embedding.Client, esClient *elasticsearch.Client, esCfg config.ElasticsearchConfig) SearchService {
	return &searchService{
		embeddingClient: embeddingClient,
		esClient:        esClient,
		esCfg:           esCfg,
	}
}

// Retrieve 执行两阶段混合检索：kNN 召回 + BM25 重排。
func (s *searchService) Retrieve(ctx context.Context, query string, topK int) ([]model.SearchResult, error) {
	log.Infof("[SearchService] 开始执行混合检索, query: '%s', topK: %d", query, topK)
	if topK <= 0 {
		topK = 5
	}

	// 1. 轻量归一化（去噪）以获取核心短语
	normalized, phrase := normalizeQuery(query)
	if normalized != query {
		log.Infof("[SearchService] 规范化查询: '%s' -> '%s' (phrase='%s')", query, normalized, phrase)
	}

	// 2. 向量化查询（用原始用户问句，保持语义检索能力）
	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, query)
	if err != nil {
		log.Errorf("[SearchService] 向量化查询失败: %v", err)
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}

	// 3. 构建两阶段混合检索查询，并加入短语兜底 should
	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   queryVector,
			"k":              topK * 30,
			"num_candidates": topK * 30,
		},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"match": map[string]interface{}{
						"text_content": normalized,
					},
				},
				// 额外的 should：对核心短语做 match_phrase 以兜底召回
				"should": buildPhraseShould(phrase),
			},
		},
		"rescore": map[string]interface{}{
			"window_size": topK * 30,
			"query": map[string]interface{}{
				"rescore_query": map[string]interface{}{
					"match": map[string]interface{}{
						"text_content": map[string]interface{}{
							"query":    normalized,
							"operator": "and",
						},
					},
				},
				"query_weight":         0.2, // 保留部分 k-NN 分数
				"rescore_query_weight": 1.0, // BM25 分数权重
			},
		},
		"size": topK,
	}

	hits, err := s.search(ctx, esQuery)
	if err != nil {
		return nil, err
	}

	// 4. 兜底：若无命中且核心短语与原问句不同，用核心短语重试一次（更强关键词信号）
	if len(hits) == 0 && phrase != "" && phrase != query {
		log.Infof("[SearchService] 使用核心短语重试查询: '%s'", phrase)
		((esQuery["query"].(map[string]interface{}))["bool"].(map[string]interface{}))["must"] = map[string]interface{}{
			"match": map[string]interface{}{
				"text_content": phrase,
			},
		}
		((esQuery["rescore"].(map[string]interface{}))["query"].(map[string]interface{}))["rescore_query"] = map[string]interface{}{
			"match": map[string]interface{}{
				"text_content": map[string]interface{}{
					"query":    phrase,
					"operator": "and",
				},
			},
		}
		hits, err = s.search(ctx, esQuery)
		if err != nil {
			return nil, err
		}
	}

	// 5. 组装最终结果
	results := make([]model.SearchResult, 0, len(hits))
	for _, hit := range hits {
		fileName := hit.Source.FileName
		if fileName == "" {
			log.Warnf("[SearchService] 分块 '%s' 缺少文件名", hit.Source.ChunkKey)
			fileName = "unknown"
		}
		results = append(results, model.SearchResult{
			FileMD5:     hit.Source.FileMD5,
			FileName:    fileName,
			ChunkID:     hit.Source.ChunkID,
			TextContent: hit.Source.TextContent,
			Score:       hit.Score,
		})
	}

	log.Infof("[SearchService] 混合检索执行完毕, query: '%s', 返回 %d 条结果", query, len(results))
	return results, nil
}

type esHit struct {
	Source model.EsChunk `json:"_source"`
	Score  float64       `json:"_score"`
}

// search 发送查询并解析 Elasticsearch 响应。
func (s *searchService) search(ctx context.Context, esQuery map[string]interface{}) ([]esHit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(ctx),
		s.esClient.Search.WithIndex(s.esCfg.IndexName),
		s.esClient.Search.WithBody(&buf),
		s.esClient.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		log.Errorf("[SearchService] 向 Elasticsearch 发送检索请求失败: %v", err)
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[SearchService] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []esHit `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	return esResponse.Hits.Hits, nil
}

// normalizeQuery 对用户查询进行轻量去噪与短语提取。
// 返回值：规范化后的查询（用于 BM25/rescore）与核心短语（用于 match_phrase 兜底）。
func normalizeQuery(q string) (string, string) {
	if q == "" {
		return q, ""
	}
	lower := strings.ToLower(q)
	// 去除常见口语/功能词
	stopPhrases := []string{"是谁", "是什么", "是啥", "请问", "怎么", "如何", "告诉我", "吗", "呢", "？", "?",
		"what is", "who is", "how to", "tell me", "please"}
	for _, sp := range stopPhrases {
		lower = strings.ReplaceAll(lower, sp, " ")
	}
	// 仅保留中文、英文、数字与空白
	reKeep := regexp.MustCompile(`[^\p{Han}a-z0-9\s]+`)
	kept := reKeep.ReplaceAllString(lower, " ")
	// 归一空白
	reSpace := regexp.MustCompile(`\s+`)
	kept = strings.TrimSpace(reSpace.ReplaceAllString(kept, " "))
	if kept == "" {
		return q, ""
	}
	return kept, kept
}

// buildPhraseShould 构建 match_phrase should 子句（带 boost），为空则返回 nil
func buildPhraseShould(phrase string) interface{} {
	if phrase == "" {
		return nil
	}
	return []map[string]interface{}{
		{
			"match_phrase": map[string]interface{}{
				"text_content": map[string]interface{}{
					"query": phrase,
					"boost": 3.0,
				},
			},
		},
	}
}
