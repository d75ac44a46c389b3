// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode"

	"pdf-chat-go/internal/config"
	"pdf-chat-go/internal/model"
	"pdf-chat-go/internal/repository"
	"pdf-chat-go/pkg/llm"
	"pdf-chat-go/pkg/log"
)

// ChatService 定义了基于知识库的问答操作。
type ChatService interface {
	// Ask 对用户问题做检索并生成回答（抽取式，除非配置了 LLM）。
	Ask(ctx context.Context, sessionID, question string) (*model.ChatAnswer, error)
	// StreamAnswer 将回答流式写入 writer，由下游消费方决定输出的去向。
	StreamAnswer(ctx context.Context, sessionID, question string, writer io.Writer) error
}

type chatService struct {
	retriever        Retriever
	llmClient        llm.Client                        // 可为 nil，此时使用抽取式回答
	conversationRepo repository.ConversationRepository // 可为 nil，此时不保存历史
	promptCfg        config.LLMPromptConfig
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(retriever Retriever, llmClient llm.Client, conversationRepo repository.ConversationRepository, promptCfg config.LLMPromptConfig) ChatService {
	return &chatService{
		retriever:        retriever,
		llmClient:        llmClient,
		conversationRepo: conversationRepo,
		promptCfg:        promptCfg,
	}
}

// Ask 协调检索与回答生成，并保存对话历史。
func (s *chatService) Ask(ctx context.Context, sessionID, question string) (*model.ChatAnswer, error) {
	// 1. 检索上下文（提升覆盖度：topK=10）
	results, err := s.retriever.Retrieve(ctx, question, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	// 2. 生成回答
	var answer string
	if s.llmClient != nil {
		var sb strings.Builder
		if err := s.streamLLMAnswer(ctx, sessionID, question, results, &sb); err != nil {
			return nil, err
		}
		answer = sb.String()
	} else {
		answer = s.buildExtractiveAnswer(question, results)
	}

	// 3. 保存对话历史
	s.saveHistory(sessionID, question, answer)

	return &model.ChatAnswer{
		Question: question,
		Answer:   answer,
		Sources:  results,
	}, nil
}

// StreamAnswer 协调检索流程并将回答流式写入 writer。
func (s *chatService) StreamAnswer(ctx context.Context, sessionID, question string, writer io.Writer) error {
	results, err := s.retriever.Retrieve(ctx, question, 10)
	if err != nil {
		return fmt.Errorf("failed to retrieve context: %w", err)
	}

	if s.llmClient == nil {
		// 没有配置 LLM 时退化为一次性写入抽取式回答
		answer := s.buildExtractiveAnswer(question, results)
		if _, err := writer.Write([]byte(answer)); err != nil {
			return err
		}
		s.saveHistory(sessionID, question, answer)
		return nil
	}

	answerBuilder := &strings.Builder{}
	tee := io.MultiWriter(writer, answerBuilder)
	if err := s.streamLLMAnswer(ctx, sessionID, question, results, tee); err != nil {
		return err
	}
	s.saveHistory(sessionID, question, answerBuilder.String())
	return nil
}

// streamLLMAnswer 构建上下文与消息序列并调用 LLM 客户端流式生成。
func (s *chatService) streamLLMAnswer(ctx context.Context, sessionID, question string, results []model.SearchResult, writer io.Writer) error {
	contextText := s.buildContextText(results)
	systemMsg := s.buildSystemMessage(contextText)

	var history []model.ChatMessage
	if s.conversationRepo != nil {
		var err error
		history, err = s.conversationRepo.GetHistory(ctx, sessionID)
		if err != nil {
			log.Errorf("Failed to load conversation history: %v", err)
			history = []model.ChatMessage{}
		}
	}

	messages := s.composeMessages(systemMsg, history, question)
	var llmMsgs []llm.Message
	for _, m := range messages {
		llmMsgs = append(llmMsgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	return s.llmClient.StreamChatMessages(ctx, llmMsgs, s.buildGenerationParams(), writer)
}

// saveHistory 将一轮问答追加到会话历史；失败只记录错误。
func (s *chatService) saveHistory(sessionID, question, answer string) {
	if s.conversationRepo == nil || answer == "" {
		return
	}
	// 使用后台上下文：即使原始请求被取消，也希望保存成功生成的答案
	ctx := context.Background()
	history, err := s.conversationRepo.GetHistory(ctx, sessionID)
	if err != nil {
		log.Errorf("Failed to load conversation history: %v", err)
		return
	}
	now := time.Now()
	history = append(history,
		model.ChatMessage{Role: "user", Content: question, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: answer, Timestamp: now},
	)
	if err := s.conversationRepo.UpdateHistory(ctx, sessionID, history); err != nil {
		log.Errorf("Failed to save conversation history: %v", err)
	}
}

// buildExtractiveAnswer 从检索结果中抽取与问题词项重合度最高的句子拼成回答。
// 没有任何句子命中时，退化为返回最相关分块的开头内容。
func (s *chatService) buildExtractiveAnswer(question string, results []model.SearchResult) string {
	if len(results) == 0 {
		return "I couldn't find anything about that in the knowledge base."
	}

	questionTerms := extractQuestionTerms(question)

	type scoredSentence struct {
		text  string
		score int
	}
	var candidates []scoredSentence
	for _, r := range results {
		for _, sentence := range splitSentences(r.TextContent) {
			if len(sentence) <= 20 { // 忽略过短的句子
				continue
			}
			lower := strings.ToLower(sentence)
			score := 0
			for _, term := range questionTerms {
				if strings.Contains(lower, term) {
					score++
				}
			}
			if score > 0 {
				candidates = append(candidates, scoredSentence{text: sentence, score: score})
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) > 0 {
		top := candidates
		if len(top) > 3 {
			top = top[:3]
		}
		var sb strings.Builder
		sb.WriteString("Based on the documents, here's what I found:\n\n")
		for i, c := range top {
			if i > 0 {
				sb.WriteString(". ")
			}
			sb.WriteString(c.text)
		}
		answer := sb.String()
		if !strings.HasSuffix(answer, ".") {
			answer += "."
		}
		return answer
	}

	// 兜底：返回最相关分块的开头几句
	leading := splitSentences(results[0].TextContent)
	if len(leading) > 3 {
		leading = leading[:3]
	}
	return "I couldn't find specific information about your question, but here's some related content from the documents:\n\n" +
		strings.Join(leading, ". ")
}

// buildContextText 根据检索结果构建带来源标注的上下文文本。
func (s *chatService) buildContextText(searchResults []model.SearchResult) string {
	if len(searchResults) == 0 {
		return ""
	}
	// 与分块大小对齐，尽量不截断分块内容
	const maxSnippetLen = 1000
	var contextBuilder strings.Builder
	for i, r := range searchResults {
		snippet := r.TextContent
		if len(snippet) > maxSnippetLen {
			snippet = snippet[:maxSnippetLen] + "…"
		}
		fileLabel := r.FileName
		if fileLabel == "" {
			fileLabel = "unknown"
		}
		contextBuilder.WriteString(fmt.Sprintf("[%d] (%s) %s\n", i+1, fileLabel, snippet))
	}
	return contextBuilder.String()
}

// buildSystemMessage 从配置读取规则与包裹符，组装 system 消息。
func (s *chatService) buildSystemMessage(contextText string) string {
	refStart := s.promptCfg.RefStart
	if refStart == "" {
		refStart = "<<REF>>"
	}
	refEnd := s.promptCfg.RefEnd
	if refEnd == "" {
		refEnd = "<<END>>"
	}

	var sys strings.Builder
	if s.promptCfg.Rules != "" {
		sys.WriteString(s.promptCfg.Rules)
		sys.WriteString("\n\n")
	}
	sys.WriteString(refStart)
	sys.WriteString("\n")
	if contextText != "" {
		sys.WriteString(contextText)
	} else {
		noRes := s.promptCfg.NoResultText
		if noRes == "" {
			noRes = "(no retrieval results this round)"
		}
		sys.WriteString(noRes)
		sys.WriteString("\n")
	}
	sys.WriteString(refEnd)
	return sys.String()
}

func (s *chatService) composeMessages(systemMsg string, history []model.ChatMessage, userInput string) []model.ChatMessage {
	msgs := make([]model.ChatMessage, 0, len(history)+2)
	msgs = append(msgs, model.ChatMessage{Role: "system", Content: systemMsg})
	msgs = append(msgs, history...)
	msgs = append(msgs, model.ChatMessage{Role: "user", Content: userInput})
	return msgs
}

func (s *chatService) buildGenerationParams() *llm.GenerationParams {
	var gp llm.GenerationParams
	if config.Conf.LLM.Generation.Temperature != 0 {
		t := config.Conf.LLM.Generation.Temperature
		gp.Temperature = &t
	}
	if config.Conf.LLM.Generation.TopP != 0 {
		p := config.Conf.LLM.Generation.TopP
		gp.TopP = &p
	}
	if config.Conf.LLM.Generation.MaxTokens != 0 {
		m := config.Conf.LLM.Generation.MaxTokens
		gp.MaxTokens = &m
	}
	if gp.Temperature == nil && gp.TopP == nil && gp.MaxTokens == nil {
		return nil
	}
	return &gp
}

// extractQuestionTerms 提取问题中的有效词项（长度大于 2 的词）。
func extractQuestionTerms(question string) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var terms []string
	for _, f := range fields {
		if len([]rune(f)) > 2 {
			terms = append(terms, f)
		}
	}
	return terms
}

// splitSentences 将文本按句号与换行粗切成句子。
func splitSentences(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '\n' || r == '。'
	})
	var sentences []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
