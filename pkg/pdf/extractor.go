// Package pdf 提供了本地 PDF 文本提取功能。
package pdf

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"pdf-chat-go/pkg/log"
)

// Extractor 基于 ledongthuc/pdf 逐页提取 PDF 的纯文本。
type Extractor struct{}

// NewExtractor 创建一个新的本地 PDF 提取器实例。
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractText 打开指定路径的 PDF 并拼接所有页面的文本。
// 单页提取失败只记录告警并跳过该页；扫描件等无文本内容的文件返回空字符串。
func (e *Extractor) ExtractText(path string) (text string, err error) {
	// pdf 库在遇到畸形文件时可能 panic，这里兜住并转为 error
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("解析 PDF 时发生 panic: %v", r)
		}
	}()

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("打开 PDF 失败: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("读取文件信息失败: %w", err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return "", fmt.Errorf("创建 PDF reader 失败: %w", err)
	}

	var textBuilder strings.Builder
	pageCount := reader.NumPage()
	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, pErr := page.GetPlainText(nil)
		if pErr != nil {
			log.Warnf("[PDFExtractor] 第 %d 页文本提取失败, 跳过: %v", i, pErr)
			continue
		}
		if pageText == "" {
			continue
		}
		textBuilder.WriteString(pageText)
		textBuilder.WriteString("\n")
	}

	return strings.TrimSpace(textBuilder.String()), nil
}
