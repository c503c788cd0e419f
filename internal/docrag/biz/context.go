package biz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kart-io/docrag/internal/docrag/model"
)

// DefaultRelevanceThreshold 默认相关性阈值，距离大于该值的结果被丢弃。
const DefaultRelevanceThreshold = 1.5

// BuildContext 将向量检索结果转换为按相关性排序的上下文块。
// 缺失距离或距离超过阈值的结果被跳过；距离为 0 视为完全匹配并保留。
// 相关性得分 = max(0, 1-距离)，相同得分保持输入顺序。
func BuildContext(results *model.SearchResults, threshold float64) []model.ContextChunk {
	chunks := make([]model.ContextChunk, 0, results.Len())
	for i := 0; i < results.Len(); i++ {
		d, ok := results.Distance(i)
		if !ok || d > threshold {
			continue
		}

		c := model.ContextChunk{
			Content:        results.Documents[i],
			Distance:       d,
			RelevanceScore: max(0, 1-d),
			ChunkIndex:     i,
		}
		if meta := results.Metadata(i); meta != nil {
			c.Source = meta.Source
			c.Page = meta.Page
			c.ChunkIndex = meta.ChunkIndex
		}
		chunks = append(chunks, c)
	}

	sort.SliceStable(chunks, func(a, b int) bool {
		return chunks[a].RelevanceScore > chunks[b].RelevanceScore
	})
	return chunks
}

// AssemblePrompt 构建 RAG 提示词，上下文按排序后的顺序编号。
func AssemblePrompt(query string, chunks []model.ContextChunk) string {
	var contextText strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&contextText, "--- Context %d (Relevance: %.2f) ---\n", i+1, c.RelevanceScore)
		contextText.WriteString(c.Content)
		contextText.WriteString("\n\n")
	}

	return `You are an AI assistant that answers questions based on provided context from documents.
    
    **User Query:** ` + query + `
    
    **Relevant Context:**
    ` + contextText.String() + `
    
    **Instructions:**
    1. Answer the user's question using ONLY the information provided in the given context, you don't have to mention anything about the context source in your answer
    2. If the context doesn't contain enough information to answer the question, clearly state this
    3. Cite which context section(s) you're using for your answer
    4. Be specific and accurate - don't make assumptions beyond what's in the context
    5. If you find conflicting information in different context sections, mention this
    6. If its about Financial query respond amount details in INR
    7. You don't have to mention anything about the context source in your answer
    **Answer:`
}
