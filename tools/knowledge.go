package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/careline/careline/knowledge"
)

// KnowledgeSearchTool searches the store knowledge base for policies,
// product information, and FAQ answers.
type KnowledgeSearchTool struct {
	Index *knowledge.Index
}

func (t *KnowledgeSearchTool) Name() string { return "search_knowledge_base" }

func (t *KnowledgeSearchTool) Description() string {
	return "Search the store's knowledge base for policies (returns, shipping, warranty, payment), product information, and FAQ answers. Args: query (string), category (optional string: product, shipping, return, payment, general), max_results (optional number 1-10)."
}

func (t *KnowledgeSearchTool) Schema() *Schema {
	return &Schema{
		Properties: map[string]Property{
			"query":       {Type: "string", Description: "The customer's question or search terms."},
			"category":    {Type: "string", Description: "Optional category filter: product, shipping, return, payment, or general."},
			"max_results": {Type: "number", Description: "Maximum number of results, 1-10. Defaults to 3."},
		},
		Required: []string{"query"},
	}
}

func (t *KnowledgeSearchTool) Execute(ctx context.Context, args map[string]interface{}) (Result, error) {
	query := stringArg(args, "query")

	q := knowledge.Query{Text: query, K: intArg(args, "max_results")}
	if q.K > 10 {
		q.K = 10
	}
	if category := strings.ToLower(stringArg(args, "category")); category != "" && category != "general" {
		q.Categories = []string{category}
	}

	results := t.Index.Search(q)
	if len(results) == 0 {
		return Result{Content: fmt.Sprintf(
			"No relevant knowledge base entries found for %q. Try broader search terms or drop the category filter.", query)}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Knowledge base results for %q:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "\n[%d] (%s, relevance %.2f)\n%s\n", i+1, r.Category, r.Score, strings.TrimSpace(r.Content))
	}
	return Result{Content: b.String()}, nil
}

// intArg reads a numeric argument, accepting the float64 that JSON decoding
// produces.
func intArg(args map[string]interface{}, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
