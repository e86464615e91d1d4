package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/careline/careline/errors"
)

// knowledgeFile mirrors the knowledge_base.json layout: store policies,
// product info, and FAQ entries grouped under one root key.
type knowledgeFile struct {
	KnowledgeBase struct {
		Policies struct {
			Returns *struct {
				TimeLimit      string `json:"time_limit"`
				Condition      string `json:"condition"`
				RefundTime     string `json:"refund_time"`
				ReturnShipping struct {
					Defective string `json:"defective"`
					Other     string `json:"other"`
				} `json:"return_shipping"`
			} `json:"returns"`
			Shipping map[string]struct {
				Time string `json:"time"`
				Cost string `json:"cost"`
			} `json:"shipping"`
			Warranty *struct {
				Standard          string `json:"standard"`
				Coverage          string `json:"coverage"`
				ExtendedAvailable bool   `json:"extended_available"`
			} `json:"warranty"`
			Payment *struct {
				Methods   []string `json:"methods"`
				Processor string   `json:"processor"`
				Security  string   `json:"security"`
			} `json:"payment"`
		} `json:"policies"`
		Products struct {
			Categories  []string `json:"categories"`
			TopProducts []struct {
				Name     string   `json:"name"`
				Price    string   `json:"price"`
				Features []string `json:"features"`
			} `json:"top_products"`
		} `json:"products"`
		FAQ []struct {
			Question string `json:"question"`
			Answer   string `json:"answer"`
		} `json:"faq"`
		Support string `json:"support"`
	} `json:"knowledge_base"`
}

// LoadFiles reads every knowledge-base JSON file matching the given
// doublestar patterns and converts them into searchable documents.
func LoadFiles(patterns []string) ([]Document, error) {
	var docs []Document
	for _, pattern := range patterns {
		paths, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, errors.New("invalid knowledge path pattern %q: %v", pattern, err)
		}
		for _, path := range paths {
			fileDocs, err := loadFile(path)
			if err != nil {
				return nil, err
			}
			docs = append(docs, fileDocs...)
		}
	}
	return docs, nil
}

func loadFile(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read knowledge base file %s", path)
	}
	var kf knowledgeFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, errors.Wrapf(err, "could not parse knowledge base file %s", path)
	}
	return kf.documents(), nil
}

func (kf *knowledgeFile) documents() []Document {
	var docs []Document
	kb := kf.KnowledgeBase

	if r := kb.Policies.Returns; r != nil {
		docs = append(docs, Document{
			Category: "return",
			Type:     "policy",
			Content: fmt.Sprintf(
				"Return Policy:\n- Time limit: %s\n- Condition: %s\n- Refund processing time: %s\n- Return shipping cost: %s for defective items, %s for other reasons",
				r.TimeLimit, r.Condition, r.RefundTime, orNA(r.ReturnShipping.Defective), orNA(r.ReturnShipping.Other)),
		})
	}
	if len(kb.Policies.Shipping) > 0 {
		var b strings.Builder
		b.WriteString("Shipping Options:\n")
		for method, d := range kb.Policies.Shipping {
			fmt.Fprintf(&b, "- %s: %s - %s\n", capitalizeWord(method), d.Time, d.Cost)
		}
		docs = append(docs, Document{Category: "shipping", Type: "policy", Content: b.String()})
	}
	if w := kb.Policies.Warranty; w != nil {
		extended := "No"
		if w.ExtendedAvailable {
			extended = "Yes"
		}
		docs = append(docs, Document{
			Category: "product",
			Type:     "policy",
			Content: fmt.Sprintf(
				"Warranty Information:\n- Standard warranty: %s\n- Coverage: %s\n- Extended warranty available: %s",
				w.Standard, w.Coverage, extended),
		})
	}
	if p := kb.Policies.Payment; p != nil {
		docs = append(docs, Document{
			Category: "payment",
			Type:     "policy",
			Content: fmt.Sprintf(
				"Payment Information:\n- Accepted methods: %s\n- Payment processor: %s\n- Security: %s\n- Payment timing: Charged when the order ships",
				strings.Join(p.Methods, ", "), p.Processor, p.Security),
		})
	}
	if len(kb.Products.Categories) > 0 {
		docs = append(docs, Document{
			Category: "product",
			Type:     "info",
			Content:  "Product Categories: " + strings.Join(kb.Products.Categories, ", "),
		})
	}
	for _, prod := range kb.Products.TopProducts {
		docs = append(docs, Document{
			Category: "product",
			Type:     "product_info",
			Content:  fmt.Sprintf("%s\nPrice: %s\nFeatures: %s", prod.Name, prod.Price, strings.Join(prod.Features, ", ")),
		})
	}
	for _, faq := range kb.FAQ {
		docs = append(docs, Document{
			Category: "general",
			Type:     "faq",
			Content:  fmt.Sprintf("Question: %s\nAnswer: %s", faq.Question, faq.Answer),
		})
	}
	if kb.Support != "" {
		docs = append(docs, Document{Category: "general", Type: "info", Content: kb.Support})
	}
	return docs
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func capitalizeWord(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
