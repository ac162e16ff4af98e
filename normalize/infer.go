package normalize

import (
	"regexp"
	"strings"

	"github.com/petal-labs/botflow/core"
)

var (
	urlPattern  = regexp.MustCompile(`https?://[^\s"'<>()\[\]{}]+`)
	verbPattern = regexp.MustCompile(`(?i)\b(GET|POST|PUT|PATCH|DELETE)\b`)
)

// inferAPIFields fills a missing url and method on the first api node that
// lacks either, using the first URL and HTTP verb found in the instruction.
// Present values are never overwritten.
func inferAPIFields(g *flowGraph, instruction string) {
	if strings.TrimSpace(instruction) == "" {
		return
	}

	var target *node
	for _, n := range g.nodes {
		if n.kind == core.NodeKindAPI && (isBlank(n.data["url"]) || isBlank(n.data["method"])) {
			target = n
			break
		}
	}
	if target == nil {
		return
	}

	if isBlank(target.data["url"]) {
		if url := findURL(instruction); url != "" {
			target.data["url"] = url
			g.info(CodeURLInferred, target.path+".data.url", "Set url of API node %q to %s from the instruction", target.id, url)
		}
	}
	if isBlank(target.data["method"]) {
		if m := verbPattern.FindStringSubmatch(instruction); m != nil {
			method := strings.ToUpper(m[1])
			target.data["method"] = method
			g.info(CodeMethodInferred, target.path+".data.method", "Set method of API node %q to %s from the instruction", target.id, method)
		}
	}
}

func findURL(text string) string {
	url := urlPattern.FindString(text)
	return strings.TrimRight(url, ".,;:!?")
}
