package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrPipeline = "pipeline"
	attrStage    = "stage"
	attrDecision = "decision"
	attrCode     = "code"
	attrReason   = "reason"
	attrRule     = "rule"
	attrMethod   = "method"
	attrPath     = "path"
	attrStatus   = "status"
)

func pipelineAttr(p string) attribute.KeyValue { return attribute.String(attrPipeline, p) }
func stageAttr(s string) attribute.KeyValue    { return attribute.String(attrStage, orNone(s)) }
func decisionAttr(d string) attribute.KeyValue { return attribute.String(attrDecision, d) }
func codeAttr(c string) attribute.KeyValue     { return attribute.String(attrCode, orNone(c)) }
func reasonAttr(r string) attribute.KeyValue   { return attribute.String(attrReason, r) }
func ruleAttr(r string) attribute.KeyValue     { return attribute.String(attrRule, r) }
func methodAttr(m string) attribute.KeyValue   { return attribute.String(attrMethod, m) }

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

// statusAttr groups status codes: 200-299 -> 2xx.
func statusAttr(code int) attribute.KeyValue {
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

// normalizePath collapses the pipeline segment of route requests.
func normalizePath(path string) string {
	const prefix = "/v1/route/"
	if strings.HasPrefix(path, prefix) && len(path) > len(prefix) {
		return prefix + "{pipeline}"
	}
	return path
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
