package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// CanonicalText flattens one entity version into a deterministic set of
// lines suitable for diffing against another version of the same entity.
func (e Entity) CanonicalText() []string {
	lines := []string{
		fmt.Sprintf("EntityType: %s", e.EntityType),
		fmt.Sprintf("SourceType: %s", e.SourceType),
		fmt.Sprintf("UserID: %s", e.UserID),
		"Content:",
	}

	flattened := map[string]string{}
	if len(e.Content) > 0 {
		flattenContent("", e.Content, flattened)
	}

	if len(flattened) == 0 {
		lines = append(lines, "  (empty)")
		return lines
	}

	keys := make([]string, 0, len(flattened))
	for key := range flattened {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("  %s: %s", key, flattened[key]))
	}

	return lines
}

// DiffEntityVersions produces a unified diff between two versions, labelled
// by their version tokens.
func DiffEntityVersions(base, target Entity) string {
	baseText := strings.Join(base.CanonicalText(), "\n") + "\n"
	targetText := strings.Join(target.CanonicalText(), "\n") + "\n"
	return buildUnifiedDiff(base.Version, target.Version, baseText, targetText)
}

func flattenContent(prefix string, value any, acc map[string]string) {
	switch typed := value.(type) {
	case map[string]any:
		if len(typed) == 0 {
			if prefix != "" {
				acc[prefix] = "{}"
			}
			return
		}
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			nextPrefix := key
			if prefix != "" {
				nextPrefix = prefix + "." + key
			}
			flattenContent(nextPrefix, typed[key], acc)
		}
	case []any:
		if len(typed) == 0 {
			if prefix != "" {
				acc[prefix] = "[]"
			}
			return
		}
		for idx, item := range typed {
			flattenContent(fmt.Sprintf("%s[%d]", prefix, idx), item, acc)
		}
	case nil:
		if prefix != "" {
			acc[prefix] = "null"
		}
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			acc[prefix] = fmt.Sprintf("%v", typed)
		} else {
			acc[prefix] = string(encoded)
		}
	}
}

type diffOp struct {
	prefix string
	line   string
}

func buildUnifiedDiff(baseLabel, targetLabel, baseContent, targetContent string) string {
	baseLines := splitLines(baseContent)
	targetLines := splitLines(targetContent)

	ops := diffLines(baseLines, targetLines)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("--- %s\n", baseLabel))
	builder.WriteString(fmt.Sprintf("+++ %s\n", targetLabel))
	for _, operation := range ops {
		builder.WriteString(operation.prefix)
		builder.WriteString(operation.line)
		builder.WriteString("\n")
	}

	return builder.String()
}

func splitLines(input string) []string {
	lines := strings.Split(input, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// diffLines walks a longest-common-subsequence table to emit context, delete,
// and insert operations in order.
func diffLines(base, target []string) []diffOp {
	m := len(base)
	n := len(target)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}

	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if base[i] == target[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	ops := make([]diffOp, 0, m+n)
	i, j := 0, 0
	for i < m && j < n {
		if base[i] == target[j] {
			ops = append(ops, diffOp{prefix: " ", line: base[i]})
			i++
			j++
			continue
		}

		if dp[i+1][j] >= dp[i][j+1] {
			ops = append(ops, diffOp{prefix: "-", line: base[i]})
			i++
		} else {
			ops = append(ops, diffOp{prefix: "+", line: target[j]})
			j++
		}
	}

	for i < m {
		ops = append(ops, diffOp{prefix: "-", line: base[i]})
		i++
	}

	for j < n {
		ops = append(ops, diffOp{prefix: "+", line: target[j]})
		j++
	}

	return ops
}
