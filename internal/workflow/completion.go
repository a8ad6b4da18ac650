package workflow

import "strings"

// DefaultCompletionMarkers is the built-in completion-indicator set checked
// against the newest assistant message content (case-insensitive), ported
// from original_source/src/core/graph/factory.py's _is_task_completed.
// spec.md §9 flags this as locale-specific and asks implementers to
// externalize rather than hardcode it further — AgentNodeOptions.
// CompletionKeywords lets a deployment extend or override this default via
// global_config.runtime.completion_keywords without a code change, while
// the out-of-the-box behavior still matches the original.
var DefaultCompletionMarkers = []string{
	"最终答案", "final answer", "analysis complete", "task completed",
	"诊断完成", "任务完成", "分析完成",
}

// contextualFinishedWords/contextualNegations/contextualContextWords
// implement factory.py's _check_contextual_completion: a finish word AND
// no negation AND a context word together signal completion, even when no
// exact marker from DefaultCompletionMarkers fires.
var contextualFinishedWords = []string{"完成", "结束", "finished", "completed"}
var contextualNegations = []string{"未完成", "not completed", "没有完成", "尚未完成"}
var contextualContextWords = []string{"分析完成", "任务完成", "check completed", "诊断完成", "分析结束"}

// IsCompletionMarker reports whether content (the newest assistant message)
// signals react-loop termination: a configured force-exit keyword, a
// built-in/extra completion marker, or the contextual heuristic
// (spec.md §4.5 step 3).
func IsCompletionMarker(content string, extraKeywords []string) bool {
	lower := strings.ToLower(content)

	if containsAny(lower, extraKeywords) {
		return true
	}
	if containsAny(lower, DefaultCompletionMarkers) {
		return true
	}
	return checkContextualCompletion(lower)
}

func checkContextualCompletion(lower string) bool {
	if !containsAny(lower, contextualFinishedWords) {
		return false
	}
	if containsAny(lower, contextualNegations) {
		return false
	}
	return containsAny(lower, contextualContextWords)
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
