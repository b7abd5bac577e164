// Package extract scans free-form agent text for shell commands worth
// proposing for execution.
//
// Four strategies run in priority order and their results merge into one
// deduplicated, order-preserving candidate list: explicit structured
// blocks, fenced shell code blocks, inline backtick spans, and
// natural-language lead-ins. Each candidate is tagged with the strategy
// that produced it so the strategies can be tuned independently.
package extract

import (
	"regexp"
	"strings"
)

// Source identifies the strategy that produced a candidate.
type Source string

const (
	SourceStructuredBlock Source = "structured-block"
	SourceFencedBlock     Source = "fenced-block"
	SourceInlineBacktick  Source = "inline-backtick"
	SourceNaturalLanguage Source = "natural-language"
)

// Candidate is one extracted command plus optional hints.
type Candidate struct {
	Command    string `json:"command"`
	Reasoning  string `json:"reasoning,omitempty"`
	WorkingDir string `json:"workingDir,omitempty"`
	Source     Source `json:"source"`
}

// Extractor scans agent text for command candidates. knownCommands feeds
// the looks-like-a-command heuristic used by the low-confidence passes.
type Extractor struct {
	knownCommands map[string]struct{}
}

// commonTools are always accepted by the heuristic, on top of the policy
// lists: shell builtins plus tools too common to miss. Extraction casts a
// wide net; the validation engine decides what may actually run.
var commonTools = []string{
	"cd", "clear", "exit", "export", "source", "alias",
	"bash", "sh", "zsh", "curl", "wget", "nc", "netcat", "ssh", "scp",
	"tar", "zip", "unzip", "sed", "awk", "cp", "mv", "touch", "mkdir",
	"ln", "kill", "docker", "kubectl",
}

// New creates an extractor. The known set is typically the union of the
// policy's safe and dangerous command lists.
func New(knownCommands []string) *Extractor {
	known := make(map[string]struct{}, len(knownCommands)+len(commonTools))
	for _, c := range knownCommands {
		known[c] = struct{}{}
	}
	for _, c := range commonTools {
		known[c] = struct{}{}
	}
	return &Extractor{knownCommands: known}
}

var (
	structuredBlockRe = regexp.MustCompile(`(?s)\[TERMINAL_COMMAND\](.*?)\[/TERMINAL_COMMAND\]`)
	fencedBlockRe     = regexp.MustCompile("(?s)```(bash|sh|shell|terminal)\\s*\n(.*?)```")
	inlineBacktickRe  = regexp.MustCompile("`([^`\n]+)`")
	leadInRe          = regexp.MustCompile(`(?im)^\s*(?:I'll run|Let me run|Running|Execute):\s*(.+)$`)
)

// Extract runs all strategies over text and merges their candidates.
// Identical command text collapses to the first occurrence, which keeps
// the earliest reasoning and working-directory hints.
func (e *Extractor) Extract(text string) []Candidate {
	var ordered []Candidate
	seen := make(map[string]struct{})

	add := func(c Candidate) {
		c.Command = strings.TrimSpace(c.Command)
		if c.Command == "" {
			return
		}
		if _, dup := seen[c.Command]; dup {
			return
		}
		seen[c.Command] = struct{}{}
		ordered = append(ordered, c)
	}

	for _, c := range e.structuredBlocks(text) {
		add(c)
	}
	for _, c := range e.fencedBlocks(text) {
		add(c)
	}
	for _, c := range e.inlineBackticks(text) {
		add(c)
	}
	for _, c := range e.naturalLanguage(text) {
		add(c)
	}

	return ordered
}

// structuredBlocks parses [TERMINAL_COMMAND] blocks with key:value lines.
// Highest-confidence source; no heuristic filtering.
func (e *Extractor) structuredBlocks(text string) []Candidate {
	var out []Candidate
	for _, match := range structuredBlockRe.FindAllStringSubmatch(text, -1) {
		c := Candidate{Source: SourceStructuredBlock}
		for _, line := range strings.Split(match[1], "\n") {
			key, value, found := strings.Cut(line, ":")
			if !found {
				continue
			}
			value = strings.TrimSpace(value)
			switch strings.TrimSpace(key) {
			case "command":
				c.Command = value
			case "reasoning":
				c.Reasoning = value
			case "workingDir":
				c.WorkingDir = value
			}
		}
		if c.Command != "" {
			out = append(out, c)
		}
	}
	return out
}

// fencedBlocks extracts each non-comment, non-blank line of shell-tagged
// code fences as a separate candidate.
func (e *Extractor) fencedBlocks(text string) []Candidate {
	var out []Candidate
	for _, match := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		for _, line := range strings.Split(match[2], "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			out = append(out, Candidate{Command: line, Source: SourceFencedBlock})
		}
	}
	return out
}

// inlineBackticks extracts single-backtick spans that look like commands.
func (e *Extractor) inlineBackticks(text string) []Candidate {
	// Mask fenced blocks so their backticks are not re-extracted.
	masked := fencedBlockRe.ReplaceAllString(text, "")

	var out []Candidate
	for _, match := range inlineBacktickRe.FindAllStringSubmatch(masked, -1) {
		span := strings.TrimSpace(match[1])
		if e.looksLikeCommand(span) {
			out = append(out, Candidate{Command: span, Source: SourceInlineBacktick})
		}
	}
	return out
}

// naturalLanguage extracts the remainder of lines starting with a known
// lead-in ("I'll run:", "Let me run:", "Running:", "Execute:").
func (e *Extractor) naturalLanguage(text string) []Candidate {
	var out []Candidate
	for _, match := range leadInRe.FindAllStringSubmatch(text, -1) {
		rest := strings.TrimSpace(match[1])
		rest = strings.Trim(rest, "`")
		if e.looksLikeCommand(rest) {
			out = append(out, Candidate{Command: rest, Source: SourceNaturalLanguage})
		}
	}
	return out
}

// looksLikeCommand is the heuristic gate for the low-confidence passes:
// bounded length, single line, and a recognized first token. Deliberately
// strict to keep prose out of the candidate list.
func (e *Extractor) looksLikeCommand(s string) bool {
	if len(s) < 2 || len(s) > 500 {
		return false
	}
	if strings.ContainsRune(s, '\n') {
		return false
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return false
	}
	_, known := e.knownCommands[fields[0]]
	return known
}
