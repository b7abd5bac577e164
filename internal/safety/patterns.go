package safety

import (
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

type pattern struct {
	regex  *regexp.Regexp
	reason string
}

// Destructive patterns always classify as dangerous, regardless of list
// membership of the first token.
var destructivePatterns = []pattern{
	{regexp.MustCompile(`(?i)\brm\s+(-[a-z-]+\s+)*-[a-z]*r[a-z]*\s+(--no-preserve-root\s+)?(/|/\*)\s*$`),
		"recursive delete of the filesystem root"},
	{regexp.MustCompile(`(?i)\brm\s+(-[a-z-]+\s+)*-[a-z]*r[a-z]*\s+(~(/\*?)?|\$HOME(/\*?)?)\s*$`),
		"recursive delete of the home directory"},
	{regexp.MustCompile(`(?i)\bsudo\s+rm\b`),
		"privileged file deletion"},
	{regexp.MustCompile(`(?i)\bdd\s+[^|;]*\bof=/dev/(sd|hd|nvme|vd|disk)`),
		"raw write to a block device"},
	{regexp.MustCompile(`(?i)\bmkfs(\.[a-z0-9]+)?\b`),
		"filesystem format command"},
	{regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`),
		"fork bomb"},
	{regexp.MustCompile(`(?i)\bchmod\s+(-[a-z]+\s+)*777\s+`),
		"world-writable permission grant"},
	{regexp.MustCompile(`(?i)\b(curl|wget)\b[^|;]*\|\s*(sudo\s+)?(ba|z|da|fi)?sh\b`),
		"download piped directly into a shell"},
}

// chainSplitFallback approximates segment counting for commands the
// shell parser rejects.
var chainSplitFallback = regexp.MustCompile(`&&|\|\||;`)

// Unsafe patterns classify as unsafe: runnable, but only after approval
// unless the auto-approve override is set.
var unsafePatterns = []pattern{
	{regexp.MustCompile(`>>?\s*/(etc|sys|boot)/`),
		"redirect into a system configuration path"},
	{regexp.MustCompile(`(?i)(^|\s|;)(export\s+)?PATH=`),
		"PATH mutation"},
	{regexp.MustCompile(`(?i)(^|&&|\|\||;|\|)\s*(curl|wget|nc|netcat)\b`),
		"networking tool invocation"},
}

func matchDestructive(command string) (string, bool) {
	for _, p := range destructivePatterns {
		if p.regex.MatchString(command) {
			return p.reason, true
		}
	}
	return "", false
}

func matchUnsafe(command string) (string, bool) {
	for _, p := range unsafePatterns {
		if p.regex.MatchString(command) {
			return p.reason, true
		}
	}
	if n := chainSegments(command); n > maxChainSegments {
		return "command chain with more than 3 segments", true
	}
	return "", false
}

const maxChainSegments = 3

// chainSegments counts the commands joined by &&, || and ; using the shell
// AST. Pipelines count as one segment. Falls back to a textual split when
// the command does not parse.
func chainSegments(command string) int {
	parser := syntax.NewParser()
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return len(chainSplitFallback.Split(command, -1))
	}

	n := 0
	var visit func(cmd syntax.Command)
	visit = func(cmd syntax.Command) {
		if bin, ok := cmd.(*syntax.BinaryCmd); ok {
			if bin.Op == syntax.AndStmt || bin.Op == syntax.OrStmt {
				visit(bin.X.Cmd)
				visit(bin.Y.Cmd)
				return
			}
		}
		n++
	}
	for _, stmt := range file.Stmts {
		visit(stmt.Cmd)
	}
	return n
}
