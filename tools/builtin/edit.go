// edit ports the fuzzy exact-match-first matching core of
// dev/apply_edit_blocks.go: FindPotentialMatches' three-tier match
// (exact line equality, then whitespace-trimmed equality, then
// Levenshtein similarity above similarityThreshold via
// utils.StringSimilarity), FindAcceptableMatch's
// minimumAcceptableHighScoreRatio=0.95 ambiguity gate, and
// expandUntilUnambiguous's context-growth loop when multiple matches
// tie. Simplified relative to the teacher: no visible-file-range
// filtering, no tree-sitter symbol re-anchoring, no LSP/autofix/check
// integration — this tool operates on a single whole oldText/newText
// block rather than a sequence of EditBlock values, per §4.5's
// narrower edit(path, oldText, newText) contract.
//
// BOM preservation and line-ending detection/restoration are carried
// as plain byte manipulation (no library in the pack parses these) per
// the same reasoning dev/apply_edit_blocks.go applies line-array
// manipulation directly with stdlib strings/os.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/pmezard/go-difflib/difflib"

	"agentcore/tools"
)

const (
	similarityThreshold             = 0.85
	minimumAcceptableHighScoreRatio = 0.95
	expandRate                      = 1
)

// EditParams is the typed input for the edit tool.
type EditParams struct {
	Path    string `json:"path" jsonschema:"required,description=Path to the file to edit, relative to the working directory"`
	OldText string `json:"oldText" jsonschema:"required,description=Text to find and replace; must match file contents exactly or closely enough to disambiguate"`
	NewText string `json:"newText" jsonschema:"required,description=Replacement text"`
}

// Edit builds the edit tool definition rooted at workDir.
func Edit(workDir string) tools.Definition {
	return tools.Definition{
		Name:        "edit",
		Label:       "Edit file",
		Description: "Replaces oldText with newText in a file, with BOM/line-ending preservation and fuzzy matching when the text has drifted slightly.",
		Schema:      tools.SchemaFor(&EditParams{}),
		Execute: func(ctx context.Context, callID string, args json.RawMessage, onUpdate tools.OnUpdate) tools.Result {
			var p EditParams
			if err := json.Unmarshal(args, &p); err != nil {
				return tools.ErrorResult(fmt.Errorf("invalid edit arguments: %w", err))
			}
			return doEdit(workDir, p)
		},
	}
}

func doEdit(workDir string, p EditParams) tools.Result {
	resolved, err := resolveInWorkdir(workDir, p.Path)
	if err != nil {
		return tools.ErrorResult(err)
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return tools.ErrorResult(fmt.Errorf("failed to read %s: %w", p.Path, err))
	}

	bom := []byte{0xEF, 0xBB, 0xBF}
	hasBOM := strings.HasPrefix(string(raw), string(bom))
	if hasBOM {
		raw = raw[len(bom):]
	}

	ending := detectLineEnding(string(raw))
	normalized := toLF(string(raw))
	originalLines := strings.Split(normalized, "\n")
	oldLines := strings.Split(toLF(p.OldText), "\n")
	newLines := strings.Split(toLF(p.NewText), "\n")

	best, all := findAcceptableMatch(oldLines, originalLines)
	if len(all) == 0 {
		closest, _ := findClosestMatch(oldLines, originalLines)
		if closest.score == 0 {
			return tools.ErrorResult(fmt.Errorf("no match found in %s for the given oldText", p.Path))
		}
		return tools.ErrorResult(fmt.Errorf(
			"no sufficiently close match found in %s for the given oldText (closest match at line %d, score %.2f):\n%s",
			p.Path, closest.index+1, closest.score, strings.Join(closest.lines, "\n"),
		))
	}
	if len(all) > 1 {
		expanded := expandUntilUnambiguous(all, originalLines)
		var sb strings.Builder
		for _, m := range expanded {
			fmt.Fprintf(&sb, "Lines %d-%d:\n%s\n\n", m.index+1, m.index+len(m.lines), strings.Join(m.lines, "\n"))
		}
		return tools.ErrorResult(fmt.Errorf(
			"oldText matches %d locations in %s; provide more surrounding context to disambiguate:\n\n%s",
			len(all), p.Path, sb.String(),
		))
	}

	startIndex := best.index
	endIndex := startIndex + len(best.lines)

	newContentLines := make([]string, 0, len(originalLines)+len(newLines)-len(best.lines))
	newContentLines = append(newContentLines, originalLines[:startIndex]...)
	newContentLines = append(newContentLines, newLines...)
	newContentLines = append(newContentLines, originalLines[endIndex:]...)

	newContent := strings.Join(newContentLines, "\n")
	output := fromLF(newContent, ending)
	if hasBOM {
		output = string(bom) + output
	}

	if err := os.WriteFile(resolved, []byte(output), 0644); err != nil {
		return tools.ErrorResult(fmt.Errorf("failed to write %s: %w", p.Path, err))
	}

	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(normalized),
		B:        difflib.SplitLines(newContent),
		FromFile: p.Path,
		ToFile:   p.Path,
		Context:  3,
	})

	return tools.Result{Text: fmt.Sprintf("firstChangedLine: %d\n\n%s", startIndex+1, diff)}
}

func detectLineEnding(s string) string {
	hasCRLF := strings.Contains(s, "\r\n")
	hasLoneLF := strings.Contains(strings.ReplaceAll(s, "\r\n", ""), "\n")
	switch {
	case hasCRLF && hasLoneLF:
		return "mixed"
	case hasCRLF:
		return "\r\n"
	default:
		return "\n"
	}
}

func toLF(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

func fromLF(s, ending string) string {
	if ending == "\r\n" {
		return strings.ReplaceAll(s, "\n", "\r\n")
	}
	return s
}

type match struct {
	index          int
	successful     bool
	lines          []string
	score          float64
	highScoreRatio float64
}

var distanceMetric = metrics.NewLevenshtein()

var (
	spacingReplacer = strings.NewReplacer(" ", "", "\t", "")
	fuzzyReplacer   = strings.NewReplacer(
		"\u201c", `"`, "\u201d", `"`, "\u2018", "'", "\u2019", "'",
		"\u2013", "-", "\u2014", "-",
		"\u00a0", " ",
	)
)

func normalizeForFuzzy(s string) string {
	s = fuzzyReplacer.Replace(s)
	return spacingReplacer.Replace(s)
}

func stringSimilarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}
	var scores []float64
	if strings.TrimSpace(s1) == strings.TrimSpace(s2) {
		scores = append(scores, 0.95)
	}
	n1, n2 := normalizeForFuzzy(s1), normalizeForFuzzy(s2)
	if n1 == n2 {
		scores = append(scores, 0.92)
	}
	simOriginal := strutil.Similarity(s1, s2, distanceMetric)
	if !math.IsNaN(simOriginal) {
		scores = append(scores, simOriginal)
	}
	simNormalized := strutil.Similarity(n1, n2, distanceMetric)
	weighted := 0.4*simOriginal + 0.6*simNormalized
	if !math.IsNaN(weighted) {
		scores = append(scores, weighted)
	}
	max := 0.0
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	return max
}

// findPotentialMatches locates candidate starting indices for oldLines[0]
// in originalLines, trying exact, then trimmed, then similarity match in
// turn, stopping at the first tier that yields any candidates.
func findPotentialMatches(oldLines, originalLines []string) []match {
	if len(oldLines) == 0 {
		return nil
	}
	starting := oldLines[0]

	var potential []match
	for idx, line := range originalLines {
		if line == starting {
			potential = append(potential, match{index: idx, score: 1.0})
		}
	}
	if len(potential) == 0 {
		trimmed := strings.TrimSpace(starting)
		for idx, line := range originalLines {
			if strings.TrimSpace(line) == trimmed {
				potential = append(potential, match{index: idx, score: 0.999})
			}
		}
	}
	if len(potential) == 0 {
		for idx, line := range originalLines {
			score := stringSimilarity(line, starting)
			if score >= similarityThreshold {
				potential = append(potential, match{index: idx, score: score})
			}
		}
	}
	return potential
}

func findClosestMatch(oldLines, originalLines []string) (match, []match) {
	potential := findPotentialMatches(oldLines, originalLines)

	var all []match
	var best match
	for _, p := range potential {
		successful := true
		var matchedLines []string
		var totalScore float64
		var numHighScore, numScored int

		for i, oldLine := range oldLines {
			origIdx := p.index + i
			if origIdx >= len(originalLines) {
				if strings.TrimSpace(oldLine) == "" {
					continue
				}
				successful = false
				break
			}
			origLine := originalLines[origIdx]
			score := stringSimilarity(origLine, oldLine)
			matchedLines = append(matchedLines, origLine)
			numScored++
			if score > 0.925 {
				numHighScore++
			}
			totalScore += score
		}

		var highScoreRatio, avgScore float64
		denom := numScored
		if !successful {
			denom = len(oldLines)
		}
		if denom > 0 {
			highScoreRatio = float64(numHighScore) / float64(denom)
			avgScore = totalScore / float64(denom)
		}

		m := match{index: p.index, successful: successful, highScoreRatio: highScoreRatio, score: avgScore, lines: matchedLines}
		all = append(all, m)

		isNewBest := m.successful && m.score > best.score
		isNewBest = isNewBest || (!best.successful && m.successful)
		isNewBest = isNewBest || (!best.successful && m.score > best.score)
		if isNewBest {
			best = m
		}
	}
	return best, all
}

func findAcceptableMatch(oldLines, originalLines []string) (match, []match) {
	closest, allMatches := findClosestMatch(oldLines, originalLines)
	if closest.successful && closest.highScoreRatio > minimumAcceptableHighScoreRatio {
		var acceptable []match
		for _, m := range allMatches {
			if m.successful && m.highScoreRatio > minimumAcceptableHighScoreRatio {
				acceptable = append(acceptable, m)
			}
		}
		return closest, acceptable
	}
	return match{}, nil
}

func expandUntilUnambiguous(matches []match, originalLines []string) []match {
	out := make([]match, len(matches))
	copy(out, matches)
	for i := range out {
		m := &out[i]
		for !singleAcceptableMatch(m.lines, originalLines) {
			start := m.index
			end := start + len(m.lines)
			newStart := max0(start - expandRate)
			newEnd := minLen(end+expandRate, len(originalLines))
			if newStart == start && newEnd == end {
				break
			}
			m.index = newStart
			m.lines = originalLines[newStart:newEnd]
		}
	}
	return out
}

func singleAcceptableMatch(lines, originalLines []string) bool {
	_, all := findAcceptableMatch(lines, originalLines)
	return len(all) == 1
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func minLen(n, max int) int {
	if n > max {
		return max
	}
	return n
}
