package answer

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// citationPattern matches [1] and [Source 1] style markers.
var citationPattern = regexp.MustCompile(`\[(?:Source\s*)?(\d+)\]`)

// CitedContexts returns the distinct context numbers in 1..n that the
// answer references, ascending.
func CitedContexts(answer string, n int) []int {
	seen := make(map[int]bool)
	var cited []int
	for _, m := range citationPattern.FindAllStringSubmatch(answer, -1) {
		num, err := strconv.Atoi(m[1])
		if err != nil || num < 1 || num > n || seen[num] {
			continue
		}
		seen[num] = true
		cited = append(cited, num)
	}
	sort.Ints(cited)
	return cited
}

// IsFallback reports whether the answer contains the no-information
// sentence.
func IsFallback(answer string) bool {
	a := strings.ToLower(strings.Trim(strings.TrimSpace(answer), `"'`))
	return strings.Contains(a, strings.ToLower(strings.TrimSuffix(Fallback, ".")))
}
